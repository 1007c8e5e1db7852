package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/token"
	"go.uber.org/zap"
)

// State is where the store is in its reconciliation state machine
type State int

const (
	// StateUnknown is the state before Init
	StateUnknown State = iota
	// StateOptimistic means the identity came from the cache and is unverified
	StateOptimistic
	// StateAuthenticated means the server confirmed the identity
	StateAuthenticated
	// StateAnonymous means nobody is logged in
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateOptimistic:
		return "optimistic"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// ErrStoreClosed is returned by Login and Logout after Close
var ErrStoreClosed = errors.New("session store closed")

// SessionAPI is the server side of the session as the store sees it
type SessionAPI interface {
	// Token returns the session token held by the transport, or ""
	Token() string
	Session(ctx context.Context) (models.Identity, error)
	Login(ctx context.Context, email, password string) (models.Identity, error)
	Logout(ctx context.Context) error
}

// Options configures a Store
type Options struct {
	API         SessionAPI
	Storage     Storage
	Broadcaster *Broadcaster

	// Navigate is called with the destination after login and logout
	Navigate func(path string)

	// DefaultLandingPath is used after login when no usable callback is given
	DefaultLandingPath string

	// PublicLandingPath is where logout sends the user
	PublicLandingPath string

	Now    func() time.Time
	Logger *zap.Logger
}

// Store holds who is logged in on the client. The identity is advisory: it is
// reconciled against the session endpoint before it is trusted, and login and
// logout always supersede a reconciliation that was in flight when they
// completed.
type Store struct {
	api         SessionAPI
	storage     Storage
	broadcaster *Broadcaster
	navigate    func(string)
	landing     string
	public      string
	now         func() time.Time
	logger      *zap.Logger

	mu       sync.Mutex
	identity *models.Identity
	state    State
	epoch    uint64
	path     string
	closed   bool

	// publishMu serializes broadcasts; published is the epoch of the last one
	publishMu sync.Mutex
	published uint64
}

// NewStore creates a Store. Call Init before use and Close when done.
func NewStore(opts Options) *Store {
	s := &Store{
		api:         opts.API,
		storage:     opts.Storage,
		broadcaster: opts.Broadcaster,
		navigate:    opts.Navigate,
		landing:     opts.DefaultLandingPath,
		public:      opts.PublicLandingPath,
		now:         opts.Now,
		logger:      opts.Logger,
	}
	if s.broadcaster == nil {
		s.broadcaster = NewBroadcaster()
	}
	if s.storage == nil {
		s.storage = NewMemoryStorage()
	}
	if s.navigate == nil {
		s.navigate = func(string) {}
	}
	if s.landing == "" {
		s.landing = "/"
	}
	if s.public == "" {
		s.public = "/"
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Identity returns a copy of the current identity, or nil
func (s *Store) Identity() *models.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyIdentity(s.identity)
}

// State returns the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path returns the last path passed to Navigate or chosen by login/logout
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Subscribe registers fn for identity changes. Broadcasts reach fn in
// mutation order.
func (s *Store) Subscribe(fn func(AuthChange)) (unsubscribe func()) {
	return s.broadcaster.Subscribe(fn)
}

// Init seeds the identity from the cache so it is available immediately,
// broadcasts it and then reconciles with the server
func (s *Store) Init(ctx context.Context) bool {
	cached := s.readCache(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.epoch++
	version := s.epoch
	s.identity = cached
	if cached != nil {
		s.state = StateOptimistic
	} else {
		s.state = StateAnonymous
	}
	s.mu.Unlock()

	s.publish(version, cached)

	return s.CheckAuth(ctx)
}

// CheckAuth reconciles the cached identity with the server: no token means
// anonymous, a locally expired token means anonymous, otherwise the session
// endpoint decides. Every failure resolves to anonymous. The result is
// dropped if a newer mutation or reconciliation started meanwhile.
func (s *Store) CheckAuth(ctx context.Context) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.epoch++
	attempt := s.epoch
	s.mu.Unlock()

	identity := s.resolve(ctx)
	return s.applyCheck(ctx, attempt, identity)
}

func (s *Store) resolve(ctx context.Context) *models.Identity {
	tok := s.api.Token()
	if tok == "" {
		return nil
	}

	claims, err := token.Peek(tok)
	if err != nil || claims.Expired(s.now()) {
		s.logger.Debug("session token expired or unreadable")
		return nil
	}

	identity, err := s.api.Session(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotAuthenticated) {
			s.logger.Warn("session check failed", zap.Error(err))
		}
		return nil
	}
	return &identity
}

func (s *Store) applyCheck(ctx context.Context, attempt uint64, identity *models.Identity) bool {
	s.mu.Lock()
	if s.closed || s.epoch != attempt {
		current := s.identity != nil
		s.mu.Unlock()
		s.logger.Debug("discarding superseded session check")
		return current
	}

	changed := !sameIdentity(s.identity, identity)
	s.identity = identity
	if identity != nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateAnonymous
	}
	s.persistLocked(ctx, identity)
	s.mu.Unlock()

	if changed {
		s.publish(attempt, identity)
	}
	return identity != nil
}

// Navigate records the current path and reconciles when it changed
func (s *Store) Navigate(ctx context.Context, path string) bool {
	s.mu.Lock()
	changed := path != s.path
	s.path = path
	authenticated := s.identity != nil
	s.mu.Unlock()

	if !changed {
		return authenticated
	}
	return s.CheckAuth(ctx)
}

// Login submits credentials. On success the returned identity is adopted
// without another round trip and the user is sent to callbackURL, the
// decoded callbackUrl query value, when it is a same-site path, otherwise to
// the default landing path. On failure the server's error is returned
// unchanged.
func (s *Store) Login(ctx context.Context, email, password, callbackURL string) (string, error) {
	if s.isClosed() {
		return "", ErrStoreClosed
	}

	identity, err := s.api.Login(ctx, email, password)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.epoch++
	version := s.epoch
	s.identity = &identity
	s.state = StateAuthenticated
	s.persistLocked(ctx, &identity)
	s.mu.Unlock()

	s.publish(version, &identity)

	target := SafeCallback(callbackURL, s.landing)
	s.goTo(target)
	return target, nil
}

// Logout asks the server to drop the session, then clears local state no
// matter what the server said. A failed response is returned after the
// local state is cleared.
func (s *Store) Logout(ctx context.Context) error {
	if s.isClosed() {
		return ErrStoreClosed
	}

	err := s.api.Logout(ctx)
	if err != nil {
		s.logger.Warn("logout request failed", zap.Error(err))
	}

	s.mu.Lock()
	s.epoch++
	version := s.epoch
	s.identity = nil
	s.state = StateAnonymous
	s.persistLocked(ctx, nil)
	s.mu.Unlock()

	s.publish(version, nil)
	s.goTo(s.public)
	return err
}

// SyncExternal reacts to another process changing the shared cache. It
// reconciles only when the cached identity differs from ours.
func (s *Store) SyncExternal(ctx context.Context) {
	cached := s.readCache(ctx)

	s.mu.Lock()
	same := sameIdentity(s.identity, cached)
	s.mu.Unlock()

	if same {
		return
	}
	s.logger.Debug("session cache changed by another process")
	s.CheckAuth(ctx)
}

// Close stops the store. Later mutations are ignored and subscribers are
// dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.epoch++
	s.mu.Unlock()

	s.broadcaster.Reset()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) goTo(path string) {
	s.mu.Lock()
	s.path = path
	s.mu.Unlock()
	s.navigate(path)
}

// publish broadcasts identity as of epoch version. A change older than the
// last one broadcast is dropped, so subscribers never end on a stale
// identity. Subscribers must not call Login, Logout or CheckAuth from inside
// their callback.
func (s *Store) publish(version uint64, identity *models.Identity) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if version <= s.published {
		s.logger.Debug("dropping superseded identity broadcast")
		return
	}
	s.published = version
	s.broadcaster.Publish(AuthChange{User: copyIdentity(identity)})
}

// persistLocked writes identity to the cache. Cache failures are logged; the
// cache is advisory.
func (s *Store) persistLocked(ctx context.Context, identity *models.Identity) {
	if identity == nil {
		if err := s.storage.Delete(ctx, IdentityKey); err != nil {
			s.logger.Warn("failed to clear identity cache", zap.Error(err))
		}
		return
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		s.logger.Warn("failed to encode identity", zap.Error(err))
		return
	}
	if err := s.storage.Set(ctx, IdentityKey, raw); err != nil {
		s.logger.Warn("failed to write identity cache", zap.Error(err))
	}
}

func (s *Store) readCache(ctx context.Context) *models.Identity {
	raw, ok, err := s.storage.Get(ctx, IdentityKey)
	if err != nil {
		s.logger.Warn("failed to read identity cache", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var identity models.Identity
	if err := json.Unmarshal(raw, &identity); err != nil || identity.IsZero() {
		s.logger.Warn("ignoring corrupt identity cache")
		return nil
	}
	return &identity
}

// SafeCallback returns callbackURL when it is a same-site absolute path,
// otherwise fallback. callbackURL is the callbackUrl query value as already
// decoded by query parsing; it is not unescaped again.
func SafeCallback(callbackURL, fallback string) string {
	if callbackURL == "" {
		return fallback
	}
	if !strings.HasPrefix(callbackURL, "/") || strings.HasPrefix(callbackURL, "//") || strings.Contains(callbackURL, "\\") {
		return fallback
	}
	u, err := url.Parse(callbackURL)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return callbackURL
}

func sameIdentity(a, b *models.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func copyIdentity(identity *models.Identity) *models.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
