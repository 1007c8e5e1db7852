package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// storedCookie is the persisted form of a cookie
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
	Secure  bool      `json:"secure,omitempty"`
}

func (c storedCookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// Jar is an http.CookieJar for a single site whose cookies live in Storage,
// so every process sharing the storage shares the session. It plays the role
// of the browser's cookie store: the client never sets the session cookie
// itself, it only keeps what the server sent.
type Jar struct {
	mu      sync.Mutex
	site    *url.URL
	storage Storage
	now     func() time.Time
	logger  *zap.Logger
}

// NewJar creates a jar for the site at siteURL
func NewJar(siteURL string, storage Storage, logger *zap.Logger) (*Jar, error) {
	u, err := url.Parse(siteURL)
	if err != nil {
		return nil, err
	}
	return &Jar{
		site:    u,
		storage: storage,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// SetCookies implements http.CookieJar
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	if !j.sameSite(u) || len(cookies) == 0 {
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	stored := j.load()
	for _, c := range cookies {
		sc := storedCookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Secure: c.Secure,
		}
		switch {
		case c.MaxAge < 0:
			sc.Expires = now
		case c.MaxAge > 0:
			sc.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		case !c.Expires.IsZero():
			sc.Expires = c.Expires
		}

		if sc.expired(now) {
			delete(stored, sc.Name)
			continue
		}
		stored[sc.Name] = sc
	}
	j.save(stored)
}

// Cookies implements http.CookieJar
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	if !j.sameSite(u) {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now()
	var out []*http.Cookie
	for _, c := range j.load() {
		if c.expired(now) {
			continue
		}
		if c.Secure && u.Scheme != "https" {
			continue
		}
		if c.Path != "" && !pathMatch(u.Path, c.Path) {
			continue
		}
		out = append(out, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return out
}

// Value returns the named cookie's value for the site root, or ""
func (j *Jar) Value(name string) string {
	root := *j.site
	root.Path = "/"
	for _, c := range j.Cookies(&root) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// Clear drops every cookie. API.Logout uses it when the server cannot
// delete the session cookie itself.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.storage.Delete(context.Background(), CookiesKey); err != nil {
		j.logger.Warn("failed to clear cookie jar", zap.Error(err))
	}
}

func (j *Jar) sameSite(u *url.URL) bool {
	return u != nil && strings.EqualFold(u.Hostname(), j.site.Hostname())
}

func (j *Jar) load() map[string]storedCookie {
	stored := make(map[string]storedCookie)
	raw, ok, err := j.storage.Get(context.Background(), CookiesKey)
	if err != nil {
		j.logger.Warn("failed to read cookie jar", zap.Error(err))
		return stored
	}
	if !ok {
		return stored
	}
	if err := json.Unmarshal(raw, &stored); err != nil {
		j.logger.Warn("discarding corrupt cookie jar", zap.Error(err))
		return make(map[string]storedCookie)
	}
	return stored
}

func (j *Jar) save(stored map[string]storedCookie) {
	ctx := context.Background()
	if len(stored) == 0 {
		if err := j.storage.Delete(ctx, CookiesKey); err != nil {
			j.logger.Warn("failed to persist cookie jar", zap.Error(err))
		}
		return
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		j.logger.Warn("failed to encode cookie jar", zap.Error(err))
		return
	}
	if err := j.storage.Set(ctx, CookiesKey, raw); err != nil {
		j.logger.Warn("failed to persist cookie jar", zap.Error(err))
	}
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}
