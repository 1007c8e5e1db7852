package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/token"
)

// DefaultSessionTimeout bounds a session endpoint call
const DefaultSessionTimeout = 5 * time.Second

const maxResponseBytes = 1 << 20

// ErrNotAuthenticated is returned by Session when the server does not
// recognize the session
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response. Its Error is the server's message
// unchanged, so it can be shown to the user as is.
type APIError struct {
	Status  int
	Message string
	Details map[string]interface{}
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return http.StatusText(e.Status)
}

// API talks to the auth endpoints. The session cookie is kept in the jar;
// API never reads or writes it except through HTTP responses.
type API struct {
	baseURL        string
	http           *http.Client
	jar            *Jar
	sessionTimeout time.Duration
}

// APIOption configures an API
type APIOption func(*API)

// WithSessionTimeout overrides DefaultSessionTimeout
func WithSessionTimeout(d time.Duration) APIOption {
	return func(a *API) {
		if d > 0 {
			a.sessionTimeout = d
		}
	}
}

// WithHTTPClient replaces the transport client. Its jar is replaced.
func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) {
		a.http = c
	}
}

// NewAPI creates a client for the server at baseURL
func NewAPI(baseURL string, jar *Jar, opts ...APIOption) *API {
	a := &API{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{},
		jar:            jar,
		sessionTimeout: DefaultSessionTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.http.Jar = jar
	return a
}

// Token returns the session token currently held in the jar
func (a *API) Token() string {
	return a.jar.Value(token.CookieName)
}

type userEnvelope struct {
	User models.Identity `json:"user"`
}

type sessionEnvelope struct {
	Authenticated bool            `json:"authenticated"`
	User          models.Identity `json:"user"`
}

type errorEnvelope struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details"`
}

// Session asks the server who the session cookie belongs to. It gives up
// after the session timeout.
func (a *API) Session(ctx context.Context) (models.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.sessionTimeout)
	defer cancel()

	var body sessionEnvelope
	if err := a.do(ctx, http.MethodGet, "/api/auth/session", nil, http.StatusOK, &body); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return models.Identity{}, ErrNotAuthenticated
		}
		return models.Identity{}, err
	}
	if !body.Authenticated || body.User.IsZero() {
		return models.Identity{}, ErrNotAuthenticated
	}
	return body.User, nil
}

// Login posts credentials. On success the server's cookie lands in the jar.
func (a *API) Login(ctx context.Context, email, password string) (models.Identity, error) {
	req := map[string]string{"email": email, "password": password}
	var body userEnvelope
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", req, http.StatusOK, &body); err != nil {
		return models.Identity{}, err
	}
	return body.User, nil
}

// Register creates an account. It does not log in.
func (a *API) Register(ctx context.Context, name, email, password string) (models.Identity, error) {
	req := map[string]string{"name": name, "email": email, "password": password}
	var body userEnvelope
	if err := a.do(ctx, http.MethodPost, "/api/auth/register", req, http.StatusCreated, &body); err != nil {
		return models.Identity{}, err
	}
	return body.User, nil
}

// Logout asks the server to delete the session cookie. When the server does
// not answer with success the jar is cleared locally instead.
func (a *API) Logout(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/api/auth/logout", nil, http.StatusOK, nil)
	if err != nil {
		a.jar.Clear()
	}
	return err
}

func (a *API) do(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		var e errorEnvelope
		if json.Unmarshal(raw, &e) == nil {
			apiErr.Message = e.Error
			apiErr.Details = e.Details
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
