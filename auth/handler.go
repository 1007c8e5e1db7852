// Package auth serves the login, registration, session and logout endpoints
// and owns the session cookie.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/nurksbr/siber-sub001/handlers"
	"github.com/nurksbr/siber-sub001/middleware"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/services"
	"github.com/nurksbr/siber-sub001/services/audit"
	"github.com/nurksbr/siber-sub001/token"
	"github.com/nurksbr/siber-sub001/utils"
	"go.uber.org/zap"
)

// Service is the part of services.AuthService the handler needs
type Service interface {
	Login(ctx context.Context, req services.LoginRequest) (*services.Session, error)
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Resolve(ctx context.Context, token string) (models.Identity, error)
	SessionTTL() time.Duration
}

// Auditor records authentication events. *audit.AuditService implements it.
type Auditor interface {
	LogLoginSucceeded(identity models.Identity, meta audit.RequestMeta) error
	LogLoginFailed(email, reason string, meta audit.RequestMeta) error
	LogLogout(identity models.Identity, meta audit.RequestMeta) error
	LogRegistered(identity models.Identity, meta audit.RequestMeta) error
}

// UserResponse wraps the identity returned by login and registration
type UserResponse struct {
	User models.Identity `json:"user"`
}

// SessionResponse is the body of a successful session check
type SessionResponse struct {
	Authenticated bool            `json:"authenticated"`
	User          models.Identity `json:"user"`
}

// LogoutResponse is the body of a logout
type LogoutResponse struct {
	Success bool `json:"success"`
}

// Handler handles the cookie-based session flows
type Handler struct {
	service      Service
	auditor      Auditor
	secureCookie bool
	logger       *zap.Logger
}

// NewHandler creates a new auth handler. secureCookie sets the Secure flag
// on the session cookie and should be true in production.
func NewHandler(service Service, secureCookie bool, logger *zap.Logger) *Handler {
	return &Handler{
		service:      service,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// WithAuditor makes the handler record its events with a
func (h *Handler) WithAuditor(a Auditor) *Handler {
	h.auditor = a
	return h
}

// HandleLogin handles POST /api/auth/login
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		handlers.HandleDecodeError(w, err, h.logger)
		return
	}

	session, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.audit(func(a Auditor) error {
			return a.LogLoginFailed(req.Email, failureReason(err), requestMeta(r))
		})
		handlers.HandleServiceError(w, err, h.logger)
		return
	}

	h.setSessionCookie(w, session.Token)
	h.audit(func(a Auditor) error { return a.LogLoginSucceeded(session.User, requestMeta(r)) })

	h.logger.Info("user logged in",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("user_id", session.User.ID))

	if err := utils.WriteJSON(w, http.StatusOK, UserResponse{User: session.User}); err != nil {
		h.logger.Error("failed to write login response", zap.Error(err))
	}
}

// HandleRegister handles POST /api/auth/register. The new user is not
// logged in.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		handlers.HandleDecodeError(w, err, h.logger)
		return
	}

	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		handlers.HandleServiceError(w, err, h.logger)
		return
	}
	h.audit(func(a Auditor) error { return a.LogRegistered(user.Identity(), requestMeta(r)) })

	if err := utils.WriteJSON(w, http.StatusCreated, UserResponse{User: user.Identity()}); err != nil {
		h.logger.Error("failed to write register response", zap.Error(err))
	}
}

// HandleSession handles GET /api/auth/session. Only the session cookie is
// consulted.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.Resolve(r.Context(), middleware.CookieToken(r))
	if err != nil {
		h.logger.Debug("session not authenticated",
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Oturum bulunamadı")
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: identity}); err != nil {
		h.logger.Error("failed to write session response", zap.Error(err))
	}
}

// HandleMe handles GET /api/auth/me behind RequireAuth
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	if err := utils.WriteJSON(w, http.StatusOK, SessionResponse{Authenticated: true, User: identity}); err != nil {
		h.logger.Error("failed to write me response", zap.Error(err))
	}
}

// HandleLogout handles POST /api/auth/logout. It always clears the cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if h.auditor != nil {
		// best effort; logout never depends on the old session being valid
		identity, _ := h.service.Resolve(r.Context(), middleware.CookieToken(r))
		h.audit(func(a Auditor) error { return a.LogLogout(identity, requestMeta(r)) })
	}

	h.clearSessionCookie(w)

	if err := utils.WriteJSON(w, http.StatusOK, LogoutResponse{Success: true}); err != nil {
		h.logger.Error("failed to write logout response", zap.Error(err))
	}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.service.SessionTTL() / time.Second),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *Handler) audit(record func(Auditor) error) {
	if h.auditor == nil {
		return
	}
	if err := record(h.auditor); err != nil {
		h.logger.Warn("failed to record audit event", zap.Error(err))
	}
}

func requestMeta(r *http.Request) audit.RequestMeta {
	return audit.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}

func failureReason(err error) string {
	switch services.GetErrorType(err) {
	case services.ErrorTypeUnauthorized:
		return "invalid_credentials"
	case services.ErrorTypeValidation:
		return "invalid_request"
	default:
		return "error"
	}
}
