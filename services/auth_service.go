package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"github.com/nurksbr/siber-sub001/token"
	"github.com/nurksbr/siber-sub001/utils"
	"go.uber.org/zap"
)

// TokenCodec issues and verifies session tokens
type TokenCodec interface {
	Issue(identity models.Identity, ttl time.Duration) (string, error)
	Verify(tokenString string) (models.Identity, error)
}

// LoginRequest is the login payload
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// RegisterRequest is the registration payload
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72,password"`
}

// Session is the result of a successful login
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.Identity
}

// AuthService implements login, registration and session resolution
type AuthService struct {
	users    repositories.UserRepository
	txMgr    repositories.TransactionManager
	verifier *CredentialVerifier
	hasher   PasswordHasher
	codec    TokenCodec
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewAuthService creates a new auth service
func NewAuthService(
	users repositories.UserRepository,
	txMgr repositories.TransactionManager,
	hasher PasswordHasher,
	codec TokenCodec,
	ttl time.Duration,
	logger *zap.Logger,
) *AuthService {
	if ttl <= 0 {
		ttl = token.DefaultTTL
	}
	return &AuthService{
		users:    users,
		txMgr:    txMgr,
		verifier: NewCredentialVerifier(users, hasher, logger),
		hasher:   hasher,
		codec:    codec,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// SessionTTL returns the lifetime of issued sessions
func (s *AuthService) SessionTTL() time.Duration {
	return s.ttl
}

// Login verifies credentials and issues a session token
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	req.Email = models.NormalizeEmail(req.Email)
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, validationError(err)
	}

	user, err := s.verifier.Verify(ctx, req.Email, req.Password)
	if err != nil {
		if IsUnauthorizedError(err) {
			s.logger.Info("login rejected", zap.String("email", req.Email))
		}
		return nil, err
	}

	return s.IssueSession(user.Identity())
}

// IssueSession signs a token for identity
func (s *AuthService) IssueSession(identity models.Identity) (*Session, error) {
	issuedAt := s.now()
	signed, err := s.codec.Issue(identity, s.ttl)
	if err != nil {
		return nil, WrapInternal("failed to issue session token", err)
	}

	return &Session{
		Token:     signed,
		ExpiresAt: issuedAt.Add(s.ttl),
		User:      identity,
	}, nil
}

// Register creates a user with the default role. It does not log the user in.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = models.NormalizeEmail(req.Email)
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, validationError(err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}
	user := models.NewUser(req.Name, req.Email, hash, models.RoleUser)

	err = WithTransaction(ctx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) error {
		users := s.users.WithTx(tx)

		_, err := users.GetByEmail(ctx, user.Email)
		switch {
		case err == nil:
			return ErrDuplicateEmail
		case !errors.Is(err, repositories.ErrNotFound):
			return WrapInternal("failed to look up user", err)
		}

		if err := users.Create(ctx, user); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrDuplicateEmail
			}
			return WrapInternal("failed to create user", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()), zap.String("email", user.Email))
	return user, nil
}

// Resolve returns the identity behind a session token. The user is
// re-fetched so role and name changes apply immediately. Every failure is an
// unauthorized domain error.
func (s *AuthService) Resolve(ctx context.Context, tokenString string) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, ErrUnauthorized
	}

	claimed, err := s.codec.Verify(tokenString)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return models.Identity{}, ErrTokenExpired
		}
		return models.Identity{}, ErrInvalidToken
	}

	id, err := uuid.Parse(claimed.ID)
	if err != nil {
		return models.Identity{}, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			s.logger.Warn("session user lookup failed", zap.String("user_id", claimed.ID), zap.Error(err))
		}
		return models.Identity{}, ErrUnauthorized
	}

	return user.Identity(), nil
}

// EnsureUser creates the user if the email is not registered yet. Used for
// seeding an initial administrator.
func (s *AuthService) EnsureUser(ctx context.Context, name, email, password string, role models.UserRole) (*models.User, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, WrapInternal("failed to look up user", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, WrapInternal("failed to hash password", err)
	}
	user := models.NewUser(name, email, hash, role)
	if err := s.users.Create(ctx, user); err != nil {
		return nil, WrapInternal("failed to create user", err)
	}
	return user, nil
}

func validationError(err error) error {
	message := "Validation failed"
	if utils.FailedOnlyOn(err, "password", "password") {
		message = ErrPasswordTooWeak.Message
	}
	domainErr := NewDomainError(ErrorTypeValidation, message, err)
	for field, msg := range utils.GetValidationFields(err) {
		domainErr.WithDetail(field, msg)
	}
	return domainErr
}
