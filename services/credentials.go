package services

import (
	"context"
	"errors"
	"sync"

	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"go.uber.org/zap"
)

// CredentialVerifier turns an email/password pair into a user record.
// Unknown email and wrong password yield the same ErrInvalidCredentials.
type CredentialVerifier struct {
	users  repositories.UserRepository
	hasher PasswordHasher
	logger *zap.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialVerifier creates a verifier over the user repository
func NewCredentialVerifier(users repositories.UserRepository, hasher PasswordHasher, logger *zap.Logger) *CredentialVerifier {
	return &CredentialVerifier{
		users:  users,
		hasher: hasher,
		logger: logger,
	}
}

// Verify checks the credentials and returns the matching user
func (v *CredentialVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := v.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			// burn a comparison so unknown emails cost the same as wrong passwords
			_ = v.hasher.Compare(v.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, WrapInternal("failed to look up user", err)
	}

	if err := v.hasher.Compare(user.PasswordHash, password); err != nil {
		v.logger.Debug("password mismatch", zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

func (v *CredentialVerifier) dummy() string {
	v.dummyOnce.Do(func() {
		hash, err := v.hasher.Hash("not-a-real-password-0")
		if err != nil {
			v.logger.Warn("failed to prepare dummy hash", zap.Error(err))
			return
		}
		v.dummyHash = hash
	})
	return v.dummyHash
}
