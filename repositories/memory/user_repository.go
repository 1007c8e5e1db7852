// Package memory holds process-local repository implementations used when no
// database is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
)

// UserRepository keeps users in a map guarded by a RWMutex
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
}

// NewUserRepository creates an empty in-memory user repository
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := models.NormalizeEmail(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return fmt.Errorf("user %s: %w", email, repositories.ErrDuplicate)
	}
	if _, ok := r.byID[user.ID]; ok {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrDuplicate)
	}

	stored := *user
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[models.NormalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("user by email: %w", repositories.ErrNotFound)
	}
	u := r.byID[id]
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, repositories.ErrNotFound)
	}

	email := models.NormalizeEmail(user.Email)
	if owner, taken := r.byEmail[email]; taken && owner != user.ID {
		return fmt.Errorf("user %s: %w", email, repositories.ErrDuplicate)
	}

	delete(r.byEmail, old.Email)
	stored := *user
	stored.Email = email
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored.ID
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, repositories.ErrNotFound)
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	return nil
}

func (r *UserRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// WithTx returns the repository itself; writes are applied immediately
func (r *UserRepository) WithTx(tx repositories.Transaction) repositories.UserRepository {
	return r
}
