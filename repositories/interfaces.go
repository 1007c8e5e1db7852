package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint would be violated
	ErrDuplicate = errors.New("record already exists")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction
	// Automatically commits if function succeeds, rolls back on error
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Context returns the transaction context
	Context() context.Context
}

type transactionContextKey struct{}

// ContextWithTransaction returns a context carrying tx. Repositories pick it
// up so that calls made inside a transaction share it.
func ContextWithTransaction(ctx context.Context, tx Transaction) context.Context {
	return context.WithValue(ctx, transactionContextKey{}, tx)
}

// TransactionFromContext retrieves a transaction from the context if available
func TransactionFromContext(ctx context.Context) (Transaction, bool) {
	tx, ok := ctx.Value(transactionContextKey{}).(Transaction)
	return tx, ok
}

// UserRepository handles user data operations
type UserRepository interface {
	// Create creates a new user. Returns ErrDuplicate when the email is taken.
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by normalized email
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Update updates a user
	Update(ctx context.Context, user *models.User) error

	// Delete deletes a user
	Delete(ctx context.Context, id uuid.UUID) error

	// Count returns the number of stored users
	Count(ctx context.Context) (int, error)

	// WithTx returns a new repository instance bound to the transaction
	WithTx(tx Transaction) UserRepository
}

// AuditRepository stores the authentication audit trail. Entries are
// append-only.
type AuditRepository interface {
	// Insert stores a new audit entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// GetByUserID returns the newest entries for a user, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLog, error)

	// GetRecent returns the newest entries, newest first
	GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	Users UserRepository
	Audit AuditRepository
}
