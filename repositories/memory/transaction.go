package memory

import (
	"context"

	"github.com/nurksbr/siber-sub001/repositories"
)

// TransactionManager satisfies repositories.TransactionManager for the
// in-memory store. Individual repository calls are atomic; there is nothing
// to roll back.
type TransactionManager struct{}

// NewTransactionManager creates a no-op transaction manager
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

func (TransactionManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	tx := &transaction{}
	tx.ctx = repositories.ContextWithTransaction(ctx, tx)
	return tx, nil
}

func (m TransactionManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	if err := fn(tx.Context(), tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type transaction struct {
	ctx context.Context
}

func (t *transaction) Commit() error            { return nil }
func (t *transaction) Rollback() error          { return nil }
func (t *transaction) Context() context.Context { return t.ctx }
