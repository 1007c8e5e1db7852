package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	user := models.NewUser("Ayşe", "a@x.com", "hash", models.RoleUser)

	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByEmail(ctx, " A@X.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)

	// returned copies do not alias the stored record
	got.Role = models.RoleAdmin
	again, _ := repo.GetByID(ctx, user.ID)
	assert.Equal(t, models.RoleUser, again.Role)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.GetByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUserRepository_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	require.NoError(t, repo.Create(ctx, models.NewUser("A", "a@x.com", "h", models.RoleUser)))
	err := repo.Create(ctx, models.NewUser("B", "A@X.COM", "h", models.RoleUser))
	assert.ErrorIs(t, err, repositories.ErrDuplicate)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRepository_UpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()
	a := models.NewUser("A", "a@x.com", "h", models.RoleUser)
	b := models.NewUser("B", "b@x.com", "h", models.RoleUser)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))

	b.Email = "a@x.com"
	assert.ErrorIs(t, repo.Update(ctx, b), repositories.ErrDuplicate)

	a.Email = "new@x.com"
	require.NoError(t, repo.Update(ctx, a))
	_, err := repo.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), repositories.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, a), repositories.ErrNotFound)
}

func TestUserRepository_ConcurrentCreateSameEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository()

	var wg sync.WaitGroup
	results := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.Create(ctx, models.NewUser("X", "race@x.com", "h", models.RoleUser))
		}()
	}
	wg.Wait()
	close(results)

	var ok int
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestTransactionManager(t *testing.T) {
	tm := NewTransactionManager()
	var seen bool
	err := tm.InTransaction(context.Background(), func(ctx context.Context, tx repositories.Transaction) error {
		got, ok := repositories.TransactionFromContext(ctx)
		seen = ok && got == tx
		return nil
	})
	require.NoError(t, err)
	assert.True(t, seen)
}
