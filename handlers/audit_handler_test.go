package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingAuditRepo struct {
	*memory.AuditRepository
}

func (failingAuditRepo) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	return nil, errors.New("db down")
}

func TestAuditHandler_HandleList(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewAuditRepository(0)
	userID := uuid.New()
	identity := models.Identity{ID: userID.String(), Email: "a@x.com"}

	require.NoError(t, repo.Insert(ctx, models.NewAuditLog(models.AuditActionLoginFailed).WithEmail("z@x.com")))
	require.NoError(t, repo.Insert(ctx, models.NewAuditLog(models.AuditActionLoginSucceeded).WithIdentity(identity)))
	require.NoError(t, repo.Insert(ctx, models.NewAuditLog(models.AuditActionLogout).WithIdentity(identity)))

	handler := NewAuditHandler(repo, zap.NewNop())

	list := func(query string) (*httptest.ResponseRecorder, []interface{}) {
		w := httptest.NewRecorder()
		handler.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit"+query, nil))
		if w.Code != http.StatusOK {
			return w, nil
		}
		entries, _ := decodeData(t, w)["entries"].([]interface{})
		return w, entries
	}

	t.Run("recent", func(t *testing.T) {
		_, entries := list("")
		require.Len(t, entries, 3)
		assert.Equal(t, "logout", entries[0].(map[string]interface{})["action"])
	})

	t.Run("limit", func(t *testing.T) {
		_, entries := list("?limit=1")
		assert.Len(t, entries, 1)
	})

	t.Run("by user", func(t *testing.T) {
		_, entries := list("?user_id=" + userID.String())
		assert.Len(t, entries, 2)
	})

	t.Run("unknown user is empty, not null", func(t *testing.T) {
		w, entries := list("?user_id=" + uuid.NewString())
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotNil(t, entries)
		assert.Empty(t, entries)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, q := range []string{"?limit=0", "?limit=abc", "?user_id=nope"} {
			w, _ := list(q)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		h := NewAuditHandler(failingAuditRepo{repo}, zap.NewNop())
		w := httptest.NewRecorder()
		h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
