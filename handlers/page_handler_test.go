package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPageHandler(t *testing.T) {
	h := NewPageHandler(zap.NewNop())

	t.Run("page shell", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.Page("Profil")(w, httptest.NewRequest(http.MethodGet, "/profil", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "<h1>Profil</h1>")
	})

	t.Run("login keeps callback", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/giris?callbackUrl=%2Fpanel%3Fa%3D1", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `data-callback="/panel?a=1"`)
	})

	t.Run("callback is escaped", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/giris?callbackUrl=%22%3E%3Cscript%3E", nil))

		assert.NotContains(t, w.Body.String(), "<script>")
	})
}
