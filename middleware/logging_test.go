package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name          string
		method        string
		path          string
		handlerStatus int
		write         bool
	}{
		{"GET request", http.MethodGet, "/profil", http.StatusOK, false},
		{"POST request", http.MethodPost, "/api/auth/register", http.StatusCreated, true},
		{"unauthorized", http.MethodGet, "/api/auth/session", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.InfoLevel)
			handler := Logging(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.write {
					w.WriteHeader(tt.handlerStatus)
				}
			}))

			req := httptest.NewRequest(tt.method, tt.path+"?callbackUrl=%2Fpanel", nil)
			req = req.WithContext(WithRequestID(req.Context(), "req-42"))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			entries := logs.FilterMessage("http_request").All()
			require.Len(t, entries, 1)
			fields := entries[0].ContextMap()
			assert.Equal(t, tt.method, fields["method"])
			assert.Equal(t, tt.path, fields["path"])
			assert.Equal(t, int64(tt.handlerStatus), fields["status_code"])
			assert.Equal(t, "req-42", fields["request_id"])
		})
	}
}
