package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"github.com/nurksbr/siber-sub001/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditListResponse is the body of GET /api/admin/audit
type AuditListResponse struct {
	Entries []*models.AuditLog `json:"entries"`
}

// AuditHandler serves the authentication audit trail to administrators
type AuditHandler struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(repo repositories.AuditRepository, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList handles GET /api/admin/audit?user_id=&limit=
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		limit = min(n, maxAuditLimit)
	}

	var (
		entries []*models.AuditLog
		err     error
	)
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		userID, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			_ = utils.WriteBadRequest(w, "user_id must be a UUID", nil)
			return
		}
		entries, err = h.repo.GetByUserID(r.Context(), userID, limit)
	} else {
		entries, err = h.repo.GetRecent(r.Context(), limit)
	}
	if err != nil {
		h.logger.Error("failed to list audit entries", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	if entries == nil {
		entries = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, AuditListResponse{Entries: entries})
}
