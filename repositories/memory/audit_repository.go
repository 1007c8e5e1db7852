package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
)

// DefaultAuditCapacity bounds the in-memory audit trail
const DefaultAuditCapacity = 1000

// AuditRepository keeps the newest audit entries in memory. Older entries are
// dropped once capacity is reached.
type AuditRepository struct {
	mu       sync.RWMutex
	logs     []models.AuditLog
	capacity int
}

// NewAuditRepository creates an in-memory audit repository holding at most
// capacity entries. Zero means DefaultAuditCapacity.
func NewAuditRepository(capacity int) *AuditRepository {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditRepository{capacity: capacity}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, *log)
	if over := len(r.logs) - r.capacity; over > 0 {
		r.logs = append(r.logs[:0:0], r.logs[over:]...)
	}
	return nil
}

func (r *AuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	return r.newest(limit, func(l *models.AuditLog) bool {
		return l.UserID != nil && *l.UserID == userID
	}), nil
}

func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	return r.newest(limit, func(*models.AuditLog) bool { return true }), nil
}

func (r *AuditRepository) newest(limit int, match func(*models.AuditLog) bool) []*models.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.AuditLog
	for i := len(r.logs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		l := r.logs[i]
		if match(&l) {
			out = append(out, &l)
		}
	}
	return out
}
