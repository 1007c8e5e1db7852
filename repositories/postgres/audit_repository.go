package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/nurksbr/siber-sub001/models"
	"github.com/nurksbr/siber-sub001/repositories"
	"go.uber.org/zap"
)

const auditColumns = `id, user_id, email, action, details, ip_address, user_agent, request_id, timestamp`

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Insert creates a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	query := `
		INSERT INTO auth_audit_logs (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var details interface{}
	if len(log.Details) > 0 {
		details = []byte(log.Details)
	}

	executor := GetExecutor(ctx, r.db, nil)
	_, err := executor.ExecContext(ctx, query,
		log.ID,
		nullableUUID(log.UserID),
		log.Email,
		log.Action,
		details,
		log.IPAddress,
		log.UserAgent,
		log.RequestID,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// GetByUserID retrieves the newest audit entries for a user
func (r *AuditRepository) GetByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM auth_audit_logs
		WHERE user_id = $1 ORDER BY timestamp DESC LIMIT $2`

	executor := GetExecutor(ctx, r.db, nil)
	rows, err := executor.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	return scanAuditLogs(rows)
}

// GetRecent retrieves the newest audit entries
func (r *AuditRepository) GetRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM auth_audit_logs
		ORDER BY timestamp DESC LIMIT $1`

	executor := GetExecutor(ctx, r.db, nil)
	rows, err := executor.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	return scanAuditLogs(rows)
}

func scanAuditLogs(rows *sql.Rows) ([]*models.AuditLog, error) {
	defer rows.Close()

	var logs []*models.AuditLog
	for rows.Next() {
		var (
			log     models.AuditLog
			userID  uuid.NullUUID
			details []byte
		)
		if err := rows.Scan(
			&log.ID,
			&userID,
			&log.Email,
			&log.Action,
			&details,
			&log.IPAddress,
			&log.UserAgent,
			&log.RequestID,
			&log.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		if userID.Valid {
			id := userID.UUID
			log.UserID = &id
		}
		log.Details = details
		logs = append(logs, &log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return logs, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
