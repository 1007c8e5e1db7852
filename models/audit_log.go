package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLoginSucceeded AuditAction = "login_succeeded"
	AuditActionLoginFailed    AuditAction = "login_failed"
	AuditActionLogout         AuditAction = "logout"
	AuditActionRegistered     AuditAction = "registered"
)

// AuditLog represents an audit trail entry for an authentication event
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Email     string          `json:"email,omitempty" db:"email"`
	Action    AuditAction     `json:"action" db:"action"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ip_address" db:"ip_address"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	RequestID string          `json:"request_id" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "auth_audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Timestamp: time.Now().UTC(),
	}
}

// WithIdentity sets the user ID and email from an identity. Identities with
// an unparseable ID only record the email.
func (a *AuditLog) WithIdentity(identity Identity) *AuditLog {
	if id, err := uuid.Parse(identity.ID); err == nil {
		a.UserID = &id
	}
	a.Email = identity.Email
	return a
}

// WithEmail sets the email the event is about
func (a *AuditLog) WithEmail(email string) *AuditLog {
	a.Email = NormalizeEmail(email)
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
