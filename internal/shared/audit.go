package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog represents a record stored in role_audit_logs.
type AuditLog struct {
	ID         int64          `json:"id"`
	ActorID    string         `json:"user_id,omitempty"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Changes    map[string]any `json:"changes"`
	TenantID   string         `json:"tenant_id,omitempty"`
	At         time.Time      `json:"created_at"`
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, log AuditLog) error
}

// AuditLogger writes records into role_audit_logs.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the log entry.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.EntityType == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity_type/entity_id")
	}
	changes := log.Changes
	if changes == nil {
		changes = map[string]any{}
	}
	changesJSON, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO role_audit_logs (user_id, action, entity_type, entity_id, changes, tenant_id)
		VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, NULLIF($6, '')::uuid)`,
		log.ActorID, log.Action, log.EntityType, log.EntityID, changesJSON, log.TenantID)
	return err
}

// List returns the most recent audit entries, optionally filtered by entity.
func (l *AuditLogger) List(ctx context.Context, entityID string, limit int) ([]AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.pool.Query(ctx, `SELECT id, COALESCE(user_id::text, ''), action, entity_type, entity_id, changes, COALESCE(tenant_id::text, ''), created_at
		FROM role_audit_logs
		WHERE ($1 = '' OR entity_id = $1)
		ORDER BY created_at DESC
		LIMIT $2`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []AuditLog
	for rows.Next() {
		var entry AuditLog
		var raw []byte
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.Action, &entry.EntityType, &entry.EntityID, &raw, &entry.TenantID, &entry.At); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Changes); err != nil {
				return nil, err
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
