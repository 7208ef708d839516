package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AuditLog is one row of audit_logs. ActorName is filled on reads only.
type AuditLog struct {
	ID        int64
	ActorID   uuid.UUID
	ActorName string
	Action    string
	Entity    string
	EntityID  string
	Meta      map[string]any
	At        time.Time
}

// AuditDB is the subset of pgxpool.Pool the audit logger uses.
type AuditDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// AuditLogger appends to and reads from audit_logs.
type AuditLogger struct {
	db AuditDB
}

// NewAuditLogger wraps db.
func NewAuditLogger(db AuditDB) *AuditLogger {
	return &AuditLogger{db: db}
}

// Record appends entry. A zero At is stamped by the database.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.db == nil {
		return errors.New("audit: logger not configured")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == "" {
		return errors.New("audit: action, entity and entity id are required")
	}
	var meta []byte
	if len(entry.Meta) > 0 {
		var err error
		if meta, err = json.Marshal(entry.Meta); err != nil {
			return fmt.Errorf("audit: encode meta: %w", err)
		}
	}
	var actor, at any
	if entry.ActorID != uuid.Nil {
		actor = entry.ActorID
	}
	if !entry.At.IsZero() {
		at = entry.At
	}
	_, err := l.db.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, NOW()))`,
		actor, entry.Action, entry.Entity, entry.EntityID, meta, at)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// History returns the newest entries for one entity, newest first.
func (l *AuditLogger) History(ctx context.Context, entity, entityID string, limit int) ([]AuditLog, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("audit: logger not configured")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `
		SELECT a.id, a.actor_id, COALESCE(p.name, ''), a.action, a.entity, a.entity_id, a.meta, a.occurred_at
		FROM audit_logs a
		LEFT JOIN profiles p ON p.id = a.actor_id
		WHERE a.entity = $1 AND a.entity_id = $2
		ORDER BY a.occurred_at DESC, a.id DESC
		LIMIT $3`, entity, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: history: %w", err)
	}
	defer rows.Close()

	var out []AuditLog
	for rows.Next() {
		var (
			entry AuditLog
			actor *uuid.UUID
			meta  []byte
		)
		if err := rows.Scan(&entry.ID, &actor, &entry.ActorName, &entry.Action, &entry.Entity, &entry.EntityID, &meta, &entry.At); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if actor != nil {
			entry.ActorID = *actor
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &entry.Meta); err != nil {
				return nil, fmt.Errorf("audit: decode meta: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
