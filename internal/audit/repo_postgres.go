package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo stores audit events in Postgres (pgx stdlib driver).
//
// Schema (table audit_events):
//   id TEXT PRIMARY KEY,
//   tenant_id TEXT NOT NULL,
//   type TEXT NOT NULL,
//   call_id TEXT NOT NULL DEFAULT '',
//   provider TEXT NOT NULL DEFAULT '',
//   agent_id TEXT NOT NULL DEFAULT '',
//   action TEXT NOT NULL DEFAULT '',
//   message TEXT NOT NULL DEFAULT '',
//   metadata TEXT NOT NULL DEFAULT '',
//   created_at TIMESTAMPTZ NOT NULL
//
// The table is INSERT-only; retention is handled by time partitioning, not
// by this code.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, tenant_id, type, call_id, provider, agent_id, action, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TenantID, e.Type, e.CallID, e.Provider, e.AgentID, e.Action, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
