package history

import (
	"context"
	"database/sql"
)

// PostgresRepo persists archived calls in Postgres (pgx stdlib driver).
//
// Schema (table call_history):
//   call_id TEXT PRIMARY KEY,
//   tenant_id TEXT NOT NULL,
//   provider TEXT NOT NULL,
//   external_call_id TEXT NOT NULL,
//   direction TEXT NOT NULL,
//   caller_phone TEXT NOT NULL DEFAULT '',
//   caller_name TEXT NOT NULL DEFAULT '',
//   call_type TEXT NOT NULL, priority TEXT NOT NULL, status TEXT NOT NULL,
//   answered_by TEXT NOT NULL DEFAULT '',
//   wait_time_seconds INT NOT NULL DEFAULT 0,
//   duration_seconds INT NOT NULL DEFAULT 0,
//   recording_url TEXT NOT NULL DEFAULT '',
//   created_at TIMESTAMPTZ NOT NULL, completed_at TIMESTAMPTZ
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const recordColumns = `call_id, tenant_id, provider, external_call_id, direction,
caller_phone, caller_name, call_type, priority, status, answered_by,
wait_time_seconds, duration_seconds, recording_url, created_at, completed_at`

// Append archives one terminal call. Re-archiving the same call id is a
// no-op so replayed terminal events stay idempotent.
func (r *PostgresRepo) Append(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO call_history (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
ON CONFLICT (call_id) DO NOTHING`,
		rec.CallID, rec.TenantID, rec.Provider, rec.ExternalCallID, rec.Direction,
		rec.CallerPhone, rec.CallerName, rec.CallType, rec.Priority, rec.Status, rec.AnsweredBy,
		rec.WaitTimeSeconds, rec.DurationSeconds, rec.RecordingURL, rec.CreatedAt, rec.CompletedAt,
	)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string, tr TimeRange) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+recordColumns+`
FROM call_history
WHERE tenant_id = $1 AND created_at >= $2 AND created_at <= $3
ORDER BY created_at ASC`,
		tenantID, tr.From, tr.To,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var completed sql.NullTime
		if err := rows.Scan(
			&rec.CallID, &rec.TenantID, &rec.Provider, &rec.ExternalCallID, &rec.Direction,
			&rec.CallerPhone, &rec.CallerName, &rec.CallType, &rec.Priority, &rec.Status, &rec.AnsweredBy,
			&rec.WaitTimeSeconds, &rec.DurationSeconds, &rec.RecordingURL, &rec.CreatedAt, &completed,
		); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			rec.CompletedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
