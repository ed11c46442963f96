package callqueue

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"callcenter-routing/internal/telephony"
	"callcenter-routing/pkg/utils"
)

// PostgresRepo persists call queue items in Postgres (pgx stdlib driver).
//
// Schema (table call_queue_items):
//   id TEXT PRIMARY KEY,
//   tenant_id TEXT NOT NULL,
//   provider_type TEXT NOT NULL,
//   external_call_id TEXT NOT NULL,
//   phone_number_id TEXT,
//   direction TEXT NOT NULL,
//   placed_by TEXT,
//   caller_phone TEXT, caller_name TEXT, caller_address TEXT,
//   priority TEXT NOT NULL, call_type TEXT NOT NULL,
//   status TEXT NOT NULL, provider_status TEXT,
//   answered_by TEXT, transferred_to TEXT,
//   answered_at TIMESTAMPTZ, transferred_at TIMESTAMPTZ, completed_at TIMESTAMPTZ,
//   queue_position INT, wait_time_seconds INT,
//   duration_seconds INT NOT NULL DEFAULT 0, recording_url TEXT,
//   created_at TIMESTAMPTZ NOT NULL, updated_at TIMESTAMPTZ NOT NULL,
//   UNIQUE (provider_type, external_call_id)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const itemColumns = `id, tenant_id, provider_type, external_call_id, phone_number_id,
direction, placed_by, caller_phone, caller_name, caller_address,
priority, call_type, status, provider_status, answered_by, transferred_to,
answered_at, transferred_at, completed_at, queue_position, wait_time_seconds,
duration_seconds, recording_url, created_at, updated_at`

func (r *PostgresRepo) Insert(ctx context.Context, item CallQueueItem) error {
	if item.ID == "" || item.TenantID == "" {
		return ErrInvalidArgument
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO call_queue_items (`+itemColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`,
		item.ID, item.TenantID, string(item.ProviderType), item.ExternalCallID, nullStr(item.PhoneNumberID),
		string(item.Direction), nullStr(item.PlacedBy), item.CallerPhone, nullStr(item.CallerName), nullStr(item.CallerAddress),
		string(item.Priority), string(item.CallType), string(item.Status), nullStr(item.ProviderStatus),
		nullStr(item.AnsweredBy), nullStr(item.TransferredTo),
		nullTime(item.AnsweredAt), nullTime(item.TransferredAt), nullTime(item.CompletedAt),
		nullInt(item.QueuePosition), nullInt(item.WaitTimeSeconds),
		item.DurationSeconds, nullStr(item.RecordingURL), item.CreatedAt, item.UpdatedAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicateCall
	}
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (CallQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+itemColumns+` FROM call_queue_items WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	return scanItem(row)
}

func (r *PostgresRepo) GetByExternal(ctx context.Context, pt telephony.ProviderType, externalCallID string) (CallQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+itemColumns+` FROM call_queue_items WHERE provider_type = $1 AND external_call_id = $2`,
		string(pt), externalCallID)
	return scanItem(row)
}

func (r *PostgresRepo) Update(ctx context.Context, item CallQueueItem) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE call_queue_items SET
  phone_number_id=$3, caller_phone=$4, caller_name=$5, caller_address=$6,
  priority=$7, call_type=$8, status=$9, provider_status=$10,
  answered_by=$11, transferred_to=$12,
  answered_at=$13, transferred_at=$14, completed_at=$15,
  queue_position=$16, wait_time_seconds=$17,
  duration_seconds=$18, recording_url=$19, updated_at=$20
WHERE id=$1 AND tenant_id=$2`,
		item.ID, item.TenantID, nullStr(item.PhoneNumberID), item.CallerPhone, nullStr(item.CallerName), nullStr(item.CallerAddress),
		string(item.Priority), string(item.CallType), string(item.Status), nullStr(item.ProviderStatus),
		nullStr(item.AnsweredBy), nullStr(item.TransferredTo),
		nullTime(item.AnsweredAt), nullTime(item.TransferredAt), nullTime(item.CompletedAt),
		nullInt(item.QueuePosition), nullInt(item.WaitTimeSeconds),
		item.DurationSeconds, nullStr(item.RecordingURL), item.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClaimAnswer expresses the ownership compare-and-set as a guarded UPDATE so
// two concurrent answers cannot both match.
func (r *PostgresRepo) ClaimAnswer(ctx context.Context, tenantID, id, agentID string, at time.Time) (CallQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE call_queue_items SET
  status = 'answered', answered_by = $3, answered_at = $4, updated_at = $4
WHERE id = $1 AND tenant_id = $2
  AND status IN ('queued','ringing') AND answered_by IS NULL
RETURNING `+itemColumns, id, tenantID, agentID, at)

	item, err := scanItem(row)
	if errors.Is(err, ErrNotFound) {
		// Distinguish "gone" from "lost the race" by checking existence.
		if _, getErr := r.Get(ctx, tenantID, id); getErr == nil {
			return CallQueueItem{}, errClaimFailed
		}
		return CallQueueItem{}, ErrNotFound
	}
	return item, err
}

func (r *PostgresRepo) ListLive(ctx context.Context, tenantID string) ([]CallQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+itemColumns+` FROM call_queue_items
WHERE tenant_id = $1 AND status IN ('queued','ringing')`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallQueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) UpdatePositions(ctx context.Context, tenantID string, positions map[string]int, at time.Time) error {
	if len(positions) == 0 {
		return nil
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for id, pos := range positions {
			res, err := tx.ExecContext(ctx, `
UPDATE call_queue_items SET queue_position = $3, updated_at = $4
WHERE id = $1 AND tenant_id = $2`, id, tenantID, pos, at)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotFound
			}
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (CallQueueItem, error) {
	var item CallQueueItem
	var providerType, direction, priority, callType, status string
	var phoneNumberID, placedBy, callerName, callerAddress, providerStatus, answeredBy, transferredTo, recordingURL sql.NullString
	var answeredAt, transferredAt, completedAt sql.NullTime
	var queuePosition, waitTime sql.NullInt64

	err := row.Scan(
		&item.ID, &item.TenantID, &providerType, &item.ExternalCallID, &phoneNumberID,
		&direction, &placedBy, &item.CallerPhone, &callerName, &callerAddress,
		&priority, &callType, &status, &providerStatus, &answeredBy, &transferredTo,
		&answeredAt, &transferredAt, &completedAt, &queuePosition, &waitTime,
		&item.DurationSeconds, &recordingURL, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CallQueueItem{}, ErrNotFound
	}
	if err != nil {
		return CallQueueItem{}, err
	}

	item.ProviderType = telephony.ProviderType(providerType)
	item.Direction = Direction(direction)
	item.Priority = Priority(priority)
	item.CallType = CallType(callType)
	item.Status = Status(status)
	item.PhoneNumberID = phoneNumberID.String
	item.PlacedBy = placedBy.String
	item.CallerName = callerName.String
	item.CallerAddress = callerAddress.String
	item.ProviderStatus = providerStatus.String
	item.AnsweredBy = answeredBy.String
	item.TransferredTo = transferredTo.String
	item.RecordingURL = recordingURL.String
	if answeredAt.Valid {
		item.AnsweredAt = &answeredAt.Time
	}
	if transferredAt.Valid {
		item.TransferredAt = &transferredAt.Time
	}
	if completedAt.Valid {
		item.CompletedAt = &completedAt.Time
	}
	if queuePosition.Valid {
		v := int(queuePosition.Int64)
		item.QueuePosition = &v
	}
	if waitTime.Valid {
		v := int(waitTime.Int64)
		item.WaitTimeSeconds = &v
	}
	return item, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
