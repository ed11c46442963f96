package telephony

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PostgresResolver loads tenant provider records from Postgres (pgx stdlib
// driver). Records are written by the admin surface; this code only reads.
//
// Schema (table provider_configs):
//   id TEXT PRIMARY KEY,
//   tenant_id TEXT NOT NULL,
//   provider_type TEXT NOT NULL,
//   display_name TEXT NOT NULL DEFAULT '',
//   config JSONB NOT NULL DEFAULT '{}',
//   is_active BOOLEAN NOT NULL DEFAULT TRUE,
//   is_default BOOLEAN NOT NULL DEFAULT FALSE,
//   webhook_mode TEXT NOT NULL DEFAULT 'http',
//   UNIQUE (tenant_id, provider_type)
//
// Schema (table phone_numbers):
//   id TEXT PRIMARY KEY,
//   tenant_id TEXT NOT NULL,
//   provider_id TEXT NOT NULL REFERENCES provider_configs(id),
//   phone_number TEXT NOT NULL UNIQUE,
//   capabilities JSONB NOT NULL DEFAULT '[]',
//   is_default BOOLEAN NOT NULL DEFAULT FALSE,
//   is_active BOOLEAN NOT NULL DEFAULT TRUE
type PostgresResolver struct {
	db *sql.DB
}

func NewPostgresResolver(db *sql.DB) *PostgresResolver { return &PostgresResolver{db: db} }

const providerColumns = `id, tenant_id, provider_type, display_name, config, is_active, is_default, webhook_mode`

func (r *PostgresResolver) Provider(ctx context.Context, tenantID string, pt ProviderType) (ProviderConfig, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+providerColumns+`
FROM provider_configs
WHERE tenant_id = $1 AND provider_type = $2 AND is_active`,
		tenantID, pt,
	)
	return scanProvider(row)
}

func (r *PostgresResolver) DefaultProvider(ctx context.Context, tenantID string) (ProviderConfig, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+providerColumns+`
FROM provider_configs
WHERE tenant_id = $1 AND is_default AND is_active
LIMIT 1`,
		tenantID,
	)
	return scanProvider(row)
}

func (r *PostgresResolver) NumberByDialed(ctx context.Context, dialed string) (PhoneNumber, ProviderConfig, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT n.id, n.tenant_id, n.provider_id, n.phone_number, n.capabilities, n.is_default, n.is_active,
       p.id, p.tenant_id, p.provider_type, p.display_name, p.config, p.is_active, p.is_default, p.webhook_mode
FROM phone_numbers n
JOIN provider_configs p ON p.id = n.provider_id
WHERE n.phone_number = $1 AND n.is_active AND p.is_active`,
		dialed,
	)

	var (
		n       PhoneNumber
		cfg     ProviderConfig
		capsRaw []byte
		cfgRaw  []byte
	)
	err := row.Scan(
		&n.ID, &n.TenantID, &n.ProviderID, &n.Number, &capsRaw, &n.IsDefault, &n.IsActive,
		&cfg.ID, &cfg.TenantID, &cfg.Type, &cfg.DisplayName, &cfgRaw, &cfg.IsActive, &cfg.IsDefault, &cfg.WebhookMode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return PhoneNumber{}, ProviderConfig{}, ErrNumberNotFound
	}
	if err != nil {
		return PhoneNumber{}, ProviderConfig{}, err
	}
	if err := json.Unmarshal(capsRaw, &n.Capabilities); err != nil {
		return PhoneNumber{}, ProviderConfig{}, fmt.Errorf("telephony: decoding capabilities for number %s: %w", n.ID, err)
	}
	if err := json.Unmarshal(cfgRaw, &cfg.Config); err != nil {
		return PhoneNumber{}, ProviderConfig{}, fmt.Errorf("telephony: decoding config for provider %s: %w", cfg.ID, err)
	}
	return n, cfg, nil
}

// StreamProviders lists active providers that expect the process to hold a
// manager-stream connection (webhook mode event_stream or both). Used at
// startup to launch stream runners.
func (r *PostgresResolver) StreamProviders(ctx context.Context) ([]ProviderConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+providerColumns+`
FROM provider_configs
WHERE is_active AND webhook_mode IN ($1, $2)`,
		WebhookModeEventStream, WebhookModeBoth,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderConfig
	for rows.Next() {
		cfg, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (ProviderConfig, error) {
	var (
		cfg ProviderConfig
		raw []byte
	)
	err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.Type, &cfg.DisplayName, &raw, &cfg.IsActive, &cfg.IsDefault, &cfg.WebhookMode)
	if errors.Is(err, sql.ErrNoRows) {
		return ProviderConfig{}, ErrProviderNotFound
	}
	if err != nil {
		return ProviderConfig{}, err
	}
	if err := json.Unmarshal(raw, &cfg.Config); err != nil {
		return ProviderConfig{}, fmt.Errorf("telephony: decoding config for provider %s: %w", cfg.ID, err)
	}
	return cfg, nil
}
