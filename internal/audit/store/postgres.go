package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ipguard/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS ratelimit_block_events (
	id          UUID PRIMARY KEY,
	event_type  TEXT        NOT NULL,
	client_key  TEXT        NOT NULL,
	class       TEXT        NOT NULL,
	reason      TEXT        NOT NULL,
	violations  BIGINT      NOT NULL,
	blocked_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ratelimit_block_events_client_key_idx
	ON ratelimit_block_events (client_key);
`

// EnsureSchema creates the audit table if needed.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create audit schema: %w", err)
	}

	return nil
}

// Postgres stores audit events in PostgreSQL.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL audit store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// SaveBlocked records the event. Redelivered events are ignored by ID.
func (p *Postgres) SaveBlocked(ctx context.Context, event *audit.BlockedEvent) error {
	query := `
		INSERT INTO ratelimit_block_events
			(id, event_type, client_key, class, reason, violations, blocked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := p.pool.Exec(ctx, query,
		event.ID,
		event.Type,
		event.ClientKey,
		event.Class,
		event.Reason,
		event.Violations,
		event.BlockedAt,
	)
	if err != nil {
		return fmt.Errorf("save blocked event: %w", err)
	}

	return nil
}

// CountForClient returns how many block events were recorded for a client.
func (p *Postgres) CountForClient(ctx context.Context, clientKey string) (int64, error) {
	var count int64

	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM ratelimit_block_events WHERE client_key = $1`,
		clientKey,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count blocked events: %w", err)
	}

	return count, nil
}

var _ audit.Store = (*Postgres)(nil)
