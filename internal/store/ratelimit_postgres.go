package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/serroba/ipguard/internal/ratelimit"
)

// Timestamps are stored as BIGINT Unix nanoseconds: TIMESTAMPTZ keeps only
// microseconds and would not round-trip.
const rateLimitSchema = `
	CREATE TABLE IF NOT EXISTS ratelimit_windows (
		class      TEXT     NOT NULL,
		client_key TEXT     NOT NULL,
		stamps     BIGINT[] NOT NULL,
		PRIMARY KEY (class, client_key)
	);

	CREATE TABLE IF NOT EXISTS ratelimit_violations (
		client_key TEXT   PRIMARY KEY,
		count      BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ratelimit_blocks (
		client_key TEXT   PRIMARY KEY,
		blocked_at BIGINT NOT NULL
	);
`

// EnsureRateLimitSchema creates the rate limit tables if they do not exist.
func EnsureRateLimitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, rateLimitSchema)

	return err
}

// PostgresWindowStore is a PostgreSQL implementation of ratelimit.WindowStore.
// A window is one row, so each save replaces it atomically.
type PostgresWindowStore struct {
	pool *pgxpool.Pool
}

// NewPostgresWindowStore creates a new PostgreSQL-backed window store.
func NewPostgresWindowStore(pool *pgxpool.Pool) *PostgresWindowStore {
	return &PostgresWindowStore{pool: pool}
}

func (p *PostgresWindowStore) Load(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class) (ratelimit.Window, error) {
	query := `
		SELECT stamps
		FROM ratelimit_windows
		WHERE class = $1 AND client_key = $2
	`

	var stamps []int64

	err := p.pool.QueryRow(ctx, query, string(class), string(key)).Scan(&stamps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}

	return ratelimit.WindowFromUnixNanos(stamps), nil
}

func (p *PostgresWindowStore) Save(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class, w ratelimit.Window) error {
	if len(w) == 0 {
		return p.Delete(ctx, key, class)
	}

	query := `
		INSERT INTO ratelimit_windows (class, client_key, stamps)
		VALUES ($1, $2, $3)
		ON CONFLICT (class, client_key) DO UPDATE SET stamps = EXCLUDED.stamps
	`

	_, err := p.pool.Exec(ctx, query, string(class), string(key), w.UnixNanos())

	return err
}

func (p *PostgresWindowStore) Delete(ctx context.Context, key ratelimit.ClientKey, class ratelimit.Class) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM ratelimit_windows WHERE class = $1 AND client_key = $2`,
		string(class), string(key),
	)

	return err
}

func (p *PostgresWindowStore) Keys(ctx context.Context, class ratelimit.Class) ([]ratelimit.ClientKey, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT client_key FROM ratelimit_windows WHERE class = $1`,
		string(class),
	)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ratelimit.ClientKey, error) {
		var key string
		err := row.Scan(&key)

		return ratelimit.ClientKey(key), err
	})
}

func (p *PostgresWindowStore) Sizes(ctx context.Context, class ratelimit.Class) (map[ratelimit.ClientKey]int, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT client_key, cardinality(stamps) FROM ratelimit_windows WHERE class = $1`,
		string(class),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sizes := make(map[ratelimit.ClientKey]int)

	for rows.Next() {
		var (
			key  string
			size int
		)

		if err := rows.Scan(&key, &size); err != nil {
			return nil, err
		}

		sizes[ratelimit.ClientKey(key)] = size
	}

	return sizes, rows.Err()
}

// PostgresViolationStore is a PostgreSQL implementation of ratelimit.ViolationTracker.
type PostgresViolationStore struct {
	pool *pgxpool.Pool
}

// NewPostgresViolationStore creates a new PostgreSQL-backed violation tracker.
func NewPostgresViolationStore(pool *pgxpool.Pool) *PostgresViolationStore {
	return &PostgresViolationStore{pool: pool}
}

func (p *PostgresViolationStore) Increment(ctx context.Context, key ratelimit.ClientKey) (int64, error) {
	query := `
		INSERT INTO ratelimit_violations (client_key, count)
		VALUES ($1, 1)
		ON CONFLICT (client_key) DO UPDATE SET count = ratelimit_violations.count + 1
		RETURNING count
	`

	var count int64

	err := p.pool.QueryRow(ctx, query, string(key)).Scan(&count)

	return count, err
}

func (p *PostgresViolationStore) Get(ctx context.Context, key ratelimit.ClientKey) (int64, error) {
	var count int64

	err := p.pool.QueryRow(ctx,
		`SELECT count FROM ratelimit_violations WHERE client_key = $1`,
		string(key),
	).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}

		return 0, err
	}

	return count, nil
}

func (p *PostgresViolationStore) Reset(ctx context.Context, key ratelimit.ClientKey) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM ratelimit_violations WHERE client_key = $1`, string(key))

	return err
}

// PostgresBlockStore is a PostgreSQL implementation of ratelimit.BlockList.
type PostgresBlockStore struct {
	pool *pgxpool.Pool
}

// NewPostgresBlockStore creates a new PostgreSQL-backed block list.
func NewPostgresBlockStore(pool *pgxpool.Pool) *PostgresBlockStore {
	return &PostgresBlockStore{pool: pool}
}

func (p *PostgresBlockStore) IsBlocked(ctx context.Context, key ratelimit.ClientKey) (time.Time, bool, error) {
	var nanos int64

	err := p.pool.QueryRow(ctx,
		`SELECT blocked_at FROM ratelimit_blocks WHERE client_key = $1`,
		string(key),
	).Scan(&nanos)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, err
	}

	return time.Unix(0, nanos), true, nil
}

func (p *PostgresBlockStore) Block(ctx context.Context, key ratelimit.ClientKey, at time.Time) error {
	query := `
		INSERT INTO ratelimit_blocks (client_key, blocked_at)
		VALUES ($1, $2)
		ON CONFLICT (client_key) DO UPDATE SET blocked_at = EXCLUDED.blocked_at
	`

	_, err := p.pool.Exec(ctx, query, string(key), at.UnixNano())

	return err
}

func (p *PostgresBlockStore) Unblock(ctx context.Context, key ratelimit.ClientKey) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM ratelimit_blocks WHERE client_key = $1`, string(key))

	return err
}

func (p *PostgresBlockStore) ListBlocked(ctx context.Context) (map[ratelimit.ClientKey]time.Time, error) {
	rows, err := p.pool.Query(ctx, `SELECT client_key, blocked_at FROM ratelimit_blocks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocked := make(map[ratelimit.ClientKey]time.Time)

	for rows.Next() {
		var (
			key   string
			nanos int64
		)

		if err := rows.Scan(&key, &nanos); err != nil {
			return nil, err
		}

		blocked[ratelimit.ClientKey(key)] = time.Unix(0, nanos)
	}

	return blocked, rows.Err()
}

// NewPostgresStores returns a ratelimit.Stores backed by PostgreSQL.
func NewPostgresStores(pool *pgxpool.Pool) ratelimit.Stores {
	return ratelimit.Stores{
		Windows:    NewPostgresWindowStore(pool),
		Violations: NewPostgresViolationStore(pool),
		Blocks:     NewPostgresBlockStore(pool),
	}
}

// Compile-time checks.
var (
	_ ratelimit.WindowStore      = (*PostgresWindowStore)(nil)
	_ ratelimit.ViolationTracker = (*PostgresViolationStore)(nil)
	_ ratelimit.BlockList        = (*PostgresBlockStore)(nil)
)
