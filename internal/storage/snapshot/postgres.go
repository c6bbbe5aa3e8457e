package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `
CREATE TABLE IF NOT EXISTS market_cache (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS market_cache_fetched_at_idx ON market_cache (fetched_at);
`

// Postgres stores entries in the market_cache table
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres opens a pool against dsn, pings it and ensures the table exists.
func ConnectPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnIdleTime = 30 * time.Second
	cfg.MaxConnLifetime = 5 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	p := NewPostgres(pool)
	if err := p.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the market_cache table if needed.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create market_cache: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		payload   []byte
		fetchedAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT payload, fetched_at FROM market_cache WHERE key = $1`,
		key,
	).Scan(&payload, &fetchedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Key: key, Payload: payload, FetchedAt: fetchedAt}, true, nil
}

func (p *Postgres) Put(ctx context.Context, entry Entry) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO market_cache (key, payload, fetched_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE
		 SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at`,
		entry.Key, []byte(entry.Payload), entry.FetchedAt,
	)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM market_cache WHERE key = $1`, key)
	return err
}

func (p *Postgres) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := p.pool.Exec(ctx, `DELETE FROM market_cache WHERE fetched_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
