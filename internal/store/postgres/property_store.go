// Package postgres provides the Postgres-backed property store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chicagolots/lotbot/internal/lotbot"
)

// Config controls the Postgres connection pool used for property rows.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PropertyStore persists property records and post history in Postgres.
type PropertyStore struct {
	pool pgxPool
}

// New creates a Postgres-backed PropertyStore, verifying the connection and
// ensuring the schema exists.
func New(ctx context.Context, cfg Config) (*PropertyStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PropertyStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool pgxPool) (*PropertyStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PropertyStore{pool: pool}, nil
}

func (s *PropertyStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			pin TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			posted BOOLEAN NOT NULL DEFAULT FALSE,
			posted_at TIMESTAMPTZ,
			error_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS post_history (
			id BIGSERIAL PRIMARY KEY,
			pin TEXT NOT NULL REFERENCES properties(pin),
			posted_at TIMESTAMPTZ NOT NULL,
			post_id TEXT,
			image_path TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PropertyStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// NextEligible returns up to limit unposted properties with fewer than
// lotbot.MaxErrors failures, ordered by ascending PIN. Rows are not reserved:
// a crash before the outcome is recorded re-offers the same rows next run.
func (s *PropertyStore) NextEligible(ctx context.Context, limit int) ([]lotbot.Property, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pin, address, latitude, longitude, posted, posted_at, error_count, last_error
		FROM properties
		WHERE posted = FALSE AND error_count < $1
		ORDER BY pin
		LIMIT $2`, lotbot.MaxErrors, limit)
	if err != nil {
		return nil, &lotbot.PersistenceError{Op: "next eligible", Err: err}
	}
	defer rows.Close()

	var out []lotbot.Property
	for rows.Next() {
		var (
			p         lotbot.Property
			lat, lon  *float64
			postedAt  *time.Time
			lastError *string
		)
		if err := rows.Scan(&p.PIN, &p.Address, &lat, &lon, &p.Posted, &postedAt, &p.ErrorCount, &lastError); err != nil {
			return nil, &lotbot.PersistenceError{Op: "scan property", Err: err}
		}
		if lat != nil && lon != nil {
			p.Coordinates = &lotbot.Coordinates{Latitude: *lat, Longitude: *lon}
		}
		p.PostedAt = postedAt
		if lastError != nil {
			p.LastError = *lastError
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &lotbot.PersistenceError{Op: "next eligible", Err: err}
	}
	return out, nil
}

// RecordSuccess marks the property posted and appends the history entry in
// one transaction. A second call for the same PIN fails: exactly one history
// entry may exist per property.
func (s *PropertyStore) RecordSuccess(ctx context.Context, pin, postID, imagePath string, postedAt time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM post_history WHERE pin = $1)`, pin).Scan(&exists)
	if err != nil {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: err}
	}
	if exists {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: errors.New("post history entry already exists")}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE properties SET posted = TRUE, posted_at = $2 WHERE pin = $1`, pin, postedAt)
	if err != nil {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: errors.New("unknown PIN")}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO post_history (pin, posted_at, post_id, image_path) VALUES ($1, $2, $3, $4)`,
		pin, postedAt, postID, imagePath); err != nil {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &lotbot.PersistenceError{Op: "record success", PIN: pin, Err: err}
	}
	return nil
}

// RecordError increments the property's error counter and overwrites its
// last error message.
func (s *PropertyStore) RecordError(ctx context.Context, pin, message string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE properties SET error_count = error_count + 1, last_error = $2 WHERE pin = $1`,
		pin, message)
	if err != nil {
		return &lotbot.PersistenceError{Op: "record error", PIN: pin, Err: err}
	}
	return nil
}

// SaveCoordinates caches resolved coordinates on the property row so later
// retries of the same record skip geocoding.
func (s *PropertyStore) SaveCoordinates(ctx context.Context, pin string, coords lotbot.Coordinates) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE properties SET latitude = $2, longitude = $3 WHERE pin = $1`,
		pin, coords.Latitude, coords.Longitude)
	if err != nil {
		return &lotbot.PersistenceError{Op: "save coordinates", PIN: pin, Err: err}
	}
	return nil
}

// AddProperty upserts a property row. Address and coordinates are replaced
// on conflict; posting state and error counters are left untouched.
func (s *PropertyStore) AddProperty(ctx context.Context, p lotbot.Property) error {
	var lat, lon *float64
	if p.Coordinates != nil {
		lat = &p.Coordinates.Latitude
		lon = &p.Coordinates.Longitude
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO properties (pin, address, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pin) DO UPDATE
		SET address = EXCLUDED.address,
		    latitude = EXCLUDED.latitude,
		    longitude = EXCLUDED.longitude`,
		p.PIN, p.Address, lat, lon)
	if err != nil {
		return &lotbot.PersistenceError{Op: "add property", PIN: p.PIN, Err: err}
	}
	return nil
}

// Statistics returns the aggregate processing state of the store.
func (s *PropertyStore) Statistics(ctx context.Context) (lotbot.Statistics, error) {
	var stats lotbot.Statistics
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE posted),
		       COUNT(*) FILTER (WHERE NOT posted AND error_count >= $1)
		FROM properties`, lotbot.MaxErrors).
		Scan(&stats.Total, &stats.Posted, &stats.PermanentlyFailed)
	if err != nil {
		return lotbot.Statistics{}, &lotbot.PersistenceError{Op: "statistics", Err: err}
	}
	stats.Remaining = stats.Total - stats.Posted - stats.PermanentlyFailed
	return stats, nil
}
