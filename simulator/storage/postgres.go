// Package storage provides the engine's durable and cached collaborators:
// a Postgres candle store, a Redis latest-value cache, and in-memory
// fallbacks for when neither is configured.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/syntick/syntick/shared/config"
	"github.com/syntick/syntick/shared/models"
)

const (
	connectTimeout      = 10 * time.Second
	connectMaxElapsed   = 30 * time.Second
	defaultHistoryLimit = 500
	maxHistoryLimit     = 5000
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS candles (
		symbol     TEXT             NOT NULL,
		ts         BIGINT           NOT NULL,
		open       DOUBLE PRECISION NOT NULL,
		high       DOUBLE PRECISION NOT NULL,
		low        DOUBLE PRECISION NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		volume     DOUBLE PRECISION NOT NULL,
		mode       TEXT             NOT NULL,
		resolution TEXT             NOT NULL,
		PRIMARY KEY (symbol, resolution, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_candles_ts ON candles (ts)`,
	`CREATE TABLE IF NOT EXISTS manual_controls (
		id               UUID             PRIMARY KEY,
		direction        TEXT             NOT NULL,
		speed            DOUBLE PRECISION NOT NULL,
		intensity        DOUBLE PRECISION NOT NULL,
		start_time       TIMESTAMPTZ      NOT NULL,
		duration_seconds INTEGER          NOT NULL,
		created_at       TIMESTAMPTZ      NOT NULL DEFAULT now()
	)`,
}

// PostgresStore persists candles and manual-control history.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore connects with exponential backoff, tunes the pool and
// runs migrations.
func NewPostgresStore(cfg *config.InfraConfig) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = connectMaxElapsed
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		return db.PingContext(ctx)
	}
	if err := backoff.Retry(ping, strategy); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("✅ connected to PostgreSQL at %s:%d/%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	return s, nil
}

func (s *PostgresStore) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// SaveCandle upserts a finalized candle.
func (s *PostgresStore) SaveCandle(ctx context.Context, c models.Candle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO candles (symbol, ts, open, high, low, close, volume, mode, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (symbol, resolution, ts) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, mode = EXCLUDED.mode`,
		c.Symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume, c.Mode, c.Resolution,
	)
	if err != nil {
		return fmt.Errorf("insert candle: %w", err)
	}
	return nil
}

// LastCandle returns the most recent candle for the symbol/resolution, or
// nil when none is stored.
func (s *PostgresStore) LastCandle(ctx context.Context, symbol, resolution string) (*models.Candle, error) {
	var c models.Candle
	err := s.db.GetContext(ctx, &c, `
		SELECT symbol, ts, open, high, low, close, volume, mode, resolution
		FROM candles
		WHERE symbol = $1 AND resolution = $2
		ORDER BY ts DESC
		LIMIT 1`,
		symbol, resolution,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select last candle: %w", err)
	}
	return &c, nil
}

// History returns candles in [fromMs, toMs], timestamp ascending, capped by
// limit.
func (s *PostgresStore) History(ctx context.Context, symbol, resolution string, fromMs, toMs int64, limit int) ([]models.Candle, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	var candles []models.Candle
	err := s.db.SelectContext(ctx, &candles, `
		SELECT symbol, ts, open, high, low, close, volume, mode, resolution
		FROM candles
		WHERE symbol = $1 AND resolution = $2 AND ts BETWEEN $3 AND $4
		ORDER BY ts ASC
		LIMIT $5`,
		symbol, resolution, fromMs, toMs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	return candles, nil
}

// SaveControl appends a manual control to the history table.
func (s *PostgresStore) SaveControl(ctx context.Context, ctrl models.ManualControl) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_controls (id, direction, speed, intensity, start_time, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ctrl.ID, ctrl.Direction, ctrl.Speed, ctrl.Intensity, ctrl.StartTime, ctrl.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert manual control: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
