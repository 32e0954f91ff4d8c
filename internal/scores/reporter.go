package scores

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reporter receives the final score sheet of a finished match. Reporting is
// fire-and-forget from the caller's point of view: room teardown never blocks
// on it and never fails because of it.
type Reporter interface {
	Report(ctx context.Context, roomID int, finalScores map[string]int) error
}

// NopReporter discards score sheets. Used when no database is configured.
type NopReporter struct{}

func (NopReporter) Report(context.Context, int, map[string]int) error {
	return nil
}

const createScoresTable = `
	CREATE TABLE IF NOT EXISTS match_scores (
		id          BIGSERIAL PRIMARY KEY,
		room_id     BIGINT NOT NULL,
		player      TEXT NOT NULL,
		score       BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresReporter persists final scores to Postgres, one row per player.
type PostgresReporter struct {
	pool *pgxpool.Pool
}

func NewPostgresReporter(ctx context.Context, databaseURL string) (*PostgresReporter, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := pool.Exec(ctx, createScoresTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure match_scores table: %w", err)
	}

	return &PostgresReporter{pool: pool}, nil
}

func (r *PostgresReporter) Report(ctx context.Context, roomID int, finalScores map[string]int) error {
	if len(finalScores) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for player, score := range finalScores {
		batch.Queue(
			`INSERT INTO match_scores (room_id, player, score) VALUES ($1, $2, $3)`,
			roomID, player, score,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record scores for room %d: %w", roomID, err)
	}

	return nil
}

func (r *PostgresReporter) Close() {
	r.pool.Close()
}
