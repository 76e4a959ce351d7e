// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyrank/crawler/internal/crawl"
)

// Pool is the subset of pgxpool.Pool the stores need; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// CheckpointStore implements crawl.CheckpointStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE checkpoints (
//	    id            TEXT PRIMARY KEY,
//	    started_at    TIMESTAMPTZ NOT NULL,
//	    completed_at  TIMESTAMPTZ,
//	    crawled_lists TEXT[] NOT NULL DEFAULT '{}',
//	    crawled_users TEXT[] NOT NULL DEFAULT '{}'
//	);
type CheckpointStore struct {
	pool Pool
}

// NewCheckpointStore connects a CheckpointStore to the given DSN.
func NewCheckpointStore(ctx context.Context, dsn string) (*CheckpointStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &CheckpointStore{pool: pool}, nil
}

// NewCheckpointStoreWithPool wraps an existing pool (used by tests).
func NewCheckpointStoreWithPool(pool Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *CheckpointStore) Close() {
	s.pool.Close()
}

const checkpointColumns = "id, started_at, completed_at, crawled_lists, crawled_users"

// Latest returns the most recent checkpoint by start time.
func (s *CheckpointStore) Latest(ctx context.Context) (crawl.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM checkpoints
		ORDER BY started_at DESC
		LIMIT 1;
	`
	return s.scanOne(ctx, query)
}

// LatestCompleted returns the most recently finalized checkpoint.
func (s *CheckpointStore) LatestCompleted(ctx context.Context) (crawl.Checkpoint, error) {
	query := `
		SELECT ` + checkpointColumns + `
		FROM checkpoints
		WHERE completed_at IS NOT NULL
		ORDER BY completed_at DESC
		LIMIT 1;
	`
	return s.scanOne(ctx, query)
}

func (s *CheckpointStore) scanOne(ctx context.Context, query string, args ...any) (crawl.Checkpoint, error) {
	var cp crawl.Checkpoint
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&cp.ID,
		&cp.StartedAt,
		&cp.CompletedAt,
		&cp.CrawledLists,
		&cp.CrawledUsers,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawl.Checkpoint{}, crawl.ErrNotFound
		}
		return crawl.Checkpoint{}, fmt.Errorf("query checkpoint: %w", err)
	}
	return cp, nil
}

// Create inserts a new checkpoint row.
func (s *CheckpointStore) Create(ctx context.Context, cp crawl.Checkpoint) error {
	query := `
		INSERT INTO checkpoints (id, started_at, completed_at, crawled_lists, crawled_users)
		VALUES ($1, $2, $3, $4, $5);
	`
	_, err := s.pool.Exec(ctx, query, cp.ID, cp.StartedAt, cp.CompletedAt, cp.CrawledLists, cp.CrawledUsers)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// AddCrawledUser appends the member to crawled_users in one statement.
// The guard makes the append a commutative set-union, so concurrent sibling
// updates within a batch cannot lose each other's writes.
func (s *CheckpointStore) AddCrawledUser(ctx context.Context, checkpointID, userID string) error {
	query := `
		UPDATE checkpoints
		SET crawled_users = array_append(crawled_users, $2)
		WHERE id = $1 AND NOT ($2 = ANY(crawled_users));
	`
	if _, err := s.pool.Exec(ctx, query, checkpointID, userID); err != nil {
		return fmt.Errorf("add crawled user: %w", err)
	}
	return nil
}

// AddCrawledList appends the list to crawled_lists in one statement.
func (s *CheckpointStore) AddCrawledList(ctx context.Context, checkpointID, listID string) error {
	query := `
		UPDATE checkpoints
		SET crawled_lists = array_append(crawled_lists, $2)
		WHERE id = $1 AND NOT ($2 = ANY(crawled_lists));
	`
	if _, err := s.pool.Exec(ctx, query, checkpointID, listID); err != nil {
		return fmt.Errorf("add crawled list: %w", err)
	}
	return nil
}

// Complete finalizes the checkpoint. Completing a missing or already
// finalized checkpoint returns crawl.ErrNotFound.
func (s *CheckpointStore) Complete(ctx context.Context, checkpointID string, at time.Time) error {
	query := `
		UPDATE checkpoints
		SET completed_at = $2
		WHERE id = $1 AND completed_at IS NULL;
	`
	tag, err := s.pool.Exec(ctx, query, checkpointID, at)
	if err != nil {
		return fmt.Errorf("complete checkpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return crawl.ErrNotFound
	}
	return nil
}
