package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyrank/crawler/internal/crawl"
)

// TweetStore implements crawl.TweetStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE tweets (
//	    id                  TEXT PRIMARY KEY,
//	    author_id           TEXT NOT NULL,
//	    in_reply_to_user_id TEXT,
//	    text                TEXT NOT NULL,
//	    created_at          TIMESTAMPTZ NOT NULL,
//	    referenced_id        TEXT NOT NULL,
//	    referenced_author_id TEXT NOT NULL,
//	    referenced_text      TEXT NOT NULL,
//	    sentiment           DOUBLE PRECISION,
//	    embedding           REAL[]
//	);
//	CREATE INDEX tweets_unscored_idx ON tweets (created_at) WHERE sentiment IS NULL;
type TweetStore struct {
	pool Pool
}

// NewTweetStore connects a TweetStore to the given DSN.
func NewTweetStore(ctx context.Context, dsn string) (*TweetStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &TweetStore{pool: pool}, nil
}

// NewTweetStoreWithPool wraps an existing pool (used by tests).
func NewTweetStoreWithPool(pool Pool) *TweetStore {
	return &TweetStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *TweetStore) Close() {
	s.pool.Close()
}

// upsertTweetSQL overwrites crawl-owned columns on conflict and leaves
// sentiment and embedding alone: those belong to the scoring service.
const upsertTweetSQL = `
	INSERT INTO tweets (
		id, author_id, in_reply_to_user_id, text, created_at,
		referenced_id, referenced_author_id, referenced_text
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		author_id = EXCLUDED.author_id,
		in_reply_to_user_id = EXCLUDED.in_reply_to_user_id,
		text = EXCLUDED.text,
		created_at = EXCLUDED.created_at,
		referenced_id = EXCLUDED.referenced_id,
		referenced_author_id = EXCLUDED.referenced_author_id,
		referenced_text = EXCLUDED.referenced_text;
`

// UpsertBatch writes the batch inside one transaction, so the chunk the
// persister hands over commits atomically.
func (s *TweetStore) UpsertBatch(ctx context.Context, tweets []crawl.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tweet batch: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, t := range tweets {
		if t.Referenced == nil {
			return fmt.Errorf("tweet %s has no referenced tweet", t.ID)
		}
		_, err := tx.Exec(ctx, upsertTweetSQL,
			t.ID,
			t.AuthorID,
			nullable(t.InReplyToUserID),
			t.Text,
			t.CreatedAt,
			t.Referenced.ID,
			t.Referenced.AuthorID,
			t.Referenced.Text,
		)
		if err != nil {
			return fmt.Errorf("upsert tweet %s: %w", t.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tweet batch: %w", err)
	}
	return nil
}

// ListUnscored returns tweets the scoring service has not processed yet,
// oldest first.
func (s *TweetStore) ListUnscored(ctx context.Context, limit int) ([]crawl.Tweet, error) {
	query := `
		SELECT id, author_id, in_reply_to_user_id, text, created_at,
		       referenced_id, referenced_author_id, referenced_text,
		       sentiment, embedding
		FROM tweets
		WHERE sentiment IS NULL
		ORDER BY created_at
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored tweets: %w", err)
	}
	defer rows.Close()

	var out []crawl.Tweet
	for rows.Next() {
		var (
			t         crawl.Tweet
			ref       crawl.ReferencedTweet
			inReplyTo *string
		)
		err := rows.Scan(
			&t.ID,
			&t.AuthorID,
			&inReplyTo,
			&t.Text,
			&t.CreatedAt,
			&ref.ID,
			&ref.AuthorID,
			&ref.Text,
			&t.Sentiment,
			&t.Embedding,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tweet row: %w", err)
		}
		if inReplyTo != nil {
			t.InReplyToUserID = *inReplyTo
		}
		t.Referenced = &ref
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tweet rows: %w", err)
	}
	return out, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
