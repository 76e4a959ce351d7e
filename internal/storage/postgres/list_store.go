package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/replyrank/crawler/internal/crawl"
)

// ListStore implements crawl.ListStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE lists (
//	    id       TEXT PRIMARY KEY,
//	    name     TEXT NOT NULL,
//	    owner_id TEXT NOT NULL
//	);
//	CREATE TABLE list_members (
//	    list_id  TEXT NOT NULL REFERENCES lists (id),
//	    user_id  TEXT NOT NULL,
//	    username TEXT NOT NULL DEFAULT '',
//	    name     TEXT NOT NULL DEFAULT '',
//	    PRIMARY KEY (list_id, user_id)
//	);
type ListStore struct {
	pool Pool
}

// NewListStore connects a ListStore to the given DSN.
func NewListStore(ctx context.Context, dsn string) (*ListStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &ListStore{pool: pool}, nil
}

// NewListStoreWithPool wraps an existing pool (used by tests).
func NewListStoreWithPool(pool Pool) *ListStore {
	return &ListStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *ListStore) Close() {
	s.pool.Close()
}

// ListAll returns every list with its members, ordered so the crawl walks
// lists and members deterministically.
func (s *ListStore) ListAll(ctx context.Context) ([]crawl.List, error) {
	query := `
		SELECT l.id, l.name, l.owner_id, m.user_id, m.username, m.name
		FROM lists l
		LEFT JOIN list_members m ON m.list_id = l.id
		ORDER BY l.id, m.user_id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	var (
		out     []crawl.List
		current *crawl.List
	)
	for rows.Next() {
		var (
			listID, listName, ownerID  string
			userID, username, realName *string
		)
		if err := rows.Scan(&listID, &listName, &ownerID, &userID, &username, &realName); err != nil {
			return nil, fmt.Errorf("scan list row: %w", err)
		}
		if current == nil || current.ID != listID {
			out = append(out, crawl.List{ID: listID, Name: listName, OwnerID: ownerID})
			current = &out[len(out)-1]
		}
		if userID != nil {
			member := crawl.Member{ID: *userID}
			if username != nil {
				member.Username = *username
			}
			if realName != nil {
				member.Name = *realName
			}
			current.Members = append(current.Members, member)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate list rows: %w", err)
	}
	return out, nil
}

// Put replaces a list and its full membership in one transaction.
func (s *ListStore) Put(ctx context.Context, list crawl.List) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin list put: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	upsertList := `
		INSERT INTO lists (id, name, owner_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, owner_id = EXCLUDED.owner_id;
	`
	if _, err := tx.Exec(ctx, upsertList, list.ID, list.Name, list.OwnerID); err != nil {
		return fmt.Errorf("upsert list %s: %w", list.ID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM list_members WHERE list_id = $1;`, list.ID); err != nil {
		return fmt.Errorf("clear members of list %s: %w", list.ID, err)
	}
	insertMember := `
		INSERT INTO list_members (list_id, user_id, username, name)
		VALUES ($1, $2, $3, $4);
	`
	for _, m := range list.Members {
		if _, err := tx.Exec(ctx, insertMember, list.ID, m.ID, m.Username, m.Name); err != nil {
			return fmt.Errorf("insert member %s of list %s: %w", m.ID, list.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit list put: %w", err)
	}
	return nil
}
