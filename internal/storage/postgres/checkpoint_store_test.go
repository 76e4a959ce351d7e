package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/replyrank/crawler/internal/crawl"
)

func TestLatestReturnsNewestCheckpoint(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM checkpoints\s+ORDER BY started_at DESC`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "started_at", "completed_at", "crawled_lists", "crawled_users",
		}).AddRow("2024-01-01T00:00:00Z", started, nil, []string{"list-1"}, []string{"user-a", "user-b"}))

	store := NewCheckpointStoreWithPool(mock)
	cp, err := store.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2024-01-01T00:00:00Z", cp.ID)
	require.True(t, cp.Active())
	require.Equal(t, []string{"list-1"}, cp.CrawledLists)
	require.True(t, cp.HasCrawledUser("user-a"))
	require.False(t, cp.HasCrawledUser("user-z"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestMapsNoRowsToNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM checkpoints").WillReturnError(pgx.ErrNoRows)

	store := NewCheckpointStoreWithPool(mock)
	_, err = store.Latest(context.Background())
	require.ErrorIs(t, err, crawl.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestCompletedFiltersActive(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := started.Add(2 * time.Hour)
	mock.ExpectQuery(`SELECT (.+) FROM checkpoints\s+WHERE completed_at IS NOT NULL`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "started_at", "completed_at", "crawled_lists", "crawled_users",
		}).AddRow("2024-01-01T00:00:00Z", started, &completed, []string{}, []string{}))

	store := NewCheckpointStoreWithPool(mock)
	cp, err := store.LatestCompleted(context.Background())
	require.NoError(t, err)
	require.False(t, cp.Active())
	require.Equal(t, completed, *cp.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := crawl.Checkpoint{
		ID:           crawl.CheckpointID(started),
		StartedAt:    started,
		CrawledLists: []string{},
		CrawledUsers: []string{},
	}
	mock.ExpectExec("INSERT INTO checkpoints").
		WithArgs(cp.ID, cp.StartedAt, cp.CompletedAt, cp.CrawledLists, cp.CrawledUsers).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewCheckpointStoreWithPool(mock)
	require.NoError(t, store.Create(context.Background(), cp))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCrawledUserIsSetUnion(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// First append lands; the duplicate matches no row thanks to the guard,
	// and that is still a success.
	mock.ExpectExec(`UPDATE checkpoints\s+SET crawled_users = array_append`).
		WithArgs("cp-1", "user-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE checkpoints\s+SET crawled_users = array_append`).
		WithArgs("cp-1", "user-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewCheckpointStoreWithPool(mock)
	require.NoError(t, store.AddCrawledUser(context.Background(), "cp-1", "user-a"))
	require.NoError(t, store.AddCrawledUser(context.Background(), "cp-1", "user-a"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCrawledListIsSetUnion(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`UPDATE checkpoints\s+SET crawled_lists = array_append`).
		WithArgs("cp-1", "list-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewCheckpointStoreWithPool(mock)
	require.NoError(t, store.AddCrawledList(context.Background(), "cp-1", "list-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteFinalizesOnce(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE checkpoints\s+SET completed_at = \$2\s+WHERE id = \$1 AND completed_at IS NULL`).
		WithArgs("cp-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE checkpoints\s+SET completed_at`).
		WithArgs("cp-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	store := NewCheckpointStoreWithPool(mock)
	require.NoError(t, store.Complete(context.Background(), "cp-1", at))

	// A second completion matches no active row.
	err = store.Complete(context.Background(), "cp-1", at)
	require.ErrorIs(t, err, crawl.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
