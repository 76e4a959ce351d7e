package postgres

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/replyrank/crawler/internal/crawl"
)

func TestListAllGroupsMembersByList(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	u1, u2 := "user-a", "user-b"
	name1, name2 := "alice", "bobby"
	mock.ExpectQuery(`FROM lists l\s+LEFT JOIN list_members m`).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "owner_id", "user_id", "username", "name",
		}).
			AddRow("list-1", "Tech", "owner-1", &u1, &name1, nil).
			AddRow("list-1", "Tech", "owner-1", &u2, &name2, nil).
			AddRow("list-2", "Empty", "owner-1", nil, nil, nil))

	store := NewListStoreWithPool(mock)
	lists, err := store.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 2)

	require.Equal(t, "list-1", lists[0].ID)
	require.Len(t, lists[0].Members, 2)
	require.Equal(t, "user-a", lists[0].Members[0].ID)
	require.Equal(t, "alice", lists[0].Members[0].Username)

	// A list with no members still shows up, with an empty member slice.
	require.Equal(t, "list-2", lists[1].ID)
	require.Empty(t, lists[1].Members)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutReplacesMembershipTransactionally(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	list := crawl.List{
		ID:      "list-1",
		Name:    "Tech",
		OwnerID: "owner-1",
		Members: []crawl.Member{
			{ID: "user-a", Username: "alice", Name: "Alice"},
			{ID: "user-b", Username: "bobby", Name: "Bob"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO lists").
		WithArgs(list.ID, list.Name, list.OwnerID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM list_members").
		WithArgs(list.ID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	for _, m := range list.Members {
		mock.ExpectExec("INSERT INTO list_members").
			WithArgs(list.ID, m.ID, m.Username, m.Name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	store := NewListStoreWithPool(mock)
	require.NoError(t, store.Put(context.Background(), list))
	require.NoError(t, mock.ExpectationsWereMet())
}
