package ledger

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var entryColumnNames = []string{
	"id", "tenant_id", "lane", "title", "summary", "status",
	"linked_output_id", "linked_output_url", "doc", "created_at", "updated_at",
}

func newPostgresMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, DialectPostgres), mock
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := NewSQLStore(nil, DialectPostgres)
	lite := NewSQLStore(nil, DialectSQLite)

	assert.Equal(t, "SELECT a FROM t WHERE id = $1 AND x = $2", pg.rebind("SELECT a FROM t WHERE id = ? AND x = ?"))
	assert.Equal(t, "SELECT a FROM t WHERE id = ?", lite.rebind("SELECT a FROM t WHERE id = ?"))
}

func TestSQLStore_Postgres(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	now := created.Add(time.Minute)

	t.Run("should lock row and update inside a transaction", func(t *testing.T) {
		store, mock := newPostgresMock(t)

		rows := sqlmock.NewRows(entryColumnNames).AddRow(
			"OUT-261015-K7QZ", "acme", "review", "Launch", "", "in_progress",
			"", "", `{"channels":["email"]}`, created.UnixNano(), created.UnixNano(),
		)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(store.rebind(querySelectEntry + " FOR UPDATE"))).
			WithArgs("OUT-261015-K7QZ").
			WillReturnRows(rows)
		mock.ExpectExec(regexp.QuoteMeta(store.rebind(queryUpdateEntry))).
			WithArgs("Launch", "", "in_review", "", "https://example.com/p", sqlmock.AnyArg(), now.UnixNano(), "OUT-261015-K7QZ").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		updated, err := store.Update(ctx, "OUT-261015-K7QZ", Patch{
			Status:          statusPtr(StatusInReview),
			LinkedOutputURL: strPtr("https://example.com/p"),
		}, now)
		require.NoError(t, err)
		assert.Equal(t, StatusInReview, updated.Status)
		assert.Equal(t, []string{"email"}, updated.Channels)
		require.Len(t, updated.History, 1)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should roll back invalid transition", func(t *testing.T) {
		store, mock := newPostgresMock(t)

		rows := sqlmock.NewRows(entryColumnNames).AddRow(
			"OUT-261015-K7QZ", "acme", "review", "Launch", "", "completed",
			"", "", `{}`, created.UnixNano(), created.UnixNano(),
		)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(store.rebind(querySelectEntry + " FOR UPDATE"))).
			WithArgs("OUT-261015-K7QZ").
			WillReturnRows(rows)
		mock.ExpectRollback()

		_, err := store.Update(ctx, "OUT-261015-K7QZ", Patch{Status: statusPtr(StatusInReview)}, now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should map missing row to not found", func(t *testing.T) {
		store, mock := newPostgresMock(t)

		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(store.rebind(querySelectEntry + " FOR UPDATE"))).
			WithArgs("OUT-261015-NONE").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := store.Update(ctx, "OUT-261015-NONE", Patch{Summary: strPtr("x")}, now)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should map unique violation to exists", func(t *testing.T) {
		store, mock := newPostgresMock(t)

		mock.ExpectExec(regexp.QuoteMeta(store.rebind(queryInsertEntry))).
			WillReturnError(&pq.Error{Code: "23505"})

		_, err := store.Create(ctx, newTestEntry("OUT-261015-K7QZ", LaneReview, created))
		assert.ErrorIs(t, err, ErrExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should get without locking", func(t *testing.T) {
		store, mock := newPostgresMock(t)

		rows := sqlmock.NewRows(entryColumnNames).AddRow(
			"CMP-261015-K7QZ", "acme", "campaign", "Promo", "", "drafted",
			"rec-1", "https://example.com/r", `{"pending":[{"tool":"schedule_send"}]}`, created.UnixNano(), now.UnixNano(),
		)
		mock.ExpectQuery(regexp.QuoteMeta(store.rebind(querySelectEntry))).
			WithArgs("CMP-261015-K7QZ").
			WillReturnRows(rows)

		got, err := store.Get(ctx, "CMP-261015-K7QZ")
		require.NoError(t, err)
		assert.Equal(t, LaneCampaign, got.Lane)
		assert.True(t, got.HasPending())
		assert.True(t, got.UpdatedAt.Equal(now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
