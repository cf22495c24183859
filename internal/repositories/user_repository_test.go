package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

// The offline edge: last_seen must only move when the row was online.
// A repeated offline report keeps the earlier timestamp.
func TestUpdateStatusRepeatedOfflineKeepsLastSeen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	firstSeen := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	updateSQL := `UPDATE users\s+SET is_online=\$2, last_seen = CASE WHEN \$2 THEN last_seen WHEN is_online THEN NOW\(\) ELSE last_seen END`

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(updateSQL).
			WithArgs(1, false).
			WillReturnRows(sqlmock.NewRows([]string{"id", "is_online", "last_seen"}).
				AddRow(1, false, firstSeen))
	}

	for i := 0; i < 2; i++ {
		status, err := repo.UpdateStatus(context.Background(), 1, false)
		require.NoError(t, err)
		assert.False(t, status.IsOnline)
		require.NotNil(t, status.LastSeen)
		assert.True(t, status.LastSeen.Equal(firstSeen))
	}

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusOnlineLeavesLastSeen(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	lastSeen := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`CASE WHEN \$2 THEN last_seen WHEN is_online THEN NOW\(\) ELSE last_seen END`).
		WithArgs(1, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_online", "last_seen"}).
			AddRow(1, true, lastSeen))

	status, err := repo.UpdateStatus(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, status.IsOnline)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusUnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`UPDATE users`).
		WithArgs(99, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_online", "last_seen"}))

	_, err := repo.UpdateStatus(context.Background(), 99, true)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
