package history

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLReaderSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	reader := NewSQLReader(sqlx.NewDb(db, "sqlmock"))

	rows := sqlmock.NewRows([]string{"category", "type", "total", "count"}).
		AddRow("topup", "income", 7500, 2).
		AddRow("transfer_in", "income", 300, 1).
		AddRow("transfer_out", "expense", 1200, 3)
	mock.ExpectQuery(`SELECT category, type, COALESCE\(SUM\(amount\), 0\)::bigint AS total, COUNT\(\*\) AS count\s+FROM transactions\s+WHERE owner_id = \$1`).
		WithArgs("alice").
		WillReturnRows(rows)

	s, err := reader.Summary(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", s.OwnerID)
	assert.EqualValues(t, 7500, s.ToppedUp)
	assert.EqualValues(t, 300, s.Received)
	assert.EqualValues(t, 1200, s.Sent)
	assert.EqualValues(t, 6, s.Transactions)
	assert.Len(t, s.ByCategory, 3)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLReaderSummaryEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	reader := NewSQLReader(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectQuery(`FROM transactions`).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"category", "type", "total", "count"}))

	s, err := reader.Summary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, s.ByCategory)
	assert.Zero(t, s.Transactions)
}

func TestSQLReaderSummaryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	reader := NewSQLReader(sqlx.NewDb(db, "sqlmock"))

	boom := errors.New("connection reset")
	mock.ExpectQuery(`FROM transactions`).WillReturnError(boom)

	_, err = reader.Summary(context.Background(), "alice")
	assert.ErrorIs(t, err, boom)
}
