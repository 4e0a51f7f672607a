package endpoint

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	ep, err := Normalize("  ws://10.0.0.2 ", " 9000 ")
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.2:9000", ep.URL())

	for _, tc := range [][2]string{{"", "8080"}, {"ws://localhost", " "}, {"", ""}} {
		_, err := Normalize(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrIncomplete)
	}

	for _, tc := range [][2]string{
		{"localhost", "8080"},
		{"http://localhost", "8080"},
		{"ws://", "8080"},
		{"ws://localhost:9000", "8080"},
		{"ws://localhost/feed", "8080"},
		{"ws://localhost", "http"},
		{"ws://localhost", "70000"},
	} {
		_, err := Normalize(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrInvalid, "%s:%s", tc[0], tc[1])
		assert.NotErrorIs(t, err, ErrIncomplete)
	}

	ep, err = Normalize("wss://quotes.example.com", "443")
	require.NoError(t, err)
	assert.Equal(t, "wss://quotes.example.com:443", ep.URL())
}

func TestLoadNewestRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "address", "port", "created_at"}).
		AddRow(3, "ws://prod", "443", int64(1700000000000))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, address, port, created_at FROM server_config ORDER BY id DESC LIMIT 1`)).
		WillReturnRows(rows)

	ep, err := NewWithDB(db).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), ep.ID)
	assert.Equal(t, "ws://prod:443", ep.URL())
	assert.Equal(t, int64(1700000000000), ep.CreatedAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadEmptyIsNotConfigured(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, address, port, created_at FROM server_config").
		WillReturnRows(sqlmock.NewRows([]string{"id", "address", "port", "created_at"}))
	_, err = NewWithDB(db).Load(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)

	mock.ExpectQuery("SELECT id, address, port, created_at FROM server_config").
		WillReturnError(sql.ErrConnDone)
	_, err = NewWithDB(db).Load(context.Background())
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveInsertsTrimmedRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO server_config (address, port, created_at) VALUES (?, ?, ?)`)).
		WithArgs("ws://localhost", "8080", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(7, 1))

	ep, err := NewWithDB(db).Save(context.Background(), " ws://localhost ", "8080")
	require.NoError(t, err)
	assert.Equal(t, int64(7), ep.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIncompleteWritesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewWithDB(db).Save(context.Background(), "ws://localhost", "")
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSqliteRoundTrip(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "config.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.Load(ctx)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = s.Save(ctx, "ws://localhost", "8080")
	require.NoError(t, err)
	_, err = s.Save(ctx, "wss://quotes.example", "9443")
	require.NoError(t, err)

	ep, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "wss://quotes.example:9443", ep.URL())

	require.NoError(t, s.Close())
	_, err = s.Load(ctx)
	assert.Error(t, err)
}
