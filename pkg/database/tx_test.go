package database

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lots SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		_, ok := TxFromContext(ctx)
		require.True(t, ok)
		_, err := Conn(ctx, db).ExecContext(ctx, "UPDATE lots SET status = $1", "tested")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	tx := NewTransactor(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxNestedJoinsOuter(t *testing.T) {
	db, mock := newMockDB(t)
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(outer context.Context) error {
		outerTx, _ := TxFromContext(outer)
		return tx.WithinTx(outer, func(inner context.Context) error {
			innerTx, ok := TxFromContext(inner)
			require.True(t, ok)
			require.Same(t, outerTx, innerTx)
			return nil
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnWithoutTxReturnsDB(t *testing.T) {
	db, _ := newMockDB(t)
	require.Equal(t, Executor(db), Conn(context.Background(), db))
}
