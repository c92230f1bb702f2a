package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

var testCfg = ReplaceConfig{
	Table:     "topics",
	KeyColumn: "catalog_id",
	Columns:   []string{"catalog_id", "topic_id"},
}

func TestReplaceForKey(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "topics" WHERE "catalog_id" =`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"topics"}, []string{"catalog_id", "topic_id"}).
		WillReturnResult(2)
	mock.ExpectCommit()

	rows := [][]any{{"A100", "T1"}, {"A100", "T2"}}
	require.NoError(t, ReplaceForKey(context.Background(), mock, testCfg, "A100", rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForKey_NoRowsSkipsCopy(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "topics"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCommit()

	require.NoError(t, ReplaceForKey(context.Background(), mock, testCfg, "A100", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForKey_SchemaQualifiedTable(t *testing.T) {
	mock := newMockPool(t)

	cfg := ReplaceConfig{
		Table:     "portfolio.topics",
		KeyColumn: "catalog_id",
		Columns:   []string{"catalog_id"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "portfolio"."topics"`).
		WithArgs("A100").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"portfolio", "topics"}, []string{"catalog_id"}).
		WillReturnResult(1)
	mock.ExpectCommit()

	require.NoError(t, ReplaceForKey(context.Background(), mock, cfg, "A100", [][]any{{"A100"}}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForKey_DeleteFailureRollsBack(t *testing.T) {
	mock := newMockPool(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "topics"`).
		WithArgs("A100").
		WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	err := ReplaceForKey(context.Background(), mock, testCfg, "A100", [][]any{{"A100", "T1"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceForKey_InvalidConfig(t *testing.T) {
	mock := newMockPool(t)

	err := ReplaceForKey(context.Background(), mock, ReplaceConfig{Table: "topics", KeyColumn: "k"}, "A100", nil)
	assert.Error(t, err)

	err = ReplaceForKey(context.Background(), mock, ReplaceConfig{Table: "topics", Columns: []string{"c"}}, "A100", nil)
	assert.Error(t, err)
}
