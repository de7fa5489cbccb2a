package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupBatchDedup_NotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	uuid := []byte("0123456789abcdef")
	mock.ExpectQuery(`SELECT record_count FROM batch_deduplication\s+WHERE batch_uuid = \? AND source_instance = \?`).
		WithArgs(uuid, "regional-1").
		WillReturnError(sql.ErrNoRows)

	rec, found, err := LookupBatchDedup(context.Background(), NewDatabaseForTesting(mockDB), uuid, "regional-1")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupBatchDedup_Found(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	uuid := []byte("0123456789abcdef")
	mock.ExpectQuery(`SELECT record_count FROM batch_deduplication\s+WHERE batch_uuid = \? AND source_instance = \?`).
		WithArgs(uuid, "regional-1").
		WillReturnRows(sqlmock.NewRows([]string{"record_count"}).AddRow(50))

	rec, found, err := LookupBatchDedup(context.Background(), NewDatabaseForTesting(mockDB), uuid, "regional-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 50, rec.RecordCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchDedupTx(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	uuid := []byte("0123456789abcdef")
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO batch_deduplication \(batch_uuid, source_instance, record_count\)\s+VALUES \(\?, \?, \?\)`).
		WithArgs(uuid, "regional-1", 50).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := mockDB.Begin()
	require.NoError(t, err)
	require.NoError(t, InsertBatchDedupTx(context.Background(), tx, uuid, "regional-1", 50))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
