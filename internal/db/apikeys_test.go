package db

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListActiveAPIKeys(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT id, key_hash, description FROM api_keys WHERE is_active = TRUE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "key_hash", "description"}).
			AddRow(1, "hash1", "agent-a").
			AddRow(2, "hash2", "agent-b"))

	keys, err := ListActiveAPIKeys(context.Background(), NewDatabaseForTesting(mockDB))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "agent-a", keys[0].Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTouchAPIKeyLastUsed(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec(`UPDATE api_keys SET last_used_at = \? WHERE id = \?`).
		WithArgs(sqlmock.AnyArg(), 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = TouchAPIKeyLastUsed(context.Background(), NewDatabaseForTesting(mockDB), 7)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
