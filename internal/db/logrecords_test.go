package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildBulkInsertQuery_MultiRow(t *testing.T) {
	records := []LogRecordInput{
		{WebsiteID: 1, LogType: "access", Timestamp: time.Unix(100, 0), HostID: 1, CodeID: 200, Remote: sql.NullString{String: "1.2.3.4", Valid: true}, RawData: []byte(`{}`)},
		{WebsiteID: 1, LogType: "access", Timestamp: time.Unix(200, 0), HostID: 1, CodeID: 200, Remote: sql.NullString{String: "1.2.3.5", Valid: true}, RawData: []byte(`{}`)},
	}

	query, args := BuildBulkInsertQuery(records)
	assert.Contains(t, query, "INSERT INTO log_records")
	assert.Equal(t, 2, countOccurrences(query, "(?, ?, ?, ?, ?, ?, ?)"))
	assert.Len(t, args, 14)
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}

func TestBulkInsertLogRecords_Empty(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	n, err := BulkInsertLogRecords(context.Background(), NewDatabaseForTesting(mockDB), nil)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertLogRecords_TouchesMaxTimestampPerWebsite(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	records := []LogRecordInput{
		{WebsiteID: 1, LogType: "access", Timestamp: time.Unix(100, 0).UTC(), HostID: 1, CodeID: 200, RawData: []byte(`{}`)},
		{WebsiteID: 1, LogType: "access", Timestamp: time.Unix(300, 0).UTC(), HostID: 1, CodeID: 200, RawData: []byte(`{}`)},
		{WebsiteID: 2, LogType: "error", Timestamp: time.Unix(50, 0).UTC(), HostID: 1, CodeID: 0, RawData: []byte(`{}`)},
	}

	mock.ExpectExec(`INSERT INTO log_records`).
		WillReturnResult(sqlmock.NewResult(1, 3))

	// The implementation ranges over a map, so website 1 and 2's touch
	// updates may be issued in either order.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectExec(`UPDATE websites`).
		WithArgs(time.Unix(300, 0).UTC(), 1, time.Unix(300, 0).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE websites`).
		WithArgs(time.Unix(50, 0).UTC(), 2, time.Unix(50, 0).UTC()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	affected, err := BulkInsertLogRecords(context.Background(), NewDatabaseForTesting(mockDB), records)
	require.NoError(t, err)
	assert.EqualValues(t, 3, affected)
}

func TestUnarchivedBatch_OrderedByIDAscending(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT id, website_id, log_type, timestamp, host_id, code_id, remote, raw_data\s+FROM log_records\s+WHERE archived_at IS NULL\s+ORDER BY id ASC\s+LIMIT \?`).
		WithArgs(100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "website_id", "log_type", "timestamp", "host_id", "code_id", "remote", "raw_data"}).
			AddRow(1, 1, "access", time.Now(), 1, 200, sql.NullString{String: "1.2.3.4", Valid: true}, []byte(`{}`)).
			AddRow(2, 1, "access", time.Now(), 1, 200, sql.NullString{String: "1.2.3.4", Valid: true}, []byte(`{}`)))

	records, err := UnarchivedBatch(context.Background(), NewDatabaseForTesting(mockDB), 100)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.EqualValues(t, 1, records[0].ID)
	assert.EqualValues(t, 2, records[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkArchived_Empty(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	err = MarkArchived(context.Background(), NewDatabaseForTesting(mockDB), nil, []byte("0123456789abcdef"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkArchived_SetsUUIDAndTimestampForGivenIDs(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	uuid := []byte("0123456789abcdef")
	mock.ExpectExec(`UPDATE log_records\s+SET archived_at = CURRENT_TIMESTAMP, upstream_batch_uuid = \?\s+WHERE id IN \(\?,\?,\?\) AND archived_at IS NULL`).
		WithArgs(uuid, int64(1), int64(2), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err = MarkArchived(context.Background(), NewDatabaseForTesting(mockDB), []int64{1, 2, 3}, uuid)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOldLogRecords_RespectsUpstreamArchival(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	cutoff := time.Now().AddDate(0, 0, -30)
	mock.ExpectExec(`DELETE FROM log_records WHERE created_at < \? AND archived_at IS NOT NULL`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := PurgeOldLogRecords(context.Background(), NewDatabaseForTesting(mockDB), cutoff, true)
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeOldLogRecords_WithoutUpstreamIgnoresArchivalState(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	cutoff := time.Now().AddDate(0, 0, -30)
	mock.ExpectExec(`DELETE FROM log_records WHERE created_at < \?$`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 8))

	n, err := PurgeOldLogRecords(context.Background(), NewDatabaseForTesting(mockDB), cutoff, false)
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
