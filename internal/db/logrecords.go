package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// LogRecordInput is one row ready for bulk insertion, already resolved
// against the lookup caches.
type LogRecordInput struct {
	WebsiteID int
	LogType   string // "access" or "error"
	Timestamp time.Time
	HostID    int
	CodeID    int
	Remote    sql.NullString
	RawData   []byte // JSON
}

// BuildBulkInsertQuery builds the multi-row INSERT statement and its
// argument list for a batch of records. Exposed so callers that need the
// insert inside a pre-existing transaction (the upstream batch receiver)
// can run it via sql.Tx instead of going through BulkInsertLogRecords.
func BuildBulkInsertQuery(records []LogRecordInput) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO log_records (website_id, log_type, timestamp, host_id, code_id, remote, raw_data) VALUES `)
	args := make([]interface{}, 0, len(records)*7)
	for i, r := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, r.WebsiteID, r.LogType, r.Timestamp, r.HostID, r.CodeID, r.Remote, r.RawData)
	}
	return sb.String(), args
}

// LogRecord is a persisted row, used by the upstream sync worker.
type LogRecord struct {
	ID        int64
	WebsiteID int
	LogType   string
	Timestamp time.Time
	HostID    int
	CodeID    int
	Remote    sql.NullString
	RawData   []byte
}

// BulkInsertLogRecords inserts all records in a single multi-row
// statement, trusting that each tuple already satisfies the schema's
// constraints (the caller resolved website/host/code ids beforehand).
// It also raises each touched website's last_activity_at to the maximum
// timestamp observed for that website in this batch, in one additional
// statement per touched website (a single CASE expression across all
// touched websites would also work, but a short loop of point UPDATEs
// stays readable at these batch sizes).
func BulkInsertLogRecords(ctx context.Context, database *Database, records []LogRecordInput) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query, args := BuildBulkInsertQuery(records)
	result, err := database.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert log records: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	for websiteID, ts := range MaxTimestampByWebsite(records) {
		if err := TouchLastActivity(ctx, database, websiteID, ts); err != nil {
			return affected, fmt.Errorf("touch last_activity_at for website %d: %w", websiteID, err)
		}
	}

	return affected, nil
}

// MaxTimestampByWebsite reduces a batch of resolved records to the
// maximum timestamp observed per website, the value each touched
// website's last_activity_at is raised to. Shared by both the
// direct-ingest and upstream-batch-receiver insert paths.
func MaxTimestampByWebsite(records []LogRecordInput) map[int]time.Time {
	maxByWebsite := make(map[int]time.Time, len(records))
	for _, r := range records {
		if cur, ok := maxByWebsite[r.WebsiteID]; !ok || r.Timestamp.After(cur) {
			maxByWebsite[r.WebsiteID] = r.Timestamp
		}
	}
	return maxByWebsite
}

// UnarchivedBatch fetches up to limit not-yet-archived log records in
// ascending id order, the order the upstream sync worker is required to
// preserve.
func UnarchivedBatch(ctx context.Context, database *Database, limit int) ([]LogRecord, error) {
	rows, err := database.DB().QueryContext(ctx, `
		SELECT id, website_id, log_type, timestamp, host_id, code_id, remote, raw_data
		FROM log_records
		WHERE archived_at IS NULL
		ORDER BY id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LogRecord
	for rows.Next() {
		var r LogRecord
		if err := rows.Scan(&r.ID, &r.WebsiteID, &r.LogType, &r.Timestamp, &r.HostID, &r.CodeID, &r.Remote, &r.RawData); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkArchived sets archived_at and upstream_batch_uuid for exactly the
// given ids, in a single statement.
func MarkArchived(ctx context.Context, database *Database, ids []int64, batchUUID []byte) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, batchUUID)
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := fmt.Sprintf(`
		UPDATE log_records
		SET archived_at = CURRENT_TIMESTAMP, upstream_batch_uuid = ?
		WHERE id IN (%s) AND archived_at IS NULL`, strings.Join(placeholders, ","))

	_, err := database.DB().ExecContext(ctx, query, args...)
	return err
}

// PurgeOldLogRecords deletes log records older than cutoff. When
// respectUpstreamArchival is true, unarchived rows are never deleted
// regardless of age.
func PurgeOldLogRecords(ctx context.Context, database *Database, cutoff time.Time, respectUpstreamArchival bool) (int64, error) {
	query := `DELETE FROM log_records WHERE created_at < ?`
	if respectUpstreamArchival {
		query += ` AND archived_at IS NOT NULL`
	}
	result, err := database.DB().ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
