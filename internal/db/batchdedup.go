package db

import (
	"context"
	"database/sql"
)

// BatchDedupRecord is the receiver-side record of a previously-accepted
// upstream-forwarded batch, keyed by (batch_uuid, source_instance).
type BatchDedupRecord struct {
	RecordCount int
}

// LookupBatchDedup returns the previously recorded record_count for a
// (batchUUID, sourceInstance) pair, or ok=false if this is the first time
// the pair has been seen.
func LookupBatchDedup(ctx context.Context, database *Database, batchUUID []byte, sourceInstance string) (*BatchDedupRecord, bool, error) {
	var count int
	err := database.DB().QueryRowContext(ctx, `
		SELECT record_count FROM batch_deduplication
		WHERE batch_uuid = ? AND source_instance = ?`, batchUUID, sourceInstance).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &BatchDedupRecord{RecordCount: count}, true, nil
}

// InsertBatchDedupTx records a newly-accepted batch. Call this in the same
// transaction as the bulk insert of its records.
func InsertBatchDedupTx(ctx context.Context, tx *sql.Tx, batchUUID []byte, sourceInstance string, recordCount int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO batch_deduplication (batch_uuid, source_instance, record_count)
		VALUES (?, ?, ?)`, batchUUID, sourceInstance, recordCount)
	return err
}
