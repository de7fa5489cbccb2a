package db

import (
	"context"
	"database/sql"
	"time"
)

// UpstreamSyncBatch tracks one sync-worker cycle's attempt to forward a
// batch of records upstream.
type UpstreamSyncBatch struct {
	ID           int64
	BatchUUID    []byte
	StartedAt    time.Time
	CompletedAt  sql.NullTime
	RecordCount  int
	Status       string // pending, in_progress, completed, failed
	ErrorMessage sql.NullString
	RetryCount   int
}

// InsertInProgressBatch records the start of a sync cycle under a fresh
// batch uuid before any network call is made, so a crash between POST
// and archival marking can be reconciled on the next startup.
func InsertInProgressBatch(ctx context.Context, database *Database, batchUUID []byte, recordCount int) (int64, error) {
	result, err := database.DB().ExecContext(ctx, `
		INSERT INTO upstream_sync_batches (batch_uuid, status, record_count)
		VALUES (?, 'in_progress', ?)`, batchUUID, recordCount)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// CompleteBatch finalizes a batch as completed.
func CompleteBatch(ctx context.Context, database *Database, id int64, recordCount int) error {
	_, err := database.DB().ExecContext(ctx, `
		UPDATE upstream_sync_batches
		SET status = 'completed', completed_at = CURRENT_TIMESTAMP, record_count = ?
		WHERE id = ?`, recordCount, id)
	return err
}

// FailBatch finalizes a batch as failed with a diagnostic message.
func FailBatch(ctx context.Context, database *Database, id int64, errMsg string) error {
	_, err := database.DB().ExecContext(ctx, `
		UPDATE upstream_sync_batches
		SET status = 'failed', completed_at = CURRENT_TIMESTAMP, error_message = ?, retry_count = retry_count + 1
		WHERE id = ?`, errMsg, id)
	return err
}

// ReconcileStaleInProgressBatches marks any batch still in_progress after
// horizon as failed, so its member rows (which were never archived) are
// picked up again by the next sync cycle under a fresh uuid. Run once at
// startup.
func ReconcileStaleInProgressBatches(ctx context.Context, database *Database, horizon time.Duration) (int64, error) {
	cutoff := time.Now().Add(-horizon)
	result, err := database.DB().ExecContext(ctx, `
		UPDATE upstream_sync_batches
		SET status = 'failed', completed_at = CURRENT_TIMESTAMP, error_message = 'reconciled at startup'
		WHERE status = 'in_progress' AND started_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// BatchUUIDExists checks for a uuid collision before committing to a
// freshly generated batch identifier.
func BatchUUIDExists(ctx context.Context, database *Database, batchUUID []byte) (bool, error) {
	var n int
	err := database.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM upstream_sync_batches WHERE batch_uuid = ?`, batchUUID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
