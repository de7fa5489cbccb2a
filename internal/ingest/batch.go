package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// BatchResult is the response for the upstream-forwarding receiver
// endpoint; Duplicate is true when the batch had already been accepted
// under this (batch_uuid, source_instance) pair.
type BatchResult struct {
	Result
	Duplicate bool `json:"-"`
}

// IngestUpstreamBatch implements the receiver-side variant of ingestion:
// requests tagged with a batch uuid and source instance are deduplicated
// so a retried POST is a safe no-op.
func (s *Service) IngestUpstreamBatch(ctx context.Context, rawRecords []json.RawMessage, batchUUID []byte, sourceInstance string) (BatchResult, error) {
	var out BatchResult
	out.Received = len(rawRecords)

	if len(rawRecords) == 0 {
		return out, fmt.Errorf("expected non-empty array of log records")
	}

	existing, found, err := db.LookupBatchDedup(ctx, s.database, batchUUID, sourceInstance)
	if err != nil {
		return out, fmt.Errorf("batch dedup lookup: %w", err)
	}
	if found {
		out.Processed = existing.RecordCount
		out.Duplicate = true
		logger.Ingest().Info().Str("source_instance", sourceInstance).Msg("replayed batch detected, skipping re-insert")
		return out, nil
	}

	inputs := make([]db.LogRecordInput, 0, len(rawRecords))
	for _, raw := range rawRecords {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			logger.Ingest().Warn().Err(err).Msg("skipping malformed record: invalid json")
			continue
		}
		input, ok := s.resolveRecord(ctx, rec, raw)
		if !ok {
			continue
		}
		inputs = append(inputs, input)
	}

	affected, err := s.insertBatchTx(ctx, inputs, batchUUID, sourceInstance)
	if err != nil {
		return out, fmt.Errorf("insert upstream batch: %w", err)
	}

	out.Processed = int(affected)
	return out, nil
}

// insertBatchTx performs the bulk insert, the per-website last-activity
// touch, and the dedup-row insert inside one transaction, so a crash
// between any of the three never leaves the dedup table or a website's
// last_activity_at out of sync with the records that drove them.
func (s *Service) insertBatchTx(ctx context.Context, inputs []db.LogRecordInput, batchUUID []byte, sourceInstance string) (int64, error) {
	tx, err := s.database.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	affected, err := bulkInsertTx(ctx, tx, inputs)
	if err != nil {
		return 0, err
	}

	for websiteID, ts := range db.MaxTimestampByWebsite(inputs) {
		if err := db.TouchLastActivityTx(ctx, tx, websiteID, ts); err != nil {
			return 0, fmt.Errorf("touch last_activity_at for website %d: %w", websiteID, err)
		}
	}

	if err := db.InsertBatchDedupTx(ctx, tx, batchUUID, sourceInstance, int(affected)); err != nil {
		return 0, fmt.Errorf("insert dedup row: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return affected, nil
}

// bulkInsertTx is the transactional sibling of db.BulkInsertLogRecords,
// needed here because the dedup row must land in the same transaction as
// the records it describes.
func bulkInsertTx(ctx context.Context, tx *sql.Tx, records []db.LogRecordInput) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	query, args := db.BuildBulkInsertQuery(records)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk insert log records: %w", err)
	}
	return result.RowsAffected()
}
