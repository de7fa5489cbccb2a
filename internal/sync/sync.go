// Package sync implements the upstream sync worker: periodic assembly
// and forwarding of not-yet-archived log records to a parent aggregator,
// with adaptive batch sizing and idempotent batch semantics.
package sync

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/headwalluk/headlog-sub000/internal/cluster"
	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// Config describes the upstream sync worker's tunables, sourced from the
// process configuration.
type Config struct {
	Enabled         bool
	UpstreamURL     string
	UpstreamAPIKey  string
	TargetBatchSize int
	MinBatchSize    int
	RecoveryStep    int
	Interval        time.Duration
	Compress        bool
	SourceInstance  string
	RequestTimeout  time.Duration
	RecoveryHorizon time.Duration
}

// finalizeTimeout bounds the batch-status writes (failed/archived/
// completed) that close out a cycle once its upstream POST has already
// resolved, run against a background context so an in-flight shutdown
// signal can't cancel them out from under the cycle they're finishing.
const finalizeTimeout = 10 * time.Second

// Worker runs the sync cycle on an interval, gated to the cluster's
// worker-zero instance.
type Worker struct {
	database *db.Database
	guard    *cluster.Guard
	cfg      Config
	client   *http.Client

	batchSize int
}

// NewWorker builds a sync Worker. The batch size starts at the configured
// target; it adapts up/down per cycle outcome.
func NewWorker(database *db.Database, guard *cluster.Guard, cfg Config) *Worker {
	return &Worker{
		database:  database,
		guard:     guard,
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.RequestTimeout},
		batchSize: cfg.TargetBatchSize,
	}
}

// ReconcileOnStartup marks any batch still in_progress past the recovery
// horizon as failed, so its rows are re-queued under a fresh uuid instead
// of being silently lost by a crash between POST and archival marking.
func (w *Worker) ReconcileOnStartup(ctx context.Context) error {
	n, err := db.ReconcileStaleInProgressBatches(ctx, w.database, w.cfg.RecoveryHorizon)
	if err != nil {
		return fmt.Errorf("reconcile stale batches: %w", err)
	}
	if n > 0 {
		logger.Sync().Warn().Int64("reconciled", n).Msg("reclaimed stale in-progress upstream batches at startup")
	}
	return nil
}

// Start runs the sync cycle on a ticker until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	logger.Sync().Info().Dur("interval", w.cfg.Interval).Msg("starting upstream sync worker")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.runCycle(ctx)
		case <-ctx.Done():
			logger.Sync().Info().Msg("upstream sync worker stopped")
			return
		}
	}
}

// runCycle runs a single sync iteration. Gating is re-checked every
// cycle since cluster membership can change between ticks.
func (w *Worker) runCycle(ctx context.Context) {
	if !w.cfg.Enabled || !w.guard.IsWorkerZero() {
		return
	}

	records, err := db.UnarchivedBatch(ctx, w.database, w.batchSize)
	if err != nil {
		logger.Sync().Error().Err(err).Msg("failed to query unarchived batch")
		return
	}
	if len(records) == 0 {
		return
	}

	batchUUID, err := w.freshBatchUUID(ctx)
	if err != nil {
		logger.Sync().Error().Err(err).Msg("failed to generate batch uuid")
		return
	}

	batchID, err := db.InsertInProgressBatch(ctx, w.database, batchUUID, len(records))
	if err != nil {
		logger.Sync().Error().Err(err).Msg("failed to record in-progress batch")
		return
	}

	if err := w.postBatch(ctx, records, batchUUID); err != nil {
		logger.Sync().Warn().Err(err).Msg("upstream post failed, will retry next cycle")
		// A shutdown in flight may have already canceled ctx; the failure
		// write still has to land so the batch doesn't get stranded
		// in_progress, so it runs against its own bounded-timeout
		// background context rather than the (possibly canceled) cycle
		// context.
		failCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		ferr := db.FailBatch(failCtx, w.database, batchID, err.Error())
		cancel()
		if ferr != nil {
			logger.Sync().Error().Err(ferr).Msg("failed to mark batch failed")
		}
		w.shrinkBatchSize()
		return
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	// The upstream POST already succeeded by this point, so these two
	// writes complete the batch rather than abort it; they run against a
	// bounded-timeout background context so a concurrent shutdown signal
	// can't cancel them mid-way and leave archived_at/upstream_batch_uuid
	// out of sync with the batch's completed status.
	finalizeCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if err := db.MarkArchived(finalizeCtx, w.database, ids, batchUUID); err != nil {
		logger.Sync().Error().Err(err).Msg("failed to mark records archived after successful upstream post")
		return
	}
	if err := db.CompleteBatch(finalizeCtx, w.database, batchID, len(records)); err != nil {
		logger.Sync().Error().Err(err).Msg("failed to finalize completed batch")
	}

	w.growBatchSize()
}

// freshBatchUUID generates a batch uuid, regenerating on the
// astronomically unlikely event of a collision.
func (w *Worker) freshBatchUUID(ctx context.Context) ([]byte, error) {
	for i := 0; i < 5; i++ {
		id := uuid.New()
		raw, err := id.MarshalBinary()
		if err != nil {
			return nil, err
		}
		exists, err := db.BatchUUIDExists(ctx, w.database, raw)
		if err != nil {
			return nil, err
		}
		if !exists {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("could not generate a unique batch uuid after 5 attempts")
}

func (w *Worker) postBatch(ctx context.Context, records []db.LogRecord, batchUUID []byte) error {
	payload := make([]json.RawMessage, len(records))
	for i, r := range records {
		payload[i] = r.RawData
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal batch payload: %w", err)
	}

	var reqBody *bytes.Buffer
	contentEncoding := ""
	if w.cfg.Compress {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(body); err != nil {
			return fmt.Errorf("gzip batch payload: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("gzip batch payload: %w", err)
		}
		reqBody = &buf
		contentEncoding = "gzip"
	} else {
		reqBody = bytes.NewBuffer(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.UpstreamURL, reqBody)
	if err != nil {
		return fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.cfg.UpstreamAPIKey)
	req.Header.Set("X-Batch-UUID", uuid.Must(uuid.FromBytes(batchUUID)).String())
	req.Header.Set("X-Source-Instance", w.cfg.SourceInstance)
	if contentEncoding != "" {
		req.Header.Set("Content-Encoding", contentEncoding)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return nil
}

// growBatchSize raises the batch size toward the configured target after
// a successful cycle.
func (w *Worker) growBatchSize() {
	if w.batchSize >= w.cfg.TargetBatchSize {
		return
	}
	w.batchSize += w.cfg.RecoveryStep
	if w.batchSize > w.cfg.TargetBatchSize {
		w.batchSize = w.cfg.TargetBatchSize
	}
}

// shrinkBatchSize halves the batch size after a failed cycle, clamped at
// the configured minimum.
func (w *Worker) shrinkBatchSize() {
	w.batchSize /= 2
	if w.batchSize < w.cfg.MinBatchSize {
		w.batchSize = w.cfg.MinBatchSize
	}
}
