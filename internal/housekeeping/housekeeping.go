// Package housekeeping implements the retention scheduler: daily purge
// jobs that respect upstream-sync archival state, gated to the cluster's
// worker-zero instance on every firing.
package housekeeping

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/headwalluk/headlog-sub000/internal/cluster"
	"github.com/headwalluk/headlog-sub000/internal/db"
	"github.com/headwalluk/headlog-sub000/internal/logger"
)

// Config holds the retention windows and upstream-awareness flag the
// purge jobs need.
type Config struct {
	LogRetentionDays    int
	InactiveWebsiteDays int
	UpstreamEnabled     bool
}

// Scheduler runs the two daily retention jobs via robfig/cron, re-checking
// cluster membership on every firing rather than only at startup.
type Scheduler struct {
	database *db.Database
	guard    *cluster.Guard
	cfg      Config
	cron     *cron.Cron
}

// NewScheduler builds a Scheduler. Call Start to register and run the
// jobs.
func NewScheduler(database *db.Database, guard *cluster.Guard, cfg Config) *Scheduler {
	return &Scheduler{
		database: database,
		guard:    guard,
		cfg:      cfg,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start registers the purge jobs and begins the cron scheduler. The
// SkipIfStillRunning chain wrapper (not cron's default) is what keeps a
// job from overlapping itself: one still running when its next trigger
// fires is skipped for that cycle instead of run concurrently.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("0 2 * * *", func() { s.purgeOldLogs(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 3 * * *", func() { s.purgeInactiveWebsites(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	logger.Housekeeping().Info().Msg("housekeeping scheduler started")
	return nil
}

// Stop halts the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) purgeOldLogs(ctx context.Context) {
	if !s.guard.IsWorkerZero() {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.LogRetentionDays)
	n, err := db.PurgeOldLogRecords(ctx, s.database, cutoff, s.cfg.UpstreamEnabled)
	if err != nil {
		logger.Housekeeping().Error().Err(err).Msg("purge old logs failed")
		return
	}
	logger.Housekeeping().Info().Int64("deleted", n).Msg("purged old log records")
}

func (s *Scheduler) purgeInactiveWebsites(ctx context.Context) {
	if !s.guard.IsWorkerZero() {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.InactiveWebsiteDays)
	n, err := db.PurgeInactiveWebsites(ctx, s.database, cutoff)
	if err != nil {
		logger.Housekeeping().Error().Err(err).Msg("purge inactive websites failed")
		return
	}
	logger.Housekeeping().Info().Int64("deleted", n).Msg("purged inactive websites")
}
