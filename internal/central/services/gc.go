package services

import (
	"context"
	"time"

	"github.com/klinikos/medsync/internal/central/repositories/changelog"
	"github.com/klinikos/medsync/internal/central/repositories/instances"
	"github.com/klinikos/medsync/internal/central/repositories/records"
	"github.com/klinikos/medsync/internal/logging"
)

// GCService purges tombstoned records past the retention window and prunes
// change-log entries every instance has already pulled. The change log is
// never pruned beyond the slowest instance's cursor, so an offline clinic can
// always catch up.
type GCService struct {
	records   records.Repository
	changeLog changelog.Repository
	instances instances.Repository
	retention time.Duration
	interval  time.Duration
	logger    logging.Logger
	now       func() time.Time
}

func NewGCService(rr records.Repository, cr changelog.Repository, ir instances.Repository,
	retention, interval time.Duration, logger logging.Logger) *GCService {
	return &GCService{
		records:   rr,
		changeLog: cr,
		instances: ir,
		retention: retention,
		interval:  interval,
		logger:    logger.With("module", "gc"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes collection passes at the configured interval until ctx is done.
func (s *GCService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping garbage collector...")
			return
		case <-ticker.C:
			if err := s.Collect(ctx); err != nil {
				s.logger.Warn(ctx, "collection pass failed", "error", err)
			}
		}
	}
}

// Collect runs one garbage collection pass.
func (s *GCService) Collect(ctx context.Context) error {
	cutoff := s.now().Add(-s.retention)

	purged, err := s.records.PurgeTombstones(ctx, cutoff)
	if err != nil {
		return err
	}

	minCursor, err := s.instances.MinCursor(ctx)
	if err != nil {
		return err
	}

	pruned, err := s.changeLog.PruneThrough(ctx, minCursor, cutoff)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "collection pass done",
		"tombstones_purged", purged, "log_entries_pruned", pruned, "min_cursor", minCursor)
	return nil
}
