package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/instance/models"
	"github.com/klinikos/medsync/internal/instance/repositories/metadata"
	"github.com/klinikos/medsync/internal/instance/repositories/outbox"
	"github.com/klinikos/medsync/internal/instance/repositories/records"
	"github.com/klinikos/medsync/internal/logging"
	"github.com/klinikos/medsync/internal/wire"
)

// Options bound a sync round.
type Options struct {
	BatchSize      int
	Interval       time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
}

// SyncResult accounts for one completed round.
type SyncResult struct {
	Pushed    int
	Pulled    int
	Conflicts int
	Skipped   int
	Pending   int
	StartTime time.Time
	Duration  time.Duration
}

// Syncer drains the outbox to the central authority and applies pulled
// changes locally. It is safe to run concurrently with local mutations: the
// outbox is append-only and record rebasing goes through the same
// compare-and-set upserts as everything else.
type Syncer struct {
	client     Client
	records    records.Repository
	outbox     outbox.Repository
	metadata   metadata.Repository
	instanceID string
	logger     logging.Logger
	opts       Options
	now        func() time.Time
}

func New(client Client, rr records.Repository, or outbox.Repository, mr metadata.Repository,
	instanceID string, logger logging.Logger, opts Options) *Syncer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	return &Syncer{
		client:     client,
		records:    rr,
		outbox:     or,
		metadata:   mr,
		instanceID: instanceID,
		logger:     logger.With("module", "syncer"),
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run performs sync rounds at the configured interval until ctx is done.
// Failures are logged and the next tick tries again; queued data is never
// dropped.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Stopping syncer...")
			return
		case <-ticker.C:
			res, err := s.SyncRound(ctx)
			if err != nil {
				s.logger.Warn(ctx, "sync round failed", "error", err)
				continue
			}
			s.logger.Info(ctx, "sync round done",
				"pushed", res.Pushed, "pulled", res.Pulled,
				"conflicts", res.Conflicts, "pending", res.Pending,
				"duration", res.Duration)
		}
	}
}

// SyncRound pushes pending outbox entries and then pulls foreign changes.
func (s *Syncer) SyncRound(ctx context.Context) (*SyncResult, error) {
	res := &SyncResult{StartTime: s.now()}
	defer func() { res.Duration = time.Since(res.StartTime) }()

	if err := s.pushPending(ctx, res); err != nil {
		return res, err
	}
	if err := s.pullRemote(ctx, res); err != nil {
		return res, err
	}

	// Entries enqueued by local mutations during the round wait for the next
	// one; the count makes a growing backlog visible in the round log.
	pending, err := s.outbox.CountPending(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to count pending outbox entries: %w", err)
	}
	res.Pending = pending
	return res, nil
}

func (s *Syncer) pushPending(ctx context.Context, res *SyncResult) error {
	for {
		batch, err := s.outbox.PeekBatch(ctx, s.opts.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to read outbox: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}

		changes := make([]wire.ChangeRecord, 0, len(batch))
		for _, e := range batch {
			changes = append(changes, wire.ChangeRecord{
				RecordID:    e.RecordID,
				RecordType:  string(e.RecordType),
				BaseVersion: e.BaseVersion,
				NewVersion:  e.NewVersion,
				Payload:     e.Payload,
				Deleted:     e.Deleted,
				DeletedAt:   e.DeletedAt,
				ModifiedBy:  e.ModifiedBy,
				UpdatedAt:   e.UpdatedAt,
			})
		}

		resp, err := s.pushWithRetry(ctx, changes)
		if err != nil {
			return err
		}
		if len(resp.Results) != len(batch) {
			return fmt.Errorf("push returned %d results for %d changes", len(resp.Results), len(batch))
		}

		acked := make([]int64, 0, len(batch))
		for i, r := range resp.Results {
			e := batch[i]
			if r.RecordID != e.RecordID {
				return fmt.Errorf("push result %d is for record %s, expected %s", i, r.RecordID, e.RecordID)
			}
			switch r.Status {
			case wire.PushAccepted:
				if err := s.records.MarkSynced(ctx, e.RecordID, e.NewVersion, s.now()); err != nil {
					return err
				}
				res.Pushed++
			case wire.PushConflicted:
				if err := s.rebase(ctx, e, r); err != nil {
					return err
				}
				res.Conflicts++
			case wire.PushInvalid:
				// not retryable; keep the payload out of the queue and move on
				s.logger.Error(ctx, "change rejected as invalid",
					"record_id", e.RecordID, "version", e.NewVersion, "error", r.Error)
			default:
				return fmt.Errorf("unknown push status %q", r.Status)
			}
			acked = append(acked, e.ID)
		}

		if err := s.outbox.Acknowledge(ctx, acked); err != nil {
			return fmt.Errorf("failed to acknowledge outbox entries: %w", err)
		}

		if len(batch) < s.opts.BatchSize {
			return nil
		}
	}
}

// rebase replaces the superseded local state with the authoritative version
// the central authority returned. The losing payload stays in the central
// audit trail; locally the record simply jumps to the winner.
//
// Rebasing only happens while the conflicted entry is still the local tip.
// When later local edits are already queued, the row must keep their state;
// each of those pushes carries the conflict forward and the last one rebases.
func (s *Syncer) rebase(ctx context.Context, e *models.OutboxEntry, r wire.PushResult) error {
	localVersion, err := s.records.GetVersion(ctx, e.RecordID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to rebase record %s: %w", e.RecordID, err)
	}
	if localVersion > e.NewVersion {
		s.logger.Info(ctx, "conflicted change superseded by a queued local edit",
			"record_id", e.RecordID, "conflicted_version", e.NewVersion,
			"local_version", localVersion)
		return nil
	}

	now := s.now()
	rec := &models.Record{
		ID:                 e.RecordID,
		RecordType:         e.RecordType,
		Version:            r.AuthoritativeVersion,
		Payload:            r.AuthoritativePayload,
		ModifiedByInstance: r.AuthoritativeModifiedBy,
		CreatedAt:          e.UpdatedAt,
		UpdatedAt:          now,
		LastSyncedAt:       &now,
	}
	if r.AuthoritativeUpdatedAt != nil {
		rec.UpdatedAt = *r.AuthoritativeUpdatedAt
	}
	if r.AuthoritativeDeleted {
		rec.DeletedAt = &rec.UpdatedAt
	}
	if err := s.records.ApplyRemote(ctx, rec); err != nil {
		return fmt.Errorf("failed to rebase record %s: %w", e.RecordID, err)
	}
	s.logger.Warn(ctx, "local change superseded",
		"record_id", e.RecordID, "local_version", e.NewVersion,
		"authoritative_version", r.AuthoritativeVersion)
	return nil
}

func (s *Syncer) pullRemote(ctx context.Context, res *SyncResult) error {
	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return err
	}

	for {
		resp, err := s.pullWithRetry(ctx, cursor)
		if err != nil {
			return err
		}

		for _, entry := range resp.Entries {
			applied, err := s.applyPulled(ctx, entry)
			if err != nil {
				return err
			}
			if applied {
				res.Pulled++
			} else {
				res.Skipped++
			}
		}

		cursor = resp.NewCursor
		if err := s.saveCursor(ctx, cursor); err != nil {
			return err
		}
		if !resp.HasMore {
			return nil
		}
	}
}

// applyPulled applies one change-log entry. The instance's own changes come
// back too; they only advance last_synced_at. Foreign entries are applied in
// sequence order, and anything not newer than the local row is skipped.
func (s *Syncer) applyPulled(ctx context.Context, entry wire.PullEntry) (bool, error) {
	now := s.now()

	if entry.Origin == s.instanceID {
		if err := s.records.MarkSynced(ctx, entry.RecordID, entry.Version, now); err != nil {
			return false, err
		}
		return false, nil
	}

	localVersion, err := s.records.GetVersion(ctx, entry.RecordID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return false, err
	}
	if entry.Version <= localVersion {
		return false, nil
	}

	rec := &models.Record{
		ID:                 entry.RecordID,
		RecordType:         models.RecordType(entry.RecordType),
		Version:            entry.Version,
		Payload:            entry.Payload,
		CreatedByInstance:  entry.CreatedBy,
		ModifiedByInstance: entry.Origin,
		CreatedAt:          entry.CreatedAt,
		UpdatedAt:          entry.UpdatedAt,
		LastSyncedAt:       &now,
	}
	if entry.Deleted {
		if entry.DeletedAt != nil {
			rec.DeletedAt = entry.DeletedAt
		} else {
			rec.DeletedAt = &entry.UpdatedAt
		}
	}
	if err := s.records.ApplyRemote(ctx, rec); err != nil {
		return false, fmt.Errorf("failed to apply pulled record %s: %w", entry.RecordID, err)
	}
	return true, nil
}

func (s *Syncer) pushWithRetry(ctx context.Context, changes []wire.ChangeRecord) (*wire.PushResponse, error) {
	var resp *wire.PushResponse
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		resp, err = s.client.Push(ctx, changes)
		return s.markRetryable(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: push failed: %v", common.ErrSyncUnavailable, err)
	}
	return resp, nil
}

func (s *Syncer) pullWithRetry(ctx context.Context, cursor int64) (*wire.PullResponse, error) {
	var resp *wire.PullResponse
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		var err error
		resp, err = s.client.Pull(ctx, cursor, s.opts.BatchSize)
		return s.markRetryable(err)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: pull failed: %v", common.ErrSyncUnavailable, err)
	}
	return resp, nil
}

func (s *Syncer) backoff() retry.Backoff {
	return retry.WithMaxRetries(s.opts.MaxRetries, retry.NewExponential(s.opts.InitialBackoff))
}

// markRetryable treats transport failures as retryable and auth failures as
// fatal. A timed-out round trip is failed-but-retryable; success is never
// assumed without an acknowledgment.
func (s *Syncer) markRetryable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrUnauthorized) {
		return err
	}
	return retry.RetryableError(err)
}

func (s *Syncer) loadCursor(ctx context.Context) (int64, error) {
	return metadata.PullCursor(ctx, s.metadata)
}

func (s *Syncer) saveCursor(ctx context.Context, cursor int64) error {
	return metadata.SetPullCursor(ctx, s.metadata, cursor)
}
