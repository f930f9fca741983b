// Package services implements the central authority's application services:
// accepting pushes, serving pulls, registering instances, presigning
// attachment URLs and retention garbage collection.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klinikos/medsync/internal/central/conflict"
	"github.com/klinikos/medsync/internal/central/models"
	"github.com/klinikos/medsync/internal/central/repositories/audit"
	"github.com/klinikos/medsync/internal/central/repositories/changelog"
	"github.com/klinikos/medsync/internal/central/repositories/instances"
	"github.com/klinikos/medsync/internal/central/repositories/records"
	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/dbx"
	"github.com/klinikos/medsync/internal/logging"
	"github.com/klinikos/medsync/internal/wire"
)

const (
	defaultPullLimit = 100
	maxPullLimit     = 500
)

// SyncService accepts pushed changes and serves the change log. Each change
// is processed in its own transaction so one bad entry never poisons the
// rest of the batch.
type SyncService struct {
	db        *sql.DB
	instances instances.Repository
	logger    logging.Logger
	now       func() time.Time
}

func NewSyncService(db *sql.DB, ir instances.Repository, logger logging.Logger) *SyncService {
	return &SyncService{
		db:        db,
		instances: ir,
		logger:    logger.With("module", "sync"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// AcceptPush processes an ordered batch of changes from one instance and
// returns one result per change, in the same order.
func (s *SyncService) AcceptPush(ctx context.Context, instanceID string, req *wire.PushRequest) (*wire.PushResponse, error) {
	if req.InstanceID != instanceID {
		return nil, fmt.Errorf("%w: push for %q by %q", common.ErrUnauthorized, req.InstanceID, instanceID)
	}

	resp := &wire.PushResponse{Results: make([]wire.PushResult, 0, len(req.Changes))}
	for _, ch := range req.Changes {
		resp.Results = append(resp.Results, s.processChange(ctx, instanceID, ch))
	}

	if err := s.instances.UpdateLastSeen(ctx, instanceID, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to update last seen", "instance", instanceID, "error", err)
	}

	return resp, nil
}

func (s *SyncService) processChange(ctx context.Context, origin string, ch wire.ChangeRecord) wire.PushResult {
	if err := validateChange(ch); err != nil {
		return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushInvalid, Error: err.Error()}
	}

	var result wire.PushResult
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = s.applyChange(ctx, tx, origin, ch)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "failed to apply change", "record", ch.RecordID, "error", err)
		return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushInvalid, Error: common.ErrInternal.Error()}
	}
	return result
}

func (s *SyncService) applyChange(ctx context.Context, tx dbx.DBTX, origin string, ch wire.ChangeRecord) (wire.PushResult, error) {
	recRepo := records.NewPostgresRepository(tx)
	clRepo := changelog.NewPostgresRepository(tx)
	auditRepo := audit.NewPostgresRepository(tx)

	// A re-pushed (record_id, version) from the same origin is a replay of a
	// change that was accepted but whose ack got lost. Accept it again
	// without touching anything.
	if prev, err := clRepo.GetByRecordVersion(ctx, ch.RecordID, ch.NewVersion); err == nil {
		if prev.OriginInstance == origin {
			return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushAccepted, Sequence: prev.Sequence}, nil
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return wire.PushResult{}, err
	}

	stored, err := recRepo.GetByID(ctx, ch.RecordID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		if ch.BaseVersion != 0 {
			return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushInvalid,
				Error: "unknown record with non-zero base version"}, nil
		}
		result, err := s.acceptCreate(ctx, recRepo, clRepo, origin, ch)
		if !errors.Is(err, common.ErrAlreadyExists) {
			return result, err
		}
		// Two instances created the same record concurrently; the second
		// insert is a conflict against the row that won.
		stored, err = recRepo.GetByID(ctx, ch.RecordID)
		if err != nil {
			return wire.PushResult{}, err
		}
		return s.resolveConflict(ctx, recRepo, clRepo, auditRepo, origin, stored, ch)
	case err != nil:
		return wire.PushResult{}, err
	}

	if ch.BaseVersion == stored.Version {
		result, err := s.acceptUpdate(ctx, recRepo, clRepo, origin, stored, ch)
		if !errors.Is(err, common.ErrStaleVersion) {
			return result, err
		}
		// A concurrent push advanced the record between the read and the
		// compare-and-set. The change still conflicts; re-read and resolve
		// against the version that beat it.
		stored, err = recRepo.GetByID(ctx, ch.RecordID)
		if err != nil {
			return wire.PushResult{}, err
		}
	}

	return s.resolveConflict(ctx, recRepo, clRepo, auditRepo, origin, stored, ch)
}

func (s *SyncService) acceptCreate(ctx context.Context, recRepo records.Repository, clRepo changelog.Repository,
	origin string, ch wire.ChangeRecord) (wire.PushResult, error) {

	rec := &models.Record{
		ID:                 ch.RecordID,
		RecordType:         ch.RecordType,
		Version:            ch.NewVersion,
		Payload:            ch.Payload,
		CreatedByInstance:  origin,
		ModifiedByInstance: ch.ModifiedBy,
		CreatedAt:          ch.UpdatedAt,
		UpdatedAt:          ch.UpdatedAt,
		DeletedAt:          ch.DeletedAt,
	}
	if err := recRepo.Insert(ctx, rec); err != nil {
		return wire.PushResult{}, err
	}

	seq, err := s.appendLog(ctx, clRepo, origin, rec)
	if err != nil {
		return wire.PushResult{}, err
	}
	return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushAccepted, Sequence: seq}, nil
}

func (s *SyncService) acceptUpdate(ctx context.Context, recRepo records.Repository, clRepo changelog.Repository,
	origin string, stored *models.Record, ch wire.ChangeRecord) (wire.PushResult, error) {

	rec := &models.Record{
		ID:                 stored.ID,
		RecordType:         stored.RecordType,
		Version:            ch.NewVersion,
		Payload:            ch.Payload,
		CreatedByInstance:  stored.CreatedByInstance,
		ModifiedByInstance: ch.ModifiedBy,
		CreatedAt:          stored.CreatedAt,
		UpdatedAt:          ch.UpdatedAt,
		DeletedAt:          ch.DeletedAt,
	}
	if err := recRepo.UpdateIfVersion(ctx, rec, ch.BaseVersion); err != nil {
		return wire.PushResult{}, err
	}

	seq, err := s.appendLog(ctx, clRepo, origin, rec)
	if err != nil {
		return wire.PushResult{}, err
	}
	return wire.PushResult{RecordID: ch.RecordID, Status: wire.PushAccepted, Sequence: seq}, nil
}

// resolveConflict handles a push whose base version is behind the stored one.
// The engine picks a winner; the loser's payload goes to the audit trail and
// the result always carries the authoritative state the pusher must rebase
// onto.
func (s *SyncService) resolveConflict(ctx context.Context, recRepo records.Repository, clRepo changelog.Repository,
	auditRepo audit.Repository, origin string, stored *models.Record, ch wire.ChangeRecord) (wire.PushResult, error) {

	incoming := conflict.Change{
		Version:    ch.NewVersion,
		UpdatedAt:  ch.UpdatedAt,
		ModifiedBy: ch.ModifiedBy,
		Deleted:    ch.Deleted,
	}
	res := conflict.Resolve(conflict.FromRecord(stored), incoming)

	authoritative := stored
	entry := &models.ConflictAudit{
		RecordID:   ch.RecordID,
		RecordType: stored.RecordType,
		Reason:     string(res.Outcome),
		ResolvedAt: s.now(),
	}

	if res.IncomingWins {
		// The incoming payload replaces the stored one at the next version,
		// keeping the per-record version strictly increasing.
		winner := &models.Record{
			ID:                 stored.ID,
			RecordType:         stored.RecordType,
			Version:            stored.Version + 1,
			Payload:            ch.Payload,
			CreatedByInstance:  stored.CreatedByInstance,
			ModifiedByInstance: ch.ModifiedBy,
			CreatedAt:          stored.CreatedAt,
			UpdatedAt:          ch.UpdatedAt,
			DeletedAt:          ch.DeletedAt,
		}
		if err := recRepo.Overwrite(ctx, winner); err != nil {
			return wire.PushResult{}, err
		}
		if _, err := s.appendLog(ctx, clRepo, origin, winner); err != nil {
			return wire.PushResult{}, err
		}

		entry.WinningVersion = winner.Version
		entry.LosingInstance = stored.ModifiedByInstance
		entry.LosingPayload = stored.Payload
		entry.LosingUpdatedAt = stored.UpdatedAt
		authoritative = winner
	} else {
		entry.WinningVersion = stored.Version
		entry.LosingInstance = origin
		entry.LosingPayload = ch.Payload
		entry.LosingUpdatedAt = ch.UpdatedAt
	}

	if err := auditRepo.Insert(ctx, entry); err != nil {
		return wire.PushResult{}, err
	}

	return wire.PushResult{
		RecordID:                ch.RecordID,
		Status:                  wire.PushConflicted,
		AuthoritativeVersion:    authoritative.Version,
		AuthoritativePayload:    authoritative.Payload,
		AuthoritativeDeleted:    authoritative.IsDeleted(),
		AuthoritativeModifiedBy: authoritative.ModifiedByInstance,
		AuthoritativeUpdatedAt:  &authoritative.UpdatedAt,
	}, nil
}

func (s *SyncService) appendLog(ctx context.Context, clRepo changelog.Repository, origin string, rec *models.Record) (int64, error) {
	e := &models.ChangeLogEntry{
		RecordID:          rec.ID,
		RecordType:        rec.RecordType,
		Version:           rec.Version,
		Payload:           rec.Payload,
		OriginInstance:    origin,
		CreatedByInstance: rec.CreatedByInstance,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
		DeletedAt:         rec.DeletedAt,
		LoggedAt:          s.now(),
	}
	if err := clRepo.Append(ctx, e); err != nil {
		return 0, err
	}
	return e.Sequence, nil
}

// ServePull returns change-log entries after the given cursor, including the
// requesting instance's own entries, and advances its stored cursor.
func (s *SyncService) ServePull(ctx context.Context, instanceID string, req *wire.PullRequest) (*wire.PullResponse, error) {
	if req.InstanceID != instanceID {
		return nil, fmt.Errorf("%w: pull for %q by %q", common.ErrUnauthorized, req.InstanceID, instanceID)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultPullLimit
	}
	if limit > maxPullLimit {
		limit = maxPullLimit
	}

	clRepo := changelog.NewPostgresRepository(s.db)

	// Fetch one extra entry to learn whether the log continues.
	entries, err := clRepo.ListSince(ctx, req.SinceCursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list change log: %w", err)
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}

	resp := &wire.PullResponse{NewCursor: req.SinceCursor, HasMore: hasMore}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, wire.PullEntry{
			Sequence:   e.Sequence,
			RecordID:   e.RecordID,
			RecordType: e.RecordType,
			Version:    e.Version,
			Payload:    e.Payload,
			Deleted:    e.DeletedAt != nil,
			DeletedAt:  e.DeletedAt,
			Origin:     e.OriginInstance,
			CreatedBy:  e.CreatedByInstance,
			CreatedAt:  e.CreatedAt,
			UpdatedAt:  e.UpdatedAt,
		})
		resp.NewCursor = e.Sequence
	}

	if err := s.instances.SetCursor(ctx, instanceID, resp.NewCursor); err != nil {
		s.logger.Warn(ctx, "failed to advance cursor", "instance", instanceID, "error", err)
	}
	if err := s.instances.UpdateLastSeen(ctx, instanceID, s.now()); err != nil {
		s.logger.Warn(ctx, "failed to update last seen", "instance", instanceID, "error", err)
	}

	return resp, nil
}

func validateChange(ch wire.ChangeRecord) error {
	if ch.RecordID == "" {
		return fmt.Errorf("%w: missing record id", common.ErrValidation)
	}
	if ch.RecordType == "" {
		return fmt.Errorf("%w: missing record type", common.ErrValidation)
	}
	if ch.NewVersion != ch.BaseVersion+1 {
		return fmt.Errorf("%w: new version %d does not follow base version %d",
			common.ErrValidation, ch.NewVersion, ch.BaseVersion)
	}
	if ch.ModifiedBy == "" {
		return fmt.Errorf("%w: missing modifying instance", common.ErrValidation)
	}
	if ch.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: missing update timestamp", common.ErrValidation)
	}
	if ch.Deleted != (ch.DeletedAt != nil) {
		return fmt.Errorf("%w: deleted flag and deleted_at disagree", common.ErrValidation)
	}
	return nil
}
