// Package versioning stamps local mutations with sync metadata. Every
// create, update and delete goes through the Stamper, which assigns identity
// and version under a local compare-and-set, and enqueues the matching
// outbox entry in the same transaction.
package versioning

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/dbx"
	"github.com/klinikos/medsync/internal/instance/models"
	"github.com/klinikos/medsync/internal/instance/repositories/outbox"
	"github.com/klinikos/medsync/internal/instance/repositories/records"
)

type Stamper struct {
	db         *sql.DB
	instanceID string
	now        func() time.Time
}

func NewStamper(db *sql.DB, instanceID string) *Stamper {
	return &Stamper{db: db, instanceID: instanceID, now: func() time.Time { return time.Now().UTC() }}
}

// StampCreate assigns a new identity to rec (UUID, version 1, origin and
// timestamps), persists it and enqueues the change event atomically.
// Returns common.ErrInvalidState if rec already has an ID.
func (s *Stamper) StampCreate(ctx context.Context, rec *models.Record) error {
	if rec.ID != "" {
		return fmt.Errorf("%w: record already has id %s", common.ErrInvalidState, rec.ID)
	}
	if rec.RecordType == "" {
		return fmt.Errorf("%w: record type is empty", common.ErrInvalidState)
	}

	now := s.now()
	rec.ID = uuid.NewString()
	rec.Version = 1
	rec.CreatedByInstance = s.instanceID
	rec.ModifiedByInstance = s.instanceID
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.DeletedAt = nil
	rec.LastSyncedAt = nil

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).Insert(ctx, rec); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, rec, 0)
	})
}

// StampMutation advances rec by one version. rec.Version must match the last
// persisted version; the storage-level compare-and-set rejects concurrent
// local writers with common.ErrStaleVersion.
func (s *Stamper) StampMutation(ctx context.Context, rec *models.Record) error {
	return s.stampExisting(ctx, rec, false)
}

// StampDelete is StampMutation plus the tombstone mark. The record stays in
// storage; deletion propagates as a versioned mutation.
func (s *Stamper) StampDelete(ctx context.Context, rec *models.Record) error {
	return s.stampExisting(ctx, rec, true)
}

func (s *Stamper) stampExisting(ctx context.Context, rec *models.Record, tombstone bool) error {
	if rec.ID == "" || rec.Version < 1 {
		return fmt.Errorf("%w: record has no identity", common.ErrInvalidState)
	}

	now := s.now()
	baseVersion := rec.Version
	rec.Version = baseVersion + 1
	rec.ModifiedByInstance = s.instanceID
	rec.UpdatedAt = now
	if tombstone {
		rec.DeletedAt = &now
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := records.NewSQLiteRepository(tx).UpdateIfVersion(ctx, rec, baseVersion); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, rec, baseVersion)
	})
	if err != nil {
		// roll the in-memory state back so the caller can re-read and retry
		rec.Version = baseVersion
		if tombstone {
			rec.DeletedAt = nil
		}
		return err
	}
	return nil
}

func (s *Stamper) enqueue(ctx context.Context, tx dbx.DBTX, rec *models.Record, baseVersion int64) error {
	e := &models.OutboxEntry{
		RecordID:    rec.ID,
		RecordType:  rec.RecordType,
		BaseVersion: baseVersion,
		NewVersion:  rec.Version,
		Payload:     rec.Payload,
		Deleted:     rec.IsDeleted(),
		DeletedAt:   rec.DeletedAt,
		ModifiedBy:  rec.ModifiedByInstance,
		UpdatedAt:   rec.UpdatedAt,
		EnqueuedAt:  s.now(),
	}
	if err := outbox.NewSQLiteRepository(tx).Enqueue(ctx, e); err != nil {
		return fmt.Errorf("failed to enqueue change event: %w", err)
	}
	return nil
}
