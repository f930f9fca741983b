// Package services exposes the local record operations the application layer
// calls into. Every mutation goes through the versioning stamper so it is
// queued for sync automatically.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klinikos/medsync/internal/common"
	"github.com/klinikos/medsync/internal/instance/models"
	"github.com/klinikos/medsync/internal/instance/repositories/records"
	"github.com/klinikos/medsync/internal/instance/versioning"
)

type RecordService interface {
	// Create stores a new record from the envelope and returns its id.
	Create(ctx context.Context, envelope models.Envelope) (string, error)

	// Update replaces a record's payload, advancing its version.
	Update(ctx context.Context, id string, envelope models.Envelope) error

	// Delete soft-deletes a record (tombstone mutation).
	Delete(ctx context.Context, id string) error

	// Get returns a record by id; tombstones come back as ErrNotFound.
	Get(ctx context.Context, id string) (*models.Record, error)

	// List returns non-deleted records of the given type.
	List(ctx context.Context, recordType models.RecordType) ([]models.Record, error)
}

type recordService struct {
	stamper *versioning.Stamper
	records records.Repository
}

func NewRecordService(stamper *versioning.Stamper, rr records.Repository) RecordService {
	return &recordService{stamper: stamper, records: rr}
}

func (s *recordService) Create(ctx context.Context, envelope models.Envelope) (string, error) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to encode envelope: %w", err)
	}

	rec := &models.Record{RecordType: envelope.Type, Payload: payload}
	if err := s.stamper.StampCreate(ctx, rec); err != nil {
		return "", fmt.Errorf("saving error: %w", err)
	}
	return rec.ID, nil
}

func (s *recordService) Update(ctx context.Context, id string, envelope models.Envelope) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("error retrieving record: %w", err)
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	rec.Payload = payload

	if err := s.stamper.StampMutation(ctx, rec); err != nil {
		return fmt.Errorf("error updating record: %w", err)
	}
	return nil
}

func (s *recordService) Delete(ctx context.Context, id string) error {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("error retrieving record: %w", err)
	}
	if err := s.stamper.StampDelete(ctx, rec); err != nil {
		return fmt.Errorf("error deleting record: %w", err)
	}
	return nil
}

func (s *recordService) Get(ctx context.Context, id string) (*models.Record, error) {
	rec, err := s.records.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error retrieving record: %w", err)
	}
	if rec.IsDeleted() {
		return nil, fmt.Errorf("error retrieving record: %w", common.ErrNotFound)
	}
	return rec, nil
}

func (s *recordService) List(ctx context.Context, recordType models.RecordType) ([]models.Record, error) {
	result, err := s.records.List(ctx, recordType)
	if err != nil {
		return nil, fmt.Errorf("error listing records: %w", err)
	}
	return result, nil
}
