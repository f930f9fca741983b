// Package models defines the instance-side data models: the versioned sync
// record envelope and the healthcare payload types carried inside it.
package models

import (
	"encoding/json"
	"time"

	"github.com/klinikos/medsync/internal/actor"
)

// RecordType classifies a record's domain payload.
type RecordType string

const (
	RecordTypePatient      RecordType = "patient"
	RecordTypeAppointment  RecordType = "appointment"
	RecordTypePrescription RecordType = "prescription"
	RecordTypeLabResult    RecordType = "lab_result"
)

// Record is the syncable envelope every domain row shares. The sync layer
// treats Payload as opaque JSON; only the metadata columns drive versioning
// and convergence.
type Record struct {
	// ID is a globally unique identifier, assigned once at creation.
	ID string

	// RecordType classifies the payload.
	RecordType RecordType

	// Version is a monotonic counter; 1 on creation, +1 per accepted mutation.
	Version int64

	// Payload is the domain snapshot at Version.
	Payload json.RawMessage

	// CreatedByInstance is the installation that created the record. Immutable.
	CreatedByInstance string

	// ModifiedByInstance is the installation behind the latest accepted mutation.
	ModifiedByInstance string

	CreatedAt time.Time
	UpdatedAt time.Time

	// DeletedAt non-nil marks a tombstone. Tombstones are kept for sync
	// convergence and audit; they never leave normal storage via this layer.
	DeletedAt *time.Time

	// LastSyncedAt is when this record last round-tripped with the central
	// authority; nil means never synced.
	LastSyncedAt *time.Time
}

// IsDeleted reports whether the record is a tombstone.
func (r *Record) IsDeleted() bool {
	return r.DeletedAt != nil
}

// Envelope wraps a typed domain payload together with the actor who recorded
// it, for storage in Record.Payload.
type Envelope struct {
	Type       RecordType      `json:"type"`
	RecordedBy actor.Actor     `json:"recorded_by"`
	Details    json.RawMessage `json:"details"`
}

// Wrap serializes v into an Envelope of the given type.
func Wrap[T any](t RecordType, recordedBy actor.Actor, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: t, RecordedBy: recordedBy, Details: b}, nil
}

// Unwrap decodes Details into the concrete payload type for e.Type.
// Unknown types decode into a generic map so foreign records from newer
// installations still round-trip.
func (e Envelope) Unwrap() (any, error) {
	switch e.Type {
	case RecordTypePatient:
		var v Patient
		return v, json.Unmarshal(e.Details, &v)
	case RecordTypeAppointment:
		var v Appointment
		return v, json.Unmarshal(e.Details, &v)
	case RecordTypePrescription:
		var v Prescription
		return v, json.Unmarshal(e.Details, &v)
	case RecordTypeLabResult:
		var v LabResult
		return v, json.Unmarshal(e.Details, &v)
	default:
		var m map[string]any
		if err := json.Unmarshal(e.Details, &m); err != nil {
			return nil, err
		}
		return m, nil
	}
}

type TypedPayload interface {
	GetType() RecordType
}

// Patient is the demographic core shared by all sites.
type Patient struct {
	FullName    string `json:"full_name"`
	BirthDate   string `json:"birth_date"`
	Sex         string `json:"sex"`
	InsuranceNo string `json:"insurance_no"`
	Phone       string `json:"phone"`
}

func (x Patient) GetType() RecordType { return RecordTypePatient }

// Appointment schedules a patient with a provider at one site.
type Appointment struct {
	PatientID   string    `json:"patient_id"`
	ProviderID  string    `json:"provider_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	Notes       string    `json:"notes,omitempty"`
}

func (x Appointment) GetType() RecordType { return RecordTypeAppointment }

// Prescription records a medication order.
type Prescription struct {
	PatientID  string `json:"patient_id"`
	Medication string `json:"medication"`
	Dose       string `json:"dose"`
	Refills    int    `json:"refills"`
}

func (x Prescription) GetType() RecordType { return RecordTypePrescription }

// LabResult records a test outcome; large scans/reports live in attachment
// storage and are referenced by key.
type LabResult struct {
	PatientID     string `json:"patient_id"`
	TestName      string `json:"test_name"`
	Result        string `json:"result"`
	AttachmentKey string `json:"attachment_key,omitempty"`
}

func (x LabResult) GetType() RecordType { return RecordTypeLabResult }
