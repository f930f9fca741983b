// Package wire defines the JSON request/response bodies exchanged between an
// instance and the central authority. Both sides share these types so the
// contract lives in one place.
package wire

import (
	"encoding/json"
	"time"
)

// ChangeRecord is one versioned change to a single record.
type ChangeRecord struct {
	RecordID    string          `json:"record_id"`
	RecordType  string          `json:"record_type"`
	BaseVersion int64           `json:"base_version"`
	NewVersion  int64           `json:"new_version"`
	Payload     json.RawMessage `json:"payload"`
	Deleted     bool            `json:"deleted"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
	ModifiedBy  string          `json:"modified_by_instance"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// PushRequest carries an ordered batch of local changes.
type PushRequest struct {
	InstanceID string         `json:"instance_id"`
	Changes    []ChangeRecord `json:"changes"`
}

// PushStatus is the per-change outcome of a push.
type PushStatus string

const (
	PushAccepted   PushStatus = "accepted"
	PushConflicted PushStatus = "conflicted"
	PushInvalid    PushStatus = "invalid"
)

// PushResult reports the outcome for a single pushed change. For conflicts
// the authoritative version/payload the instance must rebase onto is
// included.
type PushResult struct {
	RecordID                string          `json:"record_id"`
	Status                  PushStatus      `json:"status"`
	Sequence                int64           `json:"sequence,omitempty"`
	AuthoritativeVersion    int64           `json:"authoritative_version,omitempty"`
	AuthoritativePayload    json.RawMessage `json:"authoritative_payload,omitempty"`
	AuthoritativeDeleted    bool            `json:"authoritative_deleted,omitempty"`
	AuthoritativeModifiedBy string          `json:"authoritative_modified_by,omitempty"`
	AuthoritativeUpdatedAt  *time.Time      `json:"authoritative_updated_at,omitempty"`
	Error                   string          `json:"error,omitempty"`
}

type PushResponse struct {
	Results []PushResult `json:"results"`
}

// PullRequest asks for all accepted changes after SinceCursor.
type PullRequest struct {
	InstanceID  string `json:"instance_id"`
	SinceCursor int64  `json:"since_cursor"`
	Limit       int    `json:"limit,omitempty"`
}

// PullEntry is one entry of the central change log. Origin is the instance
// behind the change; CreatedBy is the record's immutable creator, needed when
// the pull inserts a record the instance has never seen.
type PullEntry struct {
	Sequence   int64           `json:"sequence"`
	RecordID   string          `json:"record_id"`
	RecordType string          `json:"record_type"`
	Version    int64           `json:"version"`
	Payload    json.RawMessage `json:"payload"`
	Deleted    bool            `json:"deleted"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
	Origin     string          `json:"origin_instance"`
	CreatedBy  string          `json:"created_by_instance"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type PullResponse struct {
	Entries   []PullEntry `json:"entries"`
	NewCursor int64       `json:"new_cursor"`
	// HasMore signals the instance should pull again immediately.
	HasMore bool `json:"has_more"`
}

// TokenRequest exchanges an instance's API secret for a short-lived token.
type TokenRequest struct {
	InstanceID string `json:"instance_id"`
	APISecret  string `json:"api_secret"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PresignPutResponse returns a presigned PUT target for an attachment.
type PresignPutResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// PresignGetResponse returns a presigned GET URL for an attachment key.
type PresignGetResponse struct {
	URL string `json:"url"`
}

// ErrorResponse is the uniform error body for non-2xx answers.
type ErrorResponse struct {
	Error string `json:"error"`
}
