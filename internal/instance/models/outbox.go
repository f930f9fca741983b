package models

import (
	"encoding/json"
	"time"
)

// OutboxEntry is one row of the append-only local change log. Entries are
// written in the same transaction as the record mutation they describe and
// stay in place until the central authority acknowledges them.
type OutboxEntry struct {
	// ID is the local insertion-order key (autoincrement).
	ID int64

	RecordID   string
	RecordType RecordType

	// BaseVersion is the version the mutation was derived from; 0 for creates.
	BaseVersion int64
	// NewVersion is the version the mutation produced.
	NewVersion int64

	// Payload is the full record snapshot at NewVersion.
	Payload json.RawMessage

	Deleted   bool
	DeletedAt *time.Time

	ModifiedBy string
	UpdatedAt  time.Time

	EnqueuedAt time.Time

	// Acked marks the entry as accepted (or resolved) by the central authority.
	Acked bool
}
