package models

import (
	"encoding/json"
	"time"
)

// ChangeLogEntry is one row of the global, totally ordered change log.
// Sequence is assigned by the database and strictly increases; instances use
// it as their pull cursor.
type ChangeLogEntry struct {
	Sequence          int64
	RecordID          string
	RecordType        string
	Version           int64
	Payload           json.RawMessage
	OriginInstance    string
	CreatedByInstance string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         *time.Time
	LoggedAt          time.Time
}
