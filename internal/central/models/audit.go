package models

import (
	"encoding/json"
	"time"
)

// ConflictAudit records one resolved push conflict: which change lost, which
// version won, and why. Clinical data disputes get reviewed from this table.
type ConflictAudit struct {
	ID              int64
	RecordID        string
	RecordType      string
	WinningVersion  int64
	LosingInstance  string
	LosingPayload   json.RawMessage
	LosingUpdatedAt time.Time
	Reason          string
	ResolvedAt      time.Time
}
