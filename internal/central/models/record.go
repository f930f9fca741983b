// Package models defines the central authority's persisted entities: the
// authoritative record store, the global change log, conflict audit entries
// and registered instances.
package models

import (
	"encoding/json"
	"time"
)

// Record is the authoritative copy of one synchronized record. Version is
// advanced only by accepted pushes, under a compare-and-set on the previous
// version.
type Record struct {
	ID                 string
	RecordType         string
	Version            int64
	Payload            json.RawMessage
	CreatedByInstance  string
	ModifiedByInstance string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	DeletedAt          *time.Time
}

// IsDeleted reports whether the record is a tombstone.
func (r *Record) IsDeleted() bool {
	return r.DeletedAt != nil
}
