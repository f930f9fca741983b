// Package conflict decides which of two competing versions of a record
// survives. The policy is deterministic: every replica resolving the same
// pair picks the same winner.
package conflict

import (
	"time"

	"github.com/klinikos/medsync/internal/central/models"
)

// Outcome labels why a resolution went the way it did. The label is stored
// in the audit trail next to the losing payload.
type Outcome string

const (
	// WonByTimestamp: the winner carried the later updated_at.
	WonByTimestamp Outcome = "timestamp"
	// WonByTiebreak: equal timestamps, lexically greater modified_by_instance won.
	WonByTiebreak Outcome = "instance_tiebreak"
	// WonByDelete: a deletion took precedence over a concurrent update.
	WonByDelete Outcome = "delete_precedence"
)

// Change is the view of one competing version the engine compares. Stored
// records and incoming pushes are both projected into it.
type Change struct {
	Version    int64
	UpdatedAt  time.Time
	ModifiedBy string
	Deleted    bool
}

// Resolution names the winner of a stored-vs-incoming comparison.
type Resolution struct {
	IncomingWins bool
	Outcome      Outcome
}

// Resolve applies last-writer-wins between the stored authoritative state and
// an incoming change whose base version is stale.
//
// Rules, in order:
//  1. A deletion wins over a concurrent update when the deletion's version is
//     at or above the update's. Patient-safety reviews expect removed data to
//     stay removed.
//  2. Later updated_at wins.
//  3. Equal timestamps: the lexically greater modified_by_instance wins.
//
// The whole record is taken from the winner; fields are never merged.
func Resolve(stored, incoming Change) Resolution {
	if stored.Deleted != incoming.Deleted {
		if stored.Deleted && stored.Version >= incoming.Version {
			return Resolution{IncomingWins: false, Outcome: WonByDelete}
		}
		if incoming.Deleted && incoming.Version >= stored.Version {
			return Resolution{IncomingWins: true, Outcome: WonByDelete}
		}
	}

	if !stored.UpdatedAt.Equal(incoming.UpdatedAt) {
		return Resolution{
			IncomingWins: incoming.UpdatedAt.After(stored.UpdatedAt),
			Outcome:      WonByTimestamp,
		}
	}

	return Resolution{
		IncomingWins: incoming.ModifiedBy > stored.ModifiedBy,
		Outcome:      WonByTiebreak,
	}
}

// FromRecord projects a stored authoritative record into a Change.
func FromRecord(r *models.Record) Change {
	return Change{
		Version:    r.Version,
		UpdatedAt:  r.UpdatedAt,
		ModifiedBy: r.ModifiedByInstance,
		Deleted:    r.IsDeleted(),
	}
}
