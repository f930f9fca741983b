// Package actor models who performed a mutation. Instead of a loose role
// string with nullable companion columns, the actor is a closed set of
// variants so "owner vs staff" can never be ambiguous.
package actor

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates Actor variants.
type Kind string

const (
	KindOwner   Kind = "owner"
	KindStaff   Kind = "staff"
	KindPatient Kind = "patient"
)

var ErrUnknownKind = errors.New("unknown actor kind")

// Actor is a tagged variant: Owner, Staff or Patient.
// Use the constructors; the zero value is invalid.
type Actor struct {
	kind    Kind
	orgID   string
	jobRole string
}

// Owner is the organization owner acting on its own behalf.
func Owner(orgID string) Actor {
	return Actor{kind: KindOwner, orgID: orgID}
}

// Staff is an employee of an organization with a specific job role.
func Staff(orgID, jobRole string) Actor {
	return Actor{kind: KindStaff, orgID: orgID, jobRole: jobRole}
}

// Patient is an end user acting on their own records.
func Patient() Actor {
	return Actor{kind: KindPatient}
}

func (a Actor) Kind() Kind { return a.kind }

// OrgID returns the organization for Owner/Staff actors; empty for Patient.
func (a Actor) OrgID() string { return a.orgID }

// JobRole returns the staff job role; empty for other variants.
func (a Actor) JobRole() string { return a.jobRole }

// IsValid reports whether the actor was built through a constructor.
func (a Actor) IsValid() bool {
	switch a.kind {
	case KindOwner:
		return a.orgID != ""
	case KindStaff:
		return a.orgID != "" && a.jobRole != ""
	case KindPatient:
		return true
	default:
		return false
	}
}

func (a Actor) String() string {
	switch a.kind {
	case KindOwner:
		return fmt.Sprintf("owner(%s)", a.orgID)
	case KindStaff:
		return fmt.Sprintf("staff(%s/%s)", a.orgID, a.jobRole)
	case KindPatient:
		return "patient"
	default:
		return "invalid"
	}
}

type actorJSON struct {
	Kind    Kind   `json:"kind"`
	OrgID   string `json:"org_id,omitempty"`
	JobRole string `json:"job_role,omitempty"`
}

func (a Actor) MarshalJSON() ([]byte, error) {
	if !a.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, a.kind)
	}
	return json.Marshal(actorJSON{Kind: a.kind, OrgID: a.orgID, JobRole: a.jobRole})
}

func (a *Actor) UnmarshalJSON(data []byte) error {
	var v actorJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.Kind {
	case KindOwner:
		*a = Owner(v.OrgID)
	case KindStaff:
		*a = Staff(v.OrgID, v.JobRole)
	case KindPatient:
		*a = Patient()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, v.Kind)
	}
	if !a.IsValid() {
		return fmt.Errorf("incomplete %s actor", v.Kind)
	}
	return nil
}
