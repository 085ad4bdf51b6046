package access

import (
	"slices"

	"github.com/google/uuid"
)

// Scope is a read filter in a form repositories can turn into a query.
// The zero Scope matches nothing.
type Scope struct {
	All       bool
	CentreIDs []uuid.UUID
	ClientID  uuid.UUID
	StaffID   uuid.UUID
}

// Empty reports whether the scope can match no record.
func (s Scope) Empty() bool {
	return !s.All && len(s.CentreIDs) == 0 && s.ClientID == uuid.Nil && s.StaffID == uuid.Nil
}

func (s Scope) Allows(t Target) bool {
	switch {
	case s.All:
		return true
	case s.ClientID != uuid.Nil && t.ClientID == s.ClientID:
		return true
	case s.StaffID != uuid.Nil && t.StaffID == s.StaffID:
		return true
	case slices.Contains(s.CentreIDs, t.CentreID):
		return true
	}
	return false
}
