package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Connection status values derived from designated body presence.
const (
	ConnectionStatusYes = "Yes"
	ConnectionStatusNo  = "No"
)

// Record is the canonical (master) connection state for one clinician. Text
// fields use the empty string for "absent"; dates use nil.
type Record struct {
	ID                    uuid.UUID
	RegistryID            string
	PersonID              string
	FirstName             string
	LastName              string
	SubmissionDate        *time.Time
	ProgrammeName         string
	MembershipType        string
	MembershipStartDate   *time.Time
	MembershipEndDate     *time.Time
	DesignatedBodyCode    string
	TCSDesignatedBodyCode string
	ProgrammeOwner        string
	ExceptionReason       *string
	UpdatedAt             time.Time
}

// Key returns the natural key of the record.
func (r *Record) Key() NaturalKey {
	return NewNaturalKey(r.RegistryID, r.PersonID)
}

// ConnectionStatus is "Yes" when a designated body code is present.
func (r *Record) ConnectionStatus() string {
	if strings.TrimSpace(r.DesignatedBodyCode) != "" {
		return ConnectionStatusYes
	}
	return ConnectionStatusNo
}

// Clone returns a deep copy so callers can mutate without aliasing dates.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.SubmissionDate = cloneTime(r.SubmissionDate)
	c.MembershipStartDate = cloneTime(r.MembershipStartDate)
	c.MembershipEndDate = cloneTime(r.MembershipEndDate)
	if r.ExceptionReason != nil {
		reason := *r.ExceptionReason
		c.ExceptionReason = &reason
	}
	return &c
}

// FullName joins first and last name for display and free-text search.
func (r *Record) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr is a convenience for building optional dates.
func DatePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
