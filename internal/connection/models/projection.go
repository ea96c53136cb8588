package models

import (
	"time"

	"github.com/google/uuid"
)

// Projection is the stored shape of a record in any view. View is the tag;
// ProjectFor decides per tag which fields are carried.
type Projection struct {
	ID                    uuid.UUID
	View                  View
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
	ConnectionStatus      string
	ExceptionReason       string
	UpdatedAt             time.Time
}

// Key returns the projection's natural key.
func (p *Projection) Key() NaturalKey {
	return NewNaturalKey(p.RegistryID, p.PersonID)
}

// ProjectFor maps a canonical record to the projection stored in view. The ID
// is left zero; stores assign or preserve it.
func ProjectFor(view View, r *Record) Projection {
	p := Projection{
		View:                  view,
		RegistryID:            r.RegistryID,
		PersonID:              r.PersonID,
		FirstName:             r.FirstName,
		LastName:              r.LastName,
		SubmissionDate:        cloneTime(r.SubmissionDate),
		ProgrammeName:         r.ProgrammeName,
		MembershipType:        r.MembershipType,
		MembershipStartDate:   cloneTime(r.MembershipStartDate),
		MembershipEndDate:     cloneTime(r.MembershipEndDate),
		DesignatedBodyCode:    r.DesignatedBodyCode,
		TCSDesignatedBodyCode: r.TCSDesignatedBodyCode,
		ProgrammeOwner:        r.ProgrammeOwner,
		ConnectionStatus:      r.ConnectionStatus(),
		UpdatedAt:             r.UpdatedAt,
	}

	switch view {
	case ViewException:
		if r.ExceptionReason != nil {
			p.ExceptionReason = *r.ExceptionReason
		}
	case ViewConnected, ViewDisconnected:
		// classified clean: no reason carried
	case ViewDiscrepancy:
		// both designated body variants are the point of this view
		if r.ExceptionReason != nil {
			p.ExceptionReason = *r.ExceptionReason
		}
	}
	return p
}
