package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CalendarDateLayout is the wire format for dates without a time of day.
const CalendarDateLayout = "2006-01-02"

// InternalSystemUpdate is the partial record sent by the internal
// case-management system. It carries programme fields and usually not the
// regulator's designated body code.
type InternalSystemUpdate struct {
	RegistryID            string     `json:"gmcReferenceNumber,omitempty"`
	PersonID              string     `json:"tcsPersonId"`
	FirstName             string     `json:"doctorFirstName,omitempty"`
	LastName              string     `json:"doctorLastName,omitempty"`
	SubmissionDate        *time.Time `json:"submissionDate,omitempty"`
	ProgrammeName         string     `json:"programmeName,omitempty"`
	MembershipType        string     `json:"programmeMembershipType,omitempty"`
	MembershipStartDate   *time.Time `json:"programmeMembershipStartDate,omitempty"`
	MembershipEndDate     *time.Time `json:"programmeMembershipEndDate,omitempty"`
	DesignatedBodyCode    string     `json:"designatedBody,omitempty"`
	TCSDesignatedBodyCode string     `json:"tcsDesignatedBody,omitempty"`
	ProgrammeOwner        string     `json:"programmeOwner,omitempty"`
}

// Key returns the natural key the update addresses.
func (u InternalSystemUpdate) Key() NaturalKey {
	return NewNaturalKey(u.RegistryID, u.PersonID)
}

// UnmarshalJSON accepts dates as plain calendar dates ("2027-07-31") or as
// RFC 3339 timestamps.
func (u *InternalSystemUpdate) UnmarshalJSON(data []byte) error {
	type plain InternalSystemUpdate
	aux := struct {
		*plain
		SubmissionDate      calendarDate `json:"submissionDate,omitempty"`
		MembershipStartDate calendarDate `json:"programmeMembershipStartDate,omitempty"`
		MembershipEndDate   calendarDate `json:"programmeMembershipEndDate,omitempty"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	u.SubmissionDate = aux.SubmissionDate.t
	u.MembershipStartDate = aux.MembershipStartDate.t
	u.MembershipEndDate = aux.MembershipEndDate.t
	return nil
}

// calendarDate decodes null and "" as absent.
type calendarDate struct {
	t *time.Time
}

func (d *calendarDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		d.t = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		d.t = nil
		return nil
	}
	for _, layout := range []string{CalendarDateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			d.t = &t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q: want %s or RFC 3339", s, CalendarDateLayout)
}

// ToRecord builds the incoming record before merge.
func (u InternalSystemUpdate) ToRecord() *Record {
	return &Record{
		RegistryID:            strings.TrimSpace(u.RegistryID),
		PersonID:              strings.TrimSpace(u.PersonID),
		FirstName:             u.FirstName,
		LastName:              u.LastName,
		SubmissionDate:        dateOrNil(u.SubmissionDate),
		ProgrammeName:         u.ProgrammeName,
		MembershipType:        u.MembershipType,
		MembershipStartDate:   dateOrNil(u.MembershipStartDate),
		MembershipEndDate:     dateOrNil(u.MembershipEndDate),
		DesignatedBodyCode:    strings.TrimSpace(u.DesignatedBodyCode),
		TCSDesignatedBodyCode: strings.TrimSpace(u.TCSDesignatedBodyCode),
		ProgrammeOwner:        u.ProgrammeOwner,
	}
}

// RegistryUpdate carries the regulator-held fields for one registry id.
type RegistryUpdate struct {
	RegistryID         string `json:"gmcReferenceNumber"`
	FirstName          string `json:"doctorFirstName"`
	LastName           string `json:"doctorLastName"`
	DesignatedBodyCode string `json:"designatedBodyCode"`
}

// ManualCorrectionUpdate is an operator-entered designated body change.
type ManualCorrectionUpdate struct {
	RegistryID                 string `json:"gmcId"`
	NewDesignatedBodyCode      string `json:"designatedBodyCode"`
	PreviousDesignatedBodyCode string `json:"previousDesignatedBodyCode"`
	ReasonCode                 string `json:"reason"`
}

func dateOrNil(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := Date(*t)
	return &d
}
