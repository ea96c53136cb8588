package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection/pkg/platform/sentinel"
)

func TestNaturalKey(t *testing.T) {
	t.Run("both halves absent is invalid", func(t *testing.T) {
		err := NewNaturalKey("  ", "").Validate()
		require.ErrorIs(t, err, sentinel.ErrInvalidKey)
	})

	t.Run("either half alone is valid", func(t *testing.T) {
		require.NoError(t, NewNaturalKey("1234567", "").Validate())
		require.NoError(t, NewNaturalKey("", "42").Validate())
	})

	t.Run("matching treats absent as empty", func(t *testing.T) {
		a := NewNaturalKey("1234567", "")
		assert.True(t, a.Matches(NaturalKey{RegistryID: "1234567"}))
		assert.False(t, a.Matches(NaturalKey{RegistryID: "1234567", PersonID: "42"}))
		assert.True(t, a.RegistryOnly())
	})
}

func TestConnectionStatusDerivedFromDesignatedBody(t *testing.T) {
	r := &Record{DesignatedBodyCode: "1-AIIDR8"}
	assert.Equal(t, ConnectionStatusYes, r.ConnectionStatus())

	r.DesignatedBodyCode = " "
	assert.Equal(t, ConnectionStatusNo, r.ConnectionStatus())
}

func TestProjectFor(t *testing.T) {
	reason := "Visitor"
	r := &Record{
		RegistryID:         "1234567",
		PersonID:           "42",
		DesignatedBodyCode: "BODY1",
		MembershipEndDate:  DatePtr(2030, time.January, 1),
		ExceptionReason:    &reason,
	}

	t.Run("exception view carries reason and status", func(t *testing.T) {
		p := ProjectFor(ViewException, r)
		assert.Equal(t, ViewException, p.View)
		assert.Equal(t, "Visitor", p.ExceptionReason)
		assert.Equal(t, ConnectionStatusYes, p.ConnectionStatus)
	})

	t.Run("connected view drops reason", func(t *testing.T) {
		p := ProjectFor(ViewConnected, r)
		assert.Empty(t, p.ExceptionReason)
	})

	t.Run("projection does not alias record dates", func(t *testing.T) {
		p := ProjectFor(ViewConnected, r)
		*p.MembershipEndDate = time.Time{}
		assert.Equal(t, 2030, r.MembershipEndDate.Year())
	})
}

func TestCriteriaNormalize(t *testing.T) {
	c := Criteria{Page: -3, PageSize: 10_000, SortField: "bogus", SortOrder: "sideways"}.Normalize()
	assert.Equal(t, 0, c.Page)
	assert.Equal(t, MaxPageSize, c.PageSize)
	assert.Equal(t, SortSubmissionDate, c.SortField)
	assert.Equal(t, SortDesc, c.SortOrder)

	assert.Equal(t, DefaultPageSize, Criteria{}.Normalize().PageSize)
}

func TestTotalPagesFor(t *testing.T) {
	assert.Equal(t, 0, TotalPagesFor(0, 20))
	assert.Equal(t, 1, TotalPagesFor(20, 20))
	assert.Equal(t, 2, TotalPagesFor(21, 20))
}

func TestInternalSystemUpdateToRecordTruncatesDates(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 17, 30, 0, 0, time.UTC)
	u := InternalSystemUpdate{PersonID: " 42 ", MembershipEndDate: &ts, SubmissionDate: &time.Time{}}
	r := u.ToRecord()
	assert.Equal(t, "42", r.PersonID)
	assert.Equal(t, *DatePtr(2024, time.March, 5), *r.MembershipEndDate)
	assert.Nil(t, r.SubmissionDate)
}

func TestInternalSystemUpdateDecodesDates(t *testing.T) {
	t.Run("calendar dates", func(t *testing.T) {
		var u InternalSystemUpdate
		require.NoError(t, json.Unmarshal([]byte(`{"tcsPersonId":"42","programmeName":"Surgery",`+
			`"submissionDate":"2025-01-15","programmeMembershipStartDate":"2023-08-02",`+
			`"programmeMembershipEndDate":"2027-07-31"}`), &u))
		assert.Equal(t, "42", u.PersonID)
		assert.Equal(t, "Surgery", u.ProgrammeName)
		require.NotNil(t, u.SubmissionDate)
		assert.Equal(t, *DatePtr(2025, time.January, 15), *u.SubmissionDate)
		require.NotNil(t, u.MembershipStartDate)
		assert.Equal(t, *DatePtr(2023, time.August, 2), *u.MembershipStartDate)
		require.NotNil(t, u.MembershipEndDate)
		assert.Equal(t, *DatePtr(2027, time.July, 31), *u.MembershipEndDate)
	})

	t.Run("timestamps still accepted", func(t *testing.T) {
		var u InternalSystemUpdate
		require.NoError(t, json.Unmarshal([]byte(`{"tcsPersonId":"42","programmeMembershipEndDate":"2027-07-31T00:00:00Z"}`), &u))
		require.NotNil(t, u.MembershipEndDate)
		assert.Equal(t, *DatePtr(2027, time.July, 31), u.MembershipEndDate.UTC())
	})

	t.Run("null and empty are absent", func(t *testing.T) {
		var u InternalSystemUpdate
		require.NoError(t, json.Unmarshal([]byte(`{"tcsPersonId":"42","submissionDate":null,"programmeMembershipEndDate":""}`), &u))
		assert.Nil(t, u.SubmissionDate)
		assert.Nil(t, u.MembershipEndDate)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		var u InternalSystemUpdate
		assert.Error(t, json.Unmarshal([]byte(`{"tcsPersonId":"42","submissionDate":"31/07/2027"}`), &u))
	})
}
