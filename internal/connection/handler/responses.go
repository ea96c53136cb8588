package handler

import (
	"time"

	"connection/internal/connection/models"
	"connection/internal/connection/resync"
)

// PageResponse is the body of a view search.
type PageResponse struct {
	TotalPages   int              `json:"totalPages"`
	TotalResults int64            `json:"totalResults"`
	Records      []RecordResponse `json:"records"`
}

// RecordResponse is one projection as served to the UI.
type RecordResponse struct {
	RegistryID            string `json:"gmcReferenceNumber,omitempty"`
	PersonID              string `json:"tcsPersonId,omitempty"`
	FirstName             string `json:"doctorFirstName"`
	LastName              string `json:"doctorLastName"`
	SubmissionDate        string `json:"submissionDate,omitempty"`
	ProgrammeName         string `json:"programmeName"`
	MembershipType        string `json:"programmeMembershipType"`
	MembershipStartDate   string `json:"programmeMembershipStartDate,omitempty"`
	MembershipEndDate     string `json:"programmeMembershipEndDate,omitempty"`
	DesignatedBodyCode    string `json:"designatedBody"`
	TCSDesignatedBodyCode string `json:"tcsDesignatedBody"`
	ProgrammeOwner        string `json:"programmeOwner"`
	ConnectionStatus      string `json:"connectionStatus"`
	ExceptionReason       string `json:"exceptionReason,omitempty"`
}

// SummaryResponse is the body of an admin resync.
type SummaryResponse struct {
	Records    int      `json:"records"`
	Batches    int      `json:"batches"`
	Failures   int      `json:"failures"`
	Views      []string `json:"views"`
	DurationMS int64    `json:"duration_ms"`
}

// FromPage converts a search page to its response.
func FromPage(p models.Page) PageResponse {
	out := PageResponse{
		TotalPages:   p.TotalPages,
		TotalResults: p.TotalResults,
		Records:      make([]RecordResponse, 0, len(p.Records)),
	}
	for i := range p.Records {
		r := &p.Records[i]
		out.Records = append(out.Records, RecordResponse{
			RegistryID:            r.RegistryID,
			PersonID:              r.PersonID,
			FirstName:             r.FirstName,
			LastName:              r.LastName,
			SubmissionDate:        formatDate(r.SubmissionDate),
			ProgrammeName:         r.ProgrammeName,
			MembershipType:        r.MembershipType,
			MembershipStartDate:   formatDate(r.MembershipStartDate),
			MembershipEndDate:     formatDate(r.MembershipEndDate),
			DesignatedBodyCode:    r.DesignatedBodyCode,
			TCSDesignatedBodyCode: r.TCSDesignatedBodyCode,
			ProgrammeOwner:        r.ProgrammeOwner,
			ConnectionStatus:      r.ConnectionStatus,
			ExceptionReason:       r.ExceptionReason,
		})
	}
	return out
}

func FromSummary(s resync.Summary) SummaryResponse {
	views := make([]string, 0, len(s.Views))
	for _, v := range s.Views {
		views = append(views, v.String())
	}
	return SummaryResponse{
		Records:    s.Records,
		Batches:    s.Batches,
		Failures:   s.Failures,
		Views:      views,
		DurationMS: s.Duration.Milliseconds(),
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}
