package store

import (
	"sort"
	"strings"
	"time"

	"connection/internal/connection/models"
)

// matches applies criteria in memory. The Postgres store expresses the same
// predicates in SQL; keep the two in step.
func matches(p *models.Projection, c models.Criteria) bool {
	if c.FreeText != "" {
		needle := strings.ToLower(c.FreeText)
		name := strings.ToLower(strings.TrimSpace(p.FirstName + " " + p.LastName))
		if !strings.Contains(name, needle) &&
			!strings.Contains(strings.ToLower(p.RegistryID), needle) &&
			!strings.Contains(strings.ToLower(p.PersonID), needle) {
			return false
		}
	}
	if len(c.DesignatedBodyCodes) > 0 && !containsFold(c.DesignatedBodyCodes, p.DesignatedBodyCode) &&
		!containsFold(c.DesignatedBodyCodes, p.TCSDesignatedBodyCode) {
		return false
	}
	if c.ProgrammeName != "" && !strings.EqualFold(c.ProgrammeName, p.ProgrammeName) {
		return false
	}
	if c.SubmissionFrom != nil && (p.SubmissionDate == nil || p.SubmissionDate.Before(models.Date(*c.SubmissionFrom))) {
		return false
	}
	if c.SubmissionTo != nil && (p.SubmissionDate == nil || p.SubmissionDate.After(models.Date(*c.SubmissionTo))) {
		return false
	}
	return true
}

func containsFold(codes []string, code string) bool {
	if code == "" {
		return false
	}
	for _, c := range codes {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}

func sortProjections(ps []models.Projection, field string, order models.SortOrder) {
	less := func(a, b *models.Projection) int {
		switch field {
		case models.SortLastName:
			return strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName))
		case models.SortRegistryID:
			return strings.Compare(a.RegistryID, b.RegistryID)
		case models.SortProgrammeName:
			return strings.Compare(strings.ToLower(a.ProgrammeName), strings.ToLower(b.ProgrammeName))
		case models.SortEndDate:
			return compareDates(a.MembershipEndDate, b.MembershipEndDate)
		default:
			return compareDates(a.SubmissionDate, b.SubmissionDate)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		c := less(&ps[i], &ps[j])
		if c == 0 {
			// stable tiebreak so paging is deterministic
			c = strings.Compare(ps[i].RegistryID+"|"+ps[i].PersonID, ps[j].RegistryID+"|"+ps[j].PersonID)
			return c < 0
		}
		if order == models.SortAsc {
			return c < 0
		}
		return c > 0
	})
}

// compareDates orders absent dates before present ones.
func compareDates(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}
