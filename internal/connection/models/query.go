package models

import (
	"strings"
	"time"
)

// Paging defaults applied by Criteria.Normalize.
const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sortable projection fields.
const (
	SortSubmissionDate = "submissionDate"
	SortLastName       = "lastName"
	SortRegistryID     = "registryId"
	SortProgrammeName  = "programmeName"
	SortEndDate        = "membershipEndDate"
)

var sortFields = map[string]struct{}{
	SortSubmissionDate: {},
	SortLastName:       {},
	SortRegistryID:     {},
	SortProgrammeName:  {},
	SortEndDate:        {},
}

// Criteria filters a paged read of a single view.
type Criteria struct {
	// FreeText matches name, registry id or person id (case-insensitive, substring).
	FreeText            string
	DesignatedBodyCodes []string
	ProgrammeName       string
	SubmissionFrom      *time.Time
	SubmissionTo        *time.Time
	SortField           string
	SortOrder           SortOrder
	// Page is zero-based.
	Page     int
	PageSize int
}

// Normalize clamps paging and defaults sorting.
func (c Criteria) Normalize() Criteria {
	c.FreeText = strings.TrimSpace(c.FreeText)
	if c.Page < 0 {
		c.Page = 0
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.PageSize > MaxPageSize {
		c.PageSize = MaxPageSize
	}
	if _, ok := sortFields[c.SortField]; !ok {
		c.SortField = SortSubmissionDate
	}
	if c.SortOrder != SortAsc {
		c.SortOrder = SortDesc
	}
	return c
}

// Page is one page of a view search.
type Page struct {
	Records      []Projection
	TotalResults int64
	TotalPages   int
}

// TotalPagesFor computes the page count for total results at size.
func TotalPagesFor(total int64, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(size) - 1) / int64(size))
}
