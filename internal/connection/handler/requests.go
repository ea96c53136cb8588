package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"connection/internal/connection/models"
	"connection/pkg/platform/httputil"
	pstrings "connection/pkg/platform/strings"
)

const dateLayout = models.CalendarDateLayout

// parseCriteria reads search parameters. Paging and sort defaults are
// applied later by Criteria.Normalize.
func parseCriteria(q url.Values) (models.Criteria, error) {
	c := models.Criteria{
		FreeText:      strings.TrimSpace(q.Get("q")),
		ProgrammeName: strings.TrimSpace(q.Get("programmeName")),
		SortField:     q.Get("sort"),
	}

	var err error
	if c.Page, err = intParam(q, "page"); err != nil {
		return c, err
	}
	if c.PageSize, err = intParam(q, "pageSize"); err != nil {
		return c, err
	}

	switch order := strings.ToLower(q.Get("order")); order {
	case "":
	case string(models.SortAsc), string(models.SortDesc):
		c.SortOrder = models.SortOrder(order)
	default:
		return c, httputil.BadRequest("order must be asc or desc")
	}

	// dbc may be repeated or comma separated
	if codes := pstrings.SplitList(q["dbc"], ","); len(codes) > 0 {
		c.DesignatedBodyCodes = codes
	}

	if c.SubmissionFrom, err = dateParam(q, "from"); err != nil {
		return c, err
	}
	if c.SubmissionTo, err = dateParam(q, "to"); err != nil {
		return c, err
	}
	if c.SubmissionFrom != nil && c.SubmissionTo != nil && c.SubmissionTo.Before(*c.SubmissionFrom) {
		return c, httputil.BadRequest("to must not be before from")
	}
	return c, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, httputil.BadRequest(name + " must be a non-negative integer")
	}
	return n, nil
}

func dateParam(q url.Values, name string) (*time.Time, error) {
	raw := q.Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, httputil.BadRequest(name + " must be a date in YYYY-MM-DD format")
	}
	return &t, nil
}
