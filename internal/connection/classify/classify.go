package classify

import (
	"strings"
	"time"

	"connection/internal/connection/models"
)

// Exception reasons recorded on the canonical record.
const (
	ReasonVisitor          = "Visitor"
	ReasonMembershipExpiry = "Programme membership expired"
)

const membershipTypeVisitor = "visitor"

// Result is the outcome of classifying a record.
type Result struct {
	View   models.View
	Reason *string
}

// Classify decides which mutually exclusive view a record belongs in.
// This is pure domain logic - no I/O, no clock. today is supplied by the caller.
// Rule priority (first match wins):
//  1. Visitor membership - exception
//  2. Membership ended before today - exception
//  3. Designated body present - connected
//  4. Otherwise - disconnected
func Classify(r *models.Record, today time.Time) Result {
	if r == nil {
		return Result{View: models.ViewDisconnected}
	}

	if isVisitor(r) {
		return exception(ReasonVisitor)
	}

	if membershipExpired(r, today) {
		return exception(ReasonMembershipExpiry)
	}

	if strings.TrimSpace(r.DesignatedBodyCode) != "" {
		return Result{View: models.ViewConnected}
	}

	return Result{View: models.ViewDisconnected}
}

func isVisitor(r *models.Record) bool {
	return strings.EqualFold(strings.TrimSpace(r.MembershipType), membershipTypeVisitor)
}

// membershipExpired compares calendar dates so an end date of today still counts.
func membershipExpired(r *models.Record, today time.Time) bool {
	if r.MembershipEndDate == nil {
		return false
	}
	return models.Date(*r.MembershipEndDate).Before(models.Date(today))
}

func exception(reason string) Result {
	return Result{View: models.ViewException, Reason: &reason}
}

// IsDiscrepancy reports whether the regulator and internal-system designated
// bodies disagree. Two absent codes are not a discrepancy.
func IsDiscrepancy(r *models.Record) bool {
	if r == nil {
		return false
	}
	regulator := strings.TrimSpace(r.DesignatedBodyCode)
	internal := strings.TrimSpace(r.TCSDesignatedBodyCode)
	if regulator == "" && internal == "" {
		return false
	}
	return !strings.EqualFold(regulator, internal)
}
