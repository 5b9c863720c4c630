package engine

import (
	"strings"

	"labelline/internal/domain"
)

// ReviewDecision is a reviewer's verdict on a submitted assignment.
type ReviewDecision struct {
	Approved      bool
	ErrorCategory string
	Comment       string
}

// ValidateDecision checks a decision against the assignment's current status
// and the closed error-category taxonomy. It is a pure function; the returned
// decision is normalized (approvals never carry a category or comment).
func ValidateDecision(currentStatus string, d ReviewDecision) (ReviewDecision, error) {
	if currentStatus != domain.AssignmentSubmitted {
		return d, InvalidStateError{Op: "review", Status: currentStatus}
	}
	if d.Approved {
		d.ErrorCategory = ""
		d.Comment = ""
		return d, nil
	}
	if d.ErrorCategory == "" || !domain.ValidErrorCategory(d.ErrorCategory) {
		return d, ValidationError{
			Reason:  "invalid error category",
			Allowed: domain.ErrorCategories,
		}
	}
	if d.ErrorCategory == domain.CategoryOther && strings.TrimSpace(d.Comment) == "" {
		return d, ValidationError{Reason: "comment is required when error category is 'Other'"}
	}
	return d, nil
}
