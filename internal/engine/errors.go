package engine

import (
	"fmt"
	"strings"
)

// Domain errors the workflow returns to the boundary. All of them are
// expected, recoverable conditions; anything else bubbling out of an
// operation is a store failure and is surfaced as-is.

// UnauthorizedError means the actor does not own the assignment.
type UnauthorizedError struct {
	ActorID      string
	AssignmentID string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("actor %s does not own assignment %s", e.ActorID, e.AssignmentID)
}

// InvalidStateError means the operation is not legal from the assignment's
// current lifecycle state.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s assignment in status %s", e.Op, e.Status)
}

// ValidationError means the review input was malformed or incomplete.
type ValidationError struct {
	Reason  string
	Allowed []string
}

func (e ValidationError) Error() string {
	if len(e.Allowed) > 0 {
		return fmt.Sprintf("%s; allowed values are: %s", e.Reason, strings.Join(e.Allowed, ", "))
	}
	return e.Reason
}

// InsufficientInventoryError means allocation found zero claimable units.
// Partial availability is not an error; only total unavailability is.
type InsufficientInventoryError struct {
	ProjectID string
}

func (e InsufficientInventoryError) Error() string {
	return fmt.Sprintf("no available work units in project %s", e.ProjectID)
}

// ConflictError means a concurrent modification won the race on the same row.
type ConflictError struct {
	AssignmentID string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("assignment %s was modified concurrently", e.AssignmentID)
}
