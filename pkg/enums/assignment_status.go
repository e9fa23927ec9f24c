package enums

import "fmt"

// AssignmentStatus maps to the assignment_status enum in Postgres.
type AssignmentStatus string

const (
	AssignmentStatusBroadcasted AssignmentStatus = "broadcasted"
	AssignmentStatusAccepted    AssignmentStatus = "accepted"
	AssignmentStatusCompleted   AssignmentStatus = "completed"
	AssignmentStatusCancelled   AssignmentStatus = "cancelled"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusBroadcasted,
	AssignmentStatusAccepted,
	AssignmentStatusCompleted,
	AssignmentStatusCancelled,
}

// IsValid reports whether the value matches the canonical assignment_status enum.
func (s AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the assignment can no longer change state.
func (s AssignmentStatus) IsTerminal() bool {
	return s == AssignmentStatusCompleted || s == AssignmentStatusCancelled
}

// ParseAssignmentStatus converts raw input into AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
