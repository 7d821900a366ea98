package enums

import "fmt"

// ProjectStatus is the small project lifecycle state machine.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "DRAFT"
	ProjectStatusGenerating ProjectStatus = "GENERATING"
	ProjectStatusCompleted  ProjectStatus = "COMPLETED"
	ProjectStatusFailed     ProjectStatus = "FAILED"
)

var validProjectStatuses = []ProjectStatus{
	ProjectStatusDraft,
	ProjectStatusGenerating,
	ProjectStatusCompleted,
	ProjectStatusFailed,
}

// projectTransitions lists the allowed forward edges.
var projectTransitions = map[ProjectStatus][]ProjectStatus{
	ProjectStatusDraft:      {ProjectStatusGenerating},
	ProjectStatusGenerating: {ProjectStatusCompleted, ProjectStatusFailed},
	ProjectStatusCompleted:  {},
	ProjectStatusFailed:     {ProjectStatusGenerating},
}

// String implements fmt.Stringer.
func (p ProjectStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProjectStatus.
func (p ProjectStatus) IsValid() bool {
	for _, candidate := range validProjectStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the status may move to next.
func (p ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	for _, candidate := range projectTransitions[p] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseProjectStatus converts raw input into a ProjectStatus.
func ParseProjectStatus(value string) (ProjectStatus, error) {
	for _, candidate := range validProjectStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid project status %q", value)
}
