package enums

import "fmt"

// GenerationStatus tracks the lifecycle of one asynchronous generation job.
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "QUEUED"
	GenerationStatusProcessing GenerationStatus = "PROCESSING"
	GenerationStatusCompleted  GenerationStatus = "COMPLETED"
	GenerationStatusFailed     GenerationStatus = "FAILED"
)

var validGenerationStatuses = []GenerationStatus{
	GenerationStatusQueued,
	GenerationStatusProcessing,
	GenerationStatusCompleted,
	GenerationStatusFailed,
}

// String implements fmt.Stringer.
func (g GenerationStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GenerationStatus.
func (g GenerationStatus) IsValid() bool {
	for _, candidate := range validGenerationStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// IsActive reports whether the job still occupies the project's single active slot.
func (g GenerationStatus) IsActive() bool {
	return g == GenerationStatusQueued || g == GenerationStatusProcessing
}

// IsTerminal reports whether the status may never change again.
func (g GenerationStatus) IsTerminal() bool {
	return g == GenerationStatusCompleted || g == GenerationStatusFailed
}

// ParseGenerationStatus converts raw input into a GenerationStatus.
func ParseGenerationStatus(value string) (GenerationStatus, error) {
	for _, candidate := range validGenerationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid generation status %q", value)
}
