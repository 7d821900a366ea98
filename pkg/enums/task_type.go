package enums

import "fmt"

// TaskType identifies the kind of asynchronous job a Generation record tracks.
type TaskType string

const (
	TaskTypeComicGeneration TaskType = "comic_generation"
	TaskTypePDFExport       TaskType = "pdf_export"
)

var validTaskTypes = []TaskType{
	TaskTypeComicGeneration,
	TaskTypePDFExport,
}

// String implements fmt.Stringer.
func (t TaskType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TaskType.
func (t TaskType) IsValid() bool {
	for _, candidate := range validTaskTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaskType converts raw input into a TaskType.
func ParseTaskType(value string) (TaskType, error) {
	for _, candidate := range validTaskTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task type %q", value)
}
