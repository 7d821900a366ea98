package projects

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// CreateProjectRequest is the payload for starting a new comic project.
type CreateProjectRequest struct {
	Title    string `json:"title" validate:"required,max=200"`
	Premise  string `json:"premise" validate:"required,max=2000"`
	ArtStyle string `json:"art_style" validate:"omitempty,max=100"`
}

// UpdateProjectRequest edits draft project fields. Nil fields are untouched.
type UpdateProjectRequest struct {
	Title    *string `json:"title" validate:"omitempty,max=200"`
	Premise  *string `json:"premise" validate:"omitempty,max=2000"`
	ArtStyle *string `json:"art_style" validate:"omitempty,max=100"`
}

// ProjectDTO is the transport shape of a project.
type ProjectDTO struct {
	ID           uuid.UUID           `json:"id"`
	Title        string              `json:"title"`
	Premise      string              `json:"premise"`
	ArtStyle     string              `json:"art_style"`
	Status       enums.ProjectStatus `json:"status"`
	PlanSnapshot enums.UserPlan      `json:"plan_snapshot"`
	TotalPages   int                 `json:"total_pages"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func FromModel(p *models.Project) *ProjectDTO {
	if p == nil {
		return nil
	}
	return &ProjectDTO{
		ID:           p.ID,
		Title:        p.Title,
		Premise:      p.Premise,
		ArtStyle:     p.ArtStyle,
		Status:       p.Status,
		PlanSnapshot: p.PlanSnapshot,
		TotalPages:   p.TotalPages,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}
