package projects

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
)

const defaultArtStyle = "comic book"

// Service orchestrates project lifecycle operations.
type Service struct {
	repo  projectRepository
	users userFinder
}

type projectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Project, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProjectStatus) (bool, error)
	UpdateTotalPages(ctx context.Context, id uuid.UUID, totalPages int) error
	SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ServiceParams groups dependencies for the projects service.
type ServiceParams struct {
	Repo  projectRepository
	Users userFinder
}

// NewService builds a projects service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	return &Service{repo: params.Repo, users: params.Users}, nil
}

// Create starts a DRAFT project. The owner's current plan is frozen onto the
// project so later plan changes cannot retroactively change what the worker
// enforces.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateProjectRequest) (*ProjectDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	artStyle := req.ArtStyle
	if artStyle == "" {
		artStyle = defaultArtStyle
	}

	project := &models.Project{
		UserID:       userID,
		Title:        req.Title,
		Premise:      req.Premise,
		ArtStyle:     artStyle,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: user.Plan,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create project")
	}
	return FromModel(project), nil
}

// Get loads a project the caller owns.
func (s *Service) Get(ctx context.Context, projectID, userID uuid.UUID) (*ProjectDTO, error) {
	project, err := s.findOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	return FromModel(project), nil
}

// List returns the caller's projects.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]ProjectDTO, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list projects")
	}
	out := make([]ProjectDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

// Update edits draft fields. Projects that already generated content keep
// their premise and style so assets stay explainable.
func (s *Service) Update(ctx context.Context, projectID, userID uuid.UUID, req UpdateProjectRequest) (*ProjectDTO, error) {
	project, err := s.findOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if project.Status != enums.ProjectStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft projects can be edited")
	}

	fields := map[string]any{}
	if req.Title != nil {
		fields["title"] = *req.Title
	}
	if req.Premise != nil {
		fields["premise"] = *req.Premise
	}
	if req.ArtStyle != nil {
		fields["art_style"] = *req.ArtStyle
	}
	if len(fields) == 0 {
		return FromModel(project), nil
	}

	if err := s.repo.UpdateFields(ctx, projectID, fields); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update project")
	}
	return s.Get(ctx, projectID, userID)
}

// Delete soft-deletes an owned project.
func (s *Service) Delete(ctx context.Context, projectID, userID uuid.UUID) error {
	if _, err := s.findOwned(ctx, projectID, userID); err != nil {
		return err
	}
	deleted, err := s.repo.SoftDelete(ctx, projectID, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete project")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	return nil
}

// Transition moves the project between lifecycle states, enforcing the
// DRAFT → GENERATING → COMPLETED|FAILED graph (FAILED may re-enter GENERATING).
func (s *Service) Transition(ctx context.Context, projectID uuid.UUID, from, to enums.ProjectStatus) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("project cannot move from %s to %s", from, to))
	}
	moved, err := s.repo.UpdateStatus(ctx, projectID, from, to)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transition project")
	}
	if !moved {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "project status changed concurrently")
	}
	return nil
}

// UpdateTotalPages caches the script's page count on the project row. The
// scenes service calls this after every script replacement.
func (s *Service) UpdateTotalPages(ctx context.Context, projectID uuid.UUID, totalPages int) error {
	if err := s.repo.UpdateTotalPages(ctx, projectID, totalPages); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update total pages")
	}
	return nil
}

// FindOwned loads the raw model after an ownership check. Other services use
// this before dispatching work on a project.
func (s *Service) FindOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	return s.findOwned(ctx, projectID, userID)
}

func (s *Service) findOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load project")
	}
	if project.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "project belongs to another user")
	}
	return project, nil
}
