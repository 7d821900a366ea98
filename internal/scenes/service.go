package scenes

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
)

const panelsPerPage = 4

// Service manages the script of a project.
type Service struct {
	repo     sceneRepository
	projects projectGate
	plans    *plans.Service
}

type sceneRepository interface {
	ReplaceProject(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error)
}

type projectGate interface {
	FindOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
	UpdateTotalPages(ctx context.Context, id uuid.UUID, totalPages int) error
}

// ServiceParams groups dependencies for the scenes service.
type ServiceParams struct {
	Repo     sceneRepository
	Projects projectGate
	Plans    *plans.Service
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Projects == nil {
		return nil, errors.New("projects gate is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	return &Service{repo: params.Repo, projects: params.Projects, plans: params.Plans}, nil
}

// Replace swaps the project's script for the submitted pages. Scripts can
// only change while the project is a draft, and the page count is capped by
// the plan frozen onto the project at creation time.
func (s *Service) Replace(ctx context.Context, projectID, userID uuid.UUID, req ReplaceScenesRequest) ([]PageDTO, error) {
	project, err := s.projects.FindOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if project.Status != enums.ProjectStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft projects can be edited")
	}

	policy := s.plans.PolicyFor(project.PlanSnapshot)
	if len(req.Pages) > policy.MaxPages {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("plan %s allows at most %d pages", project.PlanSnapshot, policy.MaxPages)).
			WithDetails(map[string]any{"max_pages": policy.MaxPages, "requested": len(req.Pages)})
	}

	rows, err := toModels(projectID, req.Pages)
	if err != nil {
		return nil, err
	}
	if err := s.repo.ReplaceProject(ctx, projectID, rows); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replace scenes")
	}
	if err := s.projects.UpdateTotalPages(ctx, projectID, len(req.Pages)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update total pages")
	}
	return s.list(ctx, projectID)
}

// List returns the owner's script grouped by page.
func (s *Service) List(ctx context.Context, projectID, userID uuid.UUID) ([]PageDTO, error) {
	if _, err := s.projects.FindOwned(ctx, projectID, userID); err != nil {
		return nil, err
	}
	return s.list(ctx, projectID)
}

func (s *Service) list(ctx context.Context, projectID uuid.UUID) ([]PageDTO, error) {
	rows, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list scenes")
	}
	return pagesFromModels(rows), nil
}

// toModels validates the page and panel numbering. Pages run 1..N without
// gaps and every page carries panels 1..4.
func toModels(projectID uuid.UUID, pages []PageInput) ([]models.Scene, error) {
	rows := make([]models.Scene, 0, len(pages)*panelsPerPage)
	for i, page := range pages {
		if page.PageNo != i+1 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("pages must be numbered sequentially, expected page %d got %d", i+1, page.PageNo))
		}
		if len(page.Panels) != panelsPerPage {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("page %d must have exactly %d panels", page.PageNo, panelsPerPage))
		}
		for j, panel := range page.Panels {
			if panel.PanelNo != j+1 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("page %d panels must be numbered 1..%d", page.PageNo, panelsPerPage))
			}
			if panel.Action == "" || panel.Setting == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation,
					fmt.Sprintf("page %d panel %d is missing action or setting", page.PageNo, panel.PanelNo))
			}
			dialogue := panel.Dialogue
			if dialogue == nil {
				dialogue = []string{}
			}
			rows = append(rows, models.Scene{
				ProjectID: projectID,
				PageNo:    page.PageNo,
				PanelNo:   panel.PanelNo,
				Dialogue:  pq.StringArray(dialogue),
				Action:    panel.Action,
				Setting:   panel.Setting,
				Caption:   panel.Caption,
			})
		}
	}
	return rows, nil
}
