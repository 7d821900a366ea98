package story

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/internal/scenes"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/llm"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

// GenerateRequest asks the model to script a project.
type GenerateRequest struct {
	Pages int `json:"pages" validate:"required,min=1"`
}

// GenerateResponse carries the scripted pages and the title the model chose.
type GenerateResponse struct {
	Title string           `json:"title"`
	Pages []scenes.PageDTO `json:"pages"`
}

// Service scripts projects through the language model and stores the result
// as the project's scenes.
type Service struct {
	generator storyGenerator
	scenes    sceneWriter
	projects  projectGate
	plans     *plans.Service
	logg      *logger.Logger
}

type storyGenerator interface {
	GenerateStory(ctx context.Context, params llm.StoryParams) (*llm.Story, error)
}

type sceneWriter interface {
	Replace(ctx context.Context, projectID, userID uuid.UUID, req scenes.ReplaceScenesRequest) ([]scenes.PageDTO, error)
}

type projectGate interface {
	FindOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
}

// ServiceParams groups dependencies for the story service.
type ServiceParams struct {
	Generator storyGenerator
	Scenes    sceneWriter
	Projects  projectGate
	Plans     *plans.Service
	Logger    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Generator == nil {
		return nil, errors.New("story generator is required")
	}
	if params.Scenes == nil {
		return nil, errors.New("scene writer is required")
	}
	if params.Projects == nil {
		return nil, errors.New("projects gate is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		generator: params.Generator,
		scenes:    params.Scenes,
		projects:  params.Projects,
		plans:     params.Plans,
		logg:      params.Logger,
	}, nil
}

// Generate scripts the project from its premise and replaces its scenes.
// The plan frozen on the project caps the page count before any model call
// is made.
func (s *Service) Generate(ctx context.Context, projectID, userID uuid.UUID, req GenerateRequest) (*GenerateResponse, error) {
	project, err := s.projects.FindOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if project.Status != enums.ProjectStatusDraft {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only draft projects can be scripted")
	}

	policy := s.plans.PolicyFor(project.PlanSnapshot)
	if req.Pages < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pages must be at least 1")
	}
	if req.Pages > policy.MaxPages {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("plan %s allows at most %d pages", project.PlanSnapshot, policy.MaxPages)).
			WithDetails(map[string]any{"max_pages": policy.MaxPages, "requested": req.Pages})
	}

	generated, err := s.generator.GenerateStory(ctx, llm.StoryParams{
		Premise:  project.Premise,
		ArtStyle: project.ArtStyle,
		Pages:    req.Pages,
	})
	if err != nil {
		if errors.Is(err, llm.ErrInvalidStory) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "model returned an unusable script")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "story generation failed")
	}

	ctx = s.logg.WithProjectID(ctx, project.ID.String())
	s.logg.Info(ctx, fmt.Sprintf("scripted %d pages", len(generated.Pages)))

	pages, err := s.scenes.Replace(ctx, projectID, userID, toReplaceRequest(generated))
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Title: generated.Title, Pages: pages}, nil
}

func toReplaceRequest(story *llm.Story) scenes.ReplaceScenesRequest {
	pages := make([]scenes.PageInput, 0, len(story.Pages))
	for _, page := range story.Pages {
		panels := make([]scenes.PanelInput, 0, len(page.Panels))
		for _, panel := range page.Panels {
			panels = append(panels, scenes.PanelInput{
				PanelNo:  panel.PanelNo,
				Dialogue: panel.Dialogue,
				Action:   panel.Action,
				Setting:  panel.Setting,
				Caption:  panel.Caption,
			})
		}
		pages = append(pages, scenes.PageInput{PageNo: page.PageNo, Panels: panels})
	}
	return scenes.ReplaceScenesRequest{Pages: pages}
}
