package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/db"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const activeJobConstraint = "ux_generations_project_active"

// GenerationDTO is the transport shape of a job.
type GenerationDTO struct {
	ID           uuid.UUID              `json:"id"`
	ProjectID    uuid.UUID              `json:"project_id"`
	TaskType     enums.TaskType         `json:"task_type"`
	Status       enums.GenerationStatus `json:"status"`
	Progress     int                    `json:"progress"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	StartedAt    *time.Time             `json:"started_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

func fromModel(g *models.Generation) *GenerationDTO {
	if g == nil {
		return nil
	}
	return &GenerationDTO{
		ID:           g.ID,
		ProjectID:    g.ProjectID,
		TaskType:     g.TaskType,
		Status:       g.Status,
		Progress:     g.Progress,
		ErrorMessage: g.ErrorMessage,
		StartedAt:    g.StartedAt,
		CompletedAt:  g.CompletedAt,
		CreatedAt:    g.CreatedAt,
	}
}

// Dispatcher enqueues jobs and answers status reads. Rendering happens on
// the worker, never here.
type Dispatcher struct {
	repo     dispatchRepository
	projects projectGate
	users    userFinder
	assets   assetCounter
	plans    *plans.Service
	pub      taskPublisher
	logg     *logger.Logger
	now      func() time.Time
}

type dispatchRepository interface {
	Create(ctx context.Context, gen *models.Generation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	FindLatestByProject(ctx context.Context, projectID uuid.UUID) (*models.Generation, error)
	SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error)
}

type projectGate interface {
	FindOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
	Transition(ctx context.Context, projectID uuid.UUID, from, to enums.ProjectStatus) error
}

type userFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type assetCounter interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ComicAsset, error)
}

type taskPublisher interface {
	Publish(ctx context.Context, data []byte) (string, error)
}

// DispatcherParams groups dependencies for the dispatcher.
type DispatcherParams struct {
	Repo      dispatchRepository
	Projects  projectGate
	Users     userFinder
	Assets    assetCounter
	Plans     *plans.Service
	Publisher taskPublisher
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Projects == nil {
		return nil, errors.New("projects gate is required")
	}
	if params.Users == nil {
		return nil, errors.New("users repo is required")
	}
	if params.Assets == nil {
		return nil, errors.New("assets repo is required")
	}
	if params.Plans == nil {
		return nil, errors.New("plans service is required")
	}
	if params.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		repo:     params.Repo,
		projects: params.Projects,
		users:    params.Users,
		assets:   params.Assets,
		plans:    params.Plans,
		pub:      params.Publisher,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Enqueue admits one job for the project. The partial unique index on active
// generations is the arbiter when callers race; losers get a conflict.
func (d *Dispatcher) Enqueue(ctx context.Context, projectID, userID uuid.UUID, taskType enums.TaskType) (*GenerationDTO, error) {
	if !taskType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown task type")
	}
	project, err := d.projects.FindOwned(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}

	switch taskType {
	case enums.TaskTypeComicGeneration:
		if err := d.admitComicGeneration(ctx, project, userID); err != nil {
			return nil, err
		}
	case enums.TaskTypePDFExport:
		if err := d.admitPDFExport(ctx, project); err != nil {
			return nil, err
		}
	}

	gen := &models.Generation{
		ProjectID: project.ID,
		UserID:    userID,
		TaskType:  taskType,
		Status:    enums.GenerationStatusQueued,
	}
	if err := d.repo.Create(ctx, gen); err != nil {
		if db.IsUniqueViolation(err, activeJobConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "a task is already running for this project")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create generation")
	}

	ctx = d.logg.WithProjectID(ctx, project.ID.String())

	if taskType == enums.TaskTypeComicGeneration {
		if err := d.projects.Transition(ctx, project.ID, project.Status, enums.ProjectStatusGenerating); err != nil {
			_, _ = d.repo.MarkFailed(ctx, gen.ID, d.now(), "project left its enqueueable state")
			return nil, err
		}
	}

	msg, err := TaskMessage{
		GenerationID: gen.ID,
		ProjectID:    project.ID,
		UserID:       userID,
		TaskType:     taskType,
	}.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode task message")
	}

	taskID, err := d.pub.Publish(ctx, msg)
	if err != nil {
		d.failUnpublished(ctx, gen, project, taskType)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publish task")
	}
	if err := d.repo.SetTaskID(ctx, gen.ID, taskID); err != nil {
		d.logg.Error(ctx, "record task id", err)
	}

	d.logg.Info(ctx, fmt.Sprintf("enqueued %s task %s", taskType, taskID))
	gen.TaskID = &taskID
	return fromModel(gen), nil
}

func (d *Dispatcher) admitComicGeneration(ctx context.Context, project *models.Project, userID uuid.UUID) error {
	if project.Status != enums.ProjectStatusDraft && project.Status != enums.ProjectStatusFailed {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("project in status %s cannot start generation", project.Status))
	}
	if project.TotalPages < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "project has no scripted pages")
	}

	policy := d.plans.PolicyFor(project.PlanSnapshot)
	if project.TotalPages > policy.MaxPages {
		return pkgerrors.New(pkgerrors.CodeForbidden,
			fmt.Sprintf("plan %s allows at most %d pages", project.PlanSnapshot, policy.MaxPages))
	}

	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}

	if project.PlanSnapshot == enums.UserPlanFree {
		if !user.FreeStoryAvailable || user.FreeStoryUsed {
			return pkgerrors.New(pkgerrors.CodeForbidden, "free story already used")
		}
		return nil
	}
	return d.plans.CheckQuota(user)
}

func (d *Dispatcher) admitPDFExport(ctx context.Context, project *models.Project) error {
	if project.Status != enums.ProjectStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "only completed projects can be exported")
	}
	rendered, err := d.assets.ListByProject(ctx, project.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list rendered pages")
	}
	if len(rendered) < project.TotalPages {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "project pages are not fully rendered")
	}
	return nil
}

// failUnpublished closes out a job whose message never reached the broker.
func (d *Dispatcher) failUnpublished(ctx context.Context, gen *models.Generation, project *models.Project, taskType enums.TaskType) {
	if _, err := d.repo.MarkFailed(ctx, gen.ID, d.now(), "task could not be published"); err != nil {
		d.logg.Error(ctx, "fail unpublished generation", err)
	}
	if taskType == enums.TaskTypeComicGeneration {
		if err := d.projects.Transition(ctx, project.ID, enums.ProjectStatusGenerating, enums.ProjectStatusFailed); err != nil {
			d.logg.Error(ctx, "fail project after publish error", err)
		}
	}
}

// Get returns one of the caller's jobs. It is a pure read.
func (d *Dispatcher) Get(ctx context.Context, generationID, userID uuid.UUID) (*GenerationDTO, error) {
	gen, err := d.repo.FindByID(ctx, generationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "generation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load generation")
	}
	if gen.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "generation belongs to another user")
	}
	return fromModel(gen), nil
}

// LatestForProject returns the newest job on a project the caller owns.
func (d *Dispatcher) LatestForProject(ctx context.Context, projectID, userID uuid.UUID) (*GenerationDTO, error) {
	if _, err := d.projects.FindOwned(ctx, projectID, userID); err != nil {
		return nil, err
	}
	gen, err := d.repo.FindLatestByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project has no generation jobs")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest generation")
	}
	return fromModel(gen), nil
}
