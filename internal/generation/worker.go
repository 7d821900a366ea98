package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/metrics"
)

const progressStarted = 5

// Worker consumes task messages and drives the engine. Delivery is at least
// once; everything the worker touches tolerates re-execution.
type Worker struct {
	subscription *pubsub.Subscriber
	repo         workerRepository
	projects     workerProjects
	engine       taskEngine
	auditTrail   workerAudit
	taskMetrics  *metrics.TaskMetrics
	maxAttempts  int
	logg         *logger.Logger
	now          func() time.Time
}

type workerRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Generation, error)
	MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error)
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
}

type workerProjects interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProjectStatus) (bool, error)
}

type taskEngine interface {
	RenderComic(ctx context.Context, gen *models.Generation) error
	ExportPDF(ctx context.Context, gen *models.Generation) error
}

type workerAudit interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// WorkerParams groups dependencies for the worker.
type WorkerParams struct {
	Subscription *pubsub.Subscriber
	Repo         workerRepository
	Projects     workerProjects
	Engine       taskEngine
	Audit        workerAudit
	Metrics      *metrics.TaskMetrics
	MaxAttempts  int
	Logger       *logger.Logger
	Now          func() time.Time
}

func NewWorker(params WorkerParams) (*Worker, error) {
	if params.Subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Projects == nil {
		return nil, errors.New("projects repo is required")
	}
	if params.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Worker{
		subscription: params.Subscription,
		repo:         params.Repo,
		projects:     params.Projects,
		engine:       params.Engine,
		auditTrail:   params.Audit,
		taskMetrics:  params.Metrics,
		maxAttempts:  maxAttempts,
		logg:         params.Logger,
		now:          now,
	}, nil
}

// Run processes messages until the context is canceled or the subscription errors.
func (w *Worker) Run(ctx context.Context) error {
	return w.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if w.Process(ctx, msg.ID, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Process handles one delivery. The returned boolean is the ack decision:
// false sends the message back for redelivery.
func (w *Worker) Process(ctx context.Context, messageID string, data []byte) bool {
	task, err := DecodeTaskMessage(data)
	if err != nil {
		// a message that cannot be decoded will never decode on redelivery
		w.logg.Error(ctx, "discarding undecodable task message", err)
		return true
	}

	ctx = w.logg.WithProjectID(ctx, task.ProjectID.String())
	ctx = w.logg.WithTaskID(ctx, messageID)

	gen, err := w.repo.FindByID(ctx, task.GenerationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			w.logg.Warn(ctx, "generation row missing for task message")
			return true
		}
		w.logg.Error(ctx, "load generation", err)
		return false
	}
	if gen.Status.IsTerminal() {
		w.logg.Info(ctx, "generation already settled")
		return true
	}

	active, err := w.repo.MarkProcessing(ctx, gen.ID, w.now())
	if err != nil {
		w.logg.Error(ctx, "mark generation processing", err)
		return false
	}
	if !active {
		w.logg.Info(ctx, "generation settled concurrently")
		return true
	}
	if err := w.repo.UpdateProgress(ctx, gen.ID, progressStarted); err != nil {
		w.logg.Error(ctx, "record initial progress", err)
		return false
	}

	started := w.now()
	runErr := w.run(ctx, gen)
	w.taskMetrics.ObserveDuration(gen.TaskType.String(), w.now().Sub(started))

	if runErr == nil {
		if _, err := w.repo.MarkCompleted(ctx, gen.ID, w.now()); err != nil {
			w.logg.Error(ctx, "mark generation completed", err)
			return false
		}
		w.taskMetrics.IncSuccess(gen.TaskType.String())
		w.logg.Info(ctx, fmt.Sprintf("%s finished", gen.TaskType))
		return true
	}

	if IsFatal(runErr) {
		w.logg.Error(ctx, "task failed permanently", runErr)
		w.settleFailure(ctx, gen, runErr)
		return true
	}

	retries, err := w.repo.IncrementRetry(ctx, gen.ID)
	if err != nil {
		w.logg.Error(ctx, "increment retry count", err)
		return false
	}
	if retries >= w.maxAttempts {
		w.logg.Error(ctx, fmt.Sprintf("task exhausted %d attempts", retries), runErr)
		w.settleFailure(ctx, gen, runErr)
		return true
	}

	w.taskMetrics.IncRetry(gen.TaskType.String())
	w.logg.Warn(ctx, fmt.Sprintf("task attempt %d failed, redelivering: %v", retries, runErr))
	return false
}

func (w *Worker) run(ctx context.Context, gen *models.Generation) error {
	switch gen.TaskType {
	case enums.TaskTypeComicGeneration:
		return w.engine.RenderComic(ctx, gen)
	case enums.TaskTypePDFExport:
		return w.engine.ExportPDF(ctx, gen)
	default:
		return Fatal(fmt.Errorf("unknown task type %s", gen.TaskType))
	}
}

func (w *Worker) settleFailure(ctx context.Context, gen *models.Generation, cause error) {
	w.taskMetrics.IncFailure(gen.TaskType.String())
	if _, err := w.repo.MarkFailed(ctx, gen.ID, w.now(), cause.Error()); err != nil {
		w.logg.Error(ctx, "mark generation failed", err)
	}
	if gen.TaskType == enums.TaskTypeComicGeneration {
		if _, err := w.projects.UpdateStatus(ctx, gen.ProjectID, enums.ProjectStatusGenerating, enums.ProjectStatusFailed); err != nil {
			w.logg.Error(ctx, "mark project failed", err)
		}
	}
	detail := cause.Error()
	if err := w.auditTrail.Append(ctx, audit.Entry{
		UserID:    &gen.UserID,
		EventType: enums.AuditEventGenerationFailed,
		Detail:    &detail,
	}); err != nil {
		w.logg.Error(ctx, "append generation failure audit entry", err)
	}
}
