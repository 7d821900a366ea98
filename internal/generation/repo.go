package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Repository persists generation jobs. The partial unique index
// ux_generations_project_active makes Create fail when the project already
// holds an active job.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to a transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, gen *models.Generation) error {
	return r.db.WithContext(ctx).Create(gen).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Generation, error) {
	var gen models.Generation
	if err := r.db.WithContext(ctx).First(&gen, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

func (r *Repository) FindByTaskID(ctx context.Context, taskID string) (*models.Generation, error) {
	var gen models.Generation
	if err := r.db.WithContext(ctx).First(&gen, "task_id = ?", taskID).Error; err != nil {
		return nil, err
	}
	return &gen, nil
}

// FindLatestByProject returns the project's newest job, terminal or not.
func (r *Repository) FindLatestByProject(ctx context.Context, projectID uuid.UUID) (*models.Generation, error) {
	var gen models.Generation
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		First(&gen).Error
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

func (r *Repository) SetTaskID(ctx context.Context, id uuid.UUID, taskID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ?", id).
		UpdateColumn("task_id", taskID).Error
}

// MarkProcessing flips an active job into PROCESSING. Redeliveries of a job
// that is already PROCESSING match too; only terminal rows report false.
func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, []enums.GenerationStatus{
			enums.GenerationStatusQueued,
			enums.GenerationStatusProcessing,
		}).
		UpdateColumns(map[string]any{
			"status":     enums.GenerationStatusProcessing,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", at),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateProgress only ever moves forward; a redelivered job that re-runs
// earlier steps cannot drag the reported progress back down.
func (r *Repository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	return r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ?", id).
		UpdateColumn("progress", gorm.Expr("GREATEST(progress, ?)", progress)).Error
}

func (r *Repository) MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND status = ?", id, enums.GenerationStatusProcessing).
		UpdateColumns(map[string]any{
			"status":       enums.GenerationStatusCompleted,
			"progress":     100,
			"completed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, at time.Time, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Generation{}).
		Where("id = ? AND status IN ?", id, []enums.GenerationStatus{
			enums.GenerationStatusQueued,
			enums.GenerationStatusProcessing,
		}).
		UpdateColumns(map[string]any{
			"status":        enums.GenerationStatusFailed,
			"error_message": reason,
			"completed_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementRetry bumps the attempt counter and returns the new value.
func (r *Repository) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	var retryCount int
	err := r.db.WithContext(ctx).
		Raw("UPDATE generations SET retry_count = retry_count + 1, updated_at = NOW() WHERE id = ? RETURNING retry_count", id).
		Scan(&retryCount).Error
	if err != nil {
		return 0, err
	}
	return retryCount, nil
}
