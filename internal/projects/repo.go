package projects

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Repository exposes project persistence. Soft deletion is explicit: every
// read filters deleted_at, nothing is ever removed from the table here.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a projects repo bound to the provided GORM DB.
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

func (r *Repository) live(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Where("deleted_at IS NULL")
}

// Create inserts a new project.
func (r *Repository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// FindByID loads a live project.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	if err := r.live(ctx).First(&project, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

// ListByUser returns the user's live projects, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Project, error) {
	var projects []models.Project
	if err := r.live(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// UpdateFields patches the provided columns on a live project.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.live(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumns(fields).Error
}

// UpdateStatus moves the project between lifecycle states. The guard on the
// current status keeps concurrent writers from skipping transitions.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProjectStatus) (bool, error) {
	res := r.live(ctx).
		Model(&models.Project{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateTotalPages recomputes the cached page count.
func (r *Repository) UpdateTotalPages(ctx context.Context, id uuid.UUID, totalPages int) error {
	return r.live(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumn("total_pages", totalPages).Error
}

// SoftDelete stamps deleted_at; the row stays for audit and asset linkage.
func (r *Repository) SoftDelete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.live(ctx).
		Model(&models.Project{}).
		Where("id = ?", id).
		UpdateColumn("deleted_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
