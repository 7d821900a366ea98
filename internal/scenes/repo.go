package scenes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
)

// Repository persists scenes. Scenes are keyed by
// (project_id, page_no, panel_no) and writes are upserts against that key.
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

// UpsertBatch writes scenes, replacing any panel already stored under the
// same (project, page, panel) key.
func (r *Repository) UpsertBatch(ctx context.Context, scenes []models.Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "page_no"}, {Name: "panel_no"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"dialogue", "action", "setting", "caption", "updated_at",
			}),
		}).
		Create(&scenes).Error
}

// ReplaceProject swaps a project's entire script in one transaction so a
// shrinking script cannot leave stale trailing pages behind.
func (r *Repository) ReplaceProject(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Scene{}).Error; err != nil {
			return err
		}
		if len(scenes) == 0 {
			return nil
		}
		return tx.Create(&scenes).Error
	})
}

// ListByProject returns all scenes ordered by page then panel.
func (r *Repository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error) {
	var scenes []models.Scene
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("page_no ASC, panel_no ASC").
		Find(&scenes).Error
	if err != nil {
		return nil, err
	}
	return scenes, nil
}

// ListByPage returns the scenes of one page ordered by panel.
func (r *Repository) ListByPage(ctx context.Context, projectID uuid.UUID, pageNo int) ([]models.Scene, error) {
	var scenes []models.Scene
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND page_no = ?", projectID, pageNo).
		Order("panel_no ASC").
		Find(&scenes).Error
	if err != nil {
		return nil, err
	}
	return scenes, nil
}

// MaxPageNo reports the highest page number stored for a project, zero when
// the project has no scenes.
func (r *Repository) MaxPageNo(ctx context.Context, projectID uuid.UUID) (int, error) {
	var maxPage *int
	err := r.db.WithContext(ctx).
		Model(&models.Scene{}).
		Where("project_id = ?", projectID).
		Select("MAX(page_no)").
		Scan(&maxPage).Error
	if err != nil {
		return 0, err
	}
	if maxPage == nil {
		return 0, nil
	}
	return *maxPage, nil
}

// DeleteByProject removes every scene of a project.
func (r *Repository) DeleteByProject(ctx context.Context, projectID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Delete(&models.Scene{}).Error
}
