package assets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
)

// ComicRepository persists rendered page metadata, one row per
// (project, page_no). Re-running a generation overwrites in place.
type ComicRepository struct {
	db *gorm.DB
}

func NewComicRepository(db *gorm.DB) *ComicRepository {
	return &ComicRepository{db: db}
}

func (r *ComicRepository) WithTx(tx *gorm.DB) *ComicRepository {
	if tx == nil {
		return r
	}
	return &ComicRepository{db: tx}
}

func (r *ComicRepository) Upsert(ctx context.Context, asset *models.ComicAsset) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}, {Name: "page_no"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"generation_id", "object_path", "url", "url_expires_at",
				"seed", "watermarked", "updated_at",
			}),
		}).
		Create(asset).Error
}

func (r *ComicRepository) FindByProjectPage(ctx context.Context, projectID uuid.UUID, pageNo int) (*models.ComicAsset, error) {
	var asset models.ComicAsset
	err := r.db.WithContext(ctx).
		First(&asset, "project_id = ? AND page_no = ?", projectID, pageNo).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *ComicRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ComicAsset, error) {
	var rows []models.ComicAsset
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("page_no ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// RefreshURL stores a newly signed URL and its expiry.
func (r *ComicRepository) RefreshURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ComicAsset{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"url": url, "url_expires_at": expiresAt}).Error
}

// IncrementDownloadCount is best effort; delivery never fails on it.
func (r *ComicRepository) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.ComicAsset{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

// PdfRepository persists the compiled PDF record, one per project.
type PdfRepository struct {
	db *gorm.DB
}

func NewPdfRepository(db *gorm.DB) *PdfRepository {
	return &PdfRepository{db: db}
}

func (r *PdfRepository) WithTx(tx *gorm.DB) *PdfRepository {
	if tx == nil {
		return r
	}
	return &PdfRepository{db: tx}
}

func (r *PdfRepository) Upsert(ctx context.Context, asset *models.PdfAsset) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"generation_id", "object_path", "url", "url_expires_at",
				"page_count", "file_size_bytes", "updated_at",
			}),
		}).
		Create(asset).Error
}

func (r *PdfRepository) FindByProject(ctx context.Context, projectID uuid.UUID) (*models.PdfAsset, error) {
	var asset models.PdfAsset
	err := r.db.WithContext(ctx).First(&asset, "project_id = ?", projectID).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *PdfRepository) RefreshURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PdfAsset{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"url": url, "url_expires_at": expiresAt}).Error
}

func (r *PdfRepository) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.PdfAsset{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}
