package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
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

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdatePlan moves the user onto a plan with its fresh quota window.
func (r *Repository) UpdatePlan(ctx context.Context, id uuid.UUID, plan enums.UserPlan, monthlyQuota int, resetAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"plan":           plan,
			"monthly_quota":  monthlyQuota,
			"quota_used":     0,
			"quota_reset_at": resetAt,
		}).Error
}

// MarkFreeStoryUsed flips the one-shot free story pair. Both columns move
// in the same conditional update so concurrent jobs cannot both claim the
// free story; the boolean result reports whether this caller won.
func (r *Repository) MarkFreeStoryUsed(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND free_story_available AND NOT free_story_used", id).
		UpdateColumns(map[string]any{
			"free_story_used":      true,
			"free_story_available": false,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementQuotaUsed counts one successful generation against the user's
// monthly window, rolling the window over first when it has expired.
func (r *Repository) IncrementQuotaUsed(ctx context.Context, id uuid.UUID, now, nextReset time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND quota_reset_at IS NOT NULL AND quota_reset_at < ?", id, now).
		UpdateColumns(map[string]any{
			"quota_used":     0,
			"quota_reset_at": nextReset,
		})
	if res.Error != nil {
		return res.Error
	}
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("quota_used", gorm.Expr("quota_used + 1")).Error
}
