package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Entry describes one audit trail event. The trail is append-only; there is
// no update or delete path.
type Entry struct {
	UserID    *uuid.UUID
	EventType enums.AuditEventType
	PaymentID *uuid.UUID
	OldPlan   *enums.UserPlan
	NewPlan   *enums.UserPlan
	Detail    *string
}

// Repository persists audit trail entries.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an audit repo bound to the provided GORM DB.
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

// Append writes one entry to the trail.
func (r *Repository) Append(ctx context.Context, entry Entry) error {
	row := &models.AuditLog{
		UserID:    entry.UserID,
		EventType: entry.EventType,
		PaymentID: entry.PaymentID,
		OldPlan:   entry.OldPlan,
		NewPlan:   entry.NewPlan,
		Detail:    entry.Detail,
	}
	return r.db.WithContext(ctx).Create(row).Error
}

// ListByUser returns the newest entries for a user.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AuditLog
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
