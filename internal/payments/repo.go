package payments

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// Repository persists payments keyed by the gateway order id.
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

func (r *Repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) FindByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyEvent records a webhook event against the order in one conditional
// update: the event id is appended to processed_events and the field updates
// land only if that id has not been seen before and the row has not reached
// a terminal status. The boolean result reports whether this delivery won;
// a replay or a late event against a settled row matches zero rows and must
// not re-run side effects.
func (r *Repository) ApplyEvent(ctx context.Context, orderID, eventID string, updates map[string]any) (bool, error) {
	assignments := map[string]any{
		"processed_events": gorm.Expr("array_append(processed_events, ?)", eventID),
	}
	for column, value := range updates {
		assignments[column] = value
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("order_id = ?", orderID).
		Where("status NOT IN ?", []enums.PaymentStatus{
			enums.PaymentStatusSuccess,
			enums.PaymentStatusFailed,
			enums.PaymentStatusRefunded,
		}).
		Where("NOT (processed_events @> ARRAY[?]::text[])", eventID).
		Updates(assignments)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
