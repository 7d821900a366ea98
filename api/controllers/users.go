package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/api/responses"
	"github.com/inkwell-systems/comicforge-backend/api/validators"
	"github.com/inkwell-systems/comicforge-backend/internal/users"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// UserRepository is the read surface the profile endpoint needs.
type UserRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuditRepository lists audit trail entries for a user.
type AuditRepository interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.AuditLog, error)
}

type auditEntryDTO struct {
	ID        uuid.UUID            `json:"id"`
	EventType enums.AuditEventType `json:"event_type"`
	PaymentID *uuid.UUID           `json:"payment_id,omitempty"`
	OldPlan   *enums.UserPlan      `json:"old_plan,omitempty"`
	NewPlan   *enums.UserPlan      `json:"new_plan,omitempty"`
	Detail    *string              `json:"detail,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// UserProfile returns the caller's own account, plan and quota state.
func UserProfile(repo UserRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users repository unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := repo.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "account not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user"))
			return
		}

		responses.WriteSuccess(w, map[string]*users.UserDTO{"user": users.FromModel(user)})
	}
}

// UserAuditLog lists the caller's newest audit trail entries.
func UserAuditLog(repo AuditRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "audit repository unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultAuditLimit, 1, maxAuditLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := repo.ListByUser(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit log"))
			return
		}

		out := make([]auditEntryDTO, 0, len(entries))
		for _, entry := range entries {
			out = append(out, auditEntryDTO{
				ID:        entry.ID,
				EventType: entry.EventType,
				PaymentID: entry.PaymentID,
				OldPlan:   entry.OldPlan,
				NewPlan:   entry.NewPlan,
				Detail:    entry.Detail,
				CreatedAt: entry.CreatedAt,
			})
		}

		responses.WriteSuccess(w, map[string]any{"entries": out})
	}
}
