package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

// UserDTO is the transport shape that omits sensitive credentials.
type UserDTO struct {
	ID                 uuid.UUID           `json:"id"`
	Email              string              `json:"email"`
	DisplayName        string              `json:"display_name"`
	Plan               enums.UserPlan      `json:"plan"`
	AccountStatus      enums.AccountStatus `json:"account_status"`
	FreeStoryAvailable bool                `json:"free_story_available"`
	FreeStoryUsed      bool                `json:"free_story_used"`
	MonthlyQuota       int                 `json:"monthly_quota"`
	QuotaUsed          int                 `json:"quota_used"`
	LastLoginAt        *time.Time          `json:"last_login_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email        string
	PasswordHash string
	DisplayName  string
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:                 u.ID,
		Email:              u.Email,
		DisplayName:        u.DisplayName,
		Plan:               u.Plan,
		AccountStatus:      u.AccountStatus,
		FreeStoryAvailable: u.FreeStoryAvailable,
		FreeStoryUsed:      u.FreeStoryUsed,
		MonthlyQuota:       u.MonthlyQuota,
		QuotaUsed:          u.QuotaUsed,
		LastLoginAt:        u.LastLoginAt,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	return &models.User{
		Email:              c.Email,
		PasswordHash:       c.PasswordHash,
		DisplayName:        c.DisplayName,
		Plan:               enums.UserPlanFree,
		AccountStatus:      enums.AccountStatusActive,
		FreeStoryAvailable: true,
	}
}
