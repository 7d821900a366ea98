package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/api/middleware"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
)

type fakeUserFinder struct {
	user *models.User
	err  error
}

func (f *fakeUserFinder) FindByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

type fakeAuditLister struct {
	entries []models.AuditLog
	limit   int
}

func (f *fakeAuditLister) ListByUser(_ context.Context, _ uuid.UUID, limit int) ([]models.AuditLog, error) {
	f.limit = limit
	return f.entries, nil
}

func authedRequest(method, target string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	ctx := middleware.WithUserID(req.Context(), userID.String())
	return req.WithContext(ctx)
}

func TestUserProfile(t *testing.T) {
	userID := uuid.New()
	finder := &fakeUserFinder{user: &models.User{
		ID:           userID,
		Email:        "ana@example.com",
		DisplayName:  "Ana",
		Plan:         enums.UserPlanPro,
		MonthlyQuota: 50,
		QuotaUsed:    3,
	}}
	handler := UserProfile(finder, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/users/me", userID))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data struct {
			User struct {
				Email string `json:"email"`
				Plan  string `json:"plan"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.User.Email != "ana@example.com" || envelope.Data.User.Plan != "PRO" {
		t.Fatalf("unexpected payload: %+v", envelope.Data.User)
	}
}

func TestUserProfileMissingAccount(t *testing.T) {
	handler := UserProfile(&fakeUserFinder{err: gorm.ErrRecordNotFound}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/users/me", uuid.New()))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for vanished account, got %d", rec.Code)
	}
}

func TestUserProfileWithoutAuthContext(t *testing.T) {
	handler := UserProfile(&fakeUserFinder{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth context, got %d", rec.Code)
	}
}

func TestUserAuditLogClampsLimit(t *testing.T) {
	lister := &fakeAuditLister{entries: []models.AuditLog{
		{ID: uuid.New(), EventType: enums.AuditEventUserLogin, CreatedAt: time.Now()},
	}}
	handler := UserAuditLog(lister, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/users/me/audit?limit=25", uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if lister.limit != 25 {
		t.Fatalf("expected limit 25 passed through, got %d", lister.limit)
	}
}
