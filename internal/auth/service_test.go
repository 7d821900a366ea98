package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	pkgAuth "github.com/inkwell-systems/comicforge-backend/pkg/auth"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/security"
)

type stubUserRepo struct {
	data map[string]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{data: map[string]*models.User{}}
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.data[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

type stubAuditRepo struct {
	entries []audit.Entry
}

func (s *stubAuditRepo) Append(_ context.Context, entry audit.Entry) error {
	s.entries = append(s.entries, entry)
	return nil
}

type stubSession struct{}

func (stubSession) Generate(_ context.Context, accessID string) (string, error) {
	return "refresh-" + accessID, nil
}

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "comicforge",
		ExpirationMinutes: 30,
	}
}

func mustHashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func buildLoginService(t *testing.T, user *models.User) (Service, *stubAuditRepo) {
	t.Helper()
	repo := newStubUserRepo()
	if user != nil {
		repo.data[user.Email] = user
	}
	auditRepo := &stubAuditRepo{}
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		AuditRepo:      auditRepo,
		SessionManager: stubSession{},
		JWTConfig:      testJWTConfig(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, auditRepo
}

func TestServiceLoginSuccess(t *testing.T) {
	password := "correct-horse"
	user := &models.User{
		ID:            uuid.New(),
		Email:         "reader@example.com",
		PasswordHash:  mustHashPassword(t, password),
		Plan:          enums.UserPlanCreative,
		AccountStatus: enums.AccountStatusActive,
	}
	svc, auditRepo := buildLoginService(t, user)

	resp, err := svc.Login(context.Background(), LoginRequest{
		Email:    "Reader@Example.com",
		Password: password,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	claims, err := pkgAuth.ParseAccessToken(testJWTConfig(), resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID {
		t.Fatalf("unexpected user id %s", claims.UserID)
	}
	if claims.Plan != enums.UserPlanCreative {
		t.Fatalf("expected plan claim CREATIVE, got %s", claims.Plan)
	}
	if resp.RefreshToken == "" {
		t.Fatal("expected refresh token to be set")
	}
	if len(auditRepo.entries) != 1 || auditRepo.entries[0].EventType != enums.AuditEventUserLogin {
		t.Fatalf("expected login audit entry, got %+v", auditRepo.entries)
	}
}

func TestServiceLoginWrongPassword(t *testing.T) {
	user := &models.User{
		ID:            uuid.New(),
		Email:         "reader@example.com",
		PasswordHash:  mustHashPassword(t, "right"),
		Plan:          enums.UserPlanFree,
		AccountStatus: enums.AccountStatusActive,
	}
	svc, _ := buildLoginService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: "wrong"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestServiceLoginUnknownUser(t *testing.T) {
	svc, _ := buildLoginService(t, nil)

	_, err := svc.Login(context.Background(), LoginRequest{Email: "nobody@example.com", Password: "x"})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestServiceLoginSuspendedAccount(t *testing.T) {
	password := "correct-horse"
	user := &models.User{
		ID:            uuid.New(),
		Email:         "reader@example.com",
		PasswordHash:  mustHashPassword(t, password),
		Plan:          enums.UserPlanPro,
		AccountStatus: enums.AccountStatusSuspended,
	}
	svc, _ := buildLoginService(t, user)

	_, err := svc.Login(context.Background(), LoginRequest{Email: user.Email, Password: password})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for suspended account, got %v", err)
	}
}
