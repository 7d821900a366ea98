package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

type stubDispatchRepo struct {
	mu     sync.Mutex
	gens   map[uuid.UUID]*models.Generation
	failed []uuid.UUID
}

func newStubDispatchRepo() *stubDispatchRepo {
	return &stubDispatchRepo{gens: map[uuid.UUID]*models.Generation{}}
}

func (s *stubDispatchRepo) Create(_ context.Context, gen *models.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.gens {
		if existing.ProjectID == gen.ProjectID && existing.Status.IsActive() {
			return fmt.Errorf(`duplicate key value violates unique constraint "ux_generations_project_active"`)
		}
	}
	gen.ID = uuid.New()
	gen.CreatedAt = time.Now().UTC()
	s.gens[gen.ID] = gen
	return nil
}

func (s *stubDispatchRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gens[id]; ok {
		return g, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDispatchRepo) FindLatestByProject(_ context.Context, projectID uuid.UUID) (*models.Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Generation
	for _, g := range s.gens {
		if g.ProjectID != projectID {
			continue
		}
		if latest == nil || g.CreatedAt.After(latest.CreatedAt) {
			latest = g
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (s *stubDispatchRepo) SetTaskID(_ context.Context, id uuid.UUID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gens[id]; ok {
		g.TaskID = &taskID
	}
	return nil
}

func (s *stubDispatchRepo) MarkFailed(_ context.Context, id uuid.UUID, _ time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	if g, ok := s.gens[id]; ok {
		g.Status = enums.GenerationStatusFailed
		g.ErrorMessage = &reason
	}
	return true, nil
}

type stubDispatchGate struct {
	mu      sync.Mutex
	project *models.Project
}

func (s *stubDispatchGate) FindOwned(_ context.Context, projectID, userID uuid.UUID) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project == nil || s.project.ID != projectID || s.project.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project not found")
	}
	copied := *s.project
	return &copied, nil
}

func (s *stubDispatchGate) Transition(_ context.Context, _ uuid.UUID, from, to enums.ProjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.project.Status != from {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "project status changed concurrently")
	}
	s.project.Status = to
	return nil
}

type stubDispatchUsers struct {
	user *models.User
}

func (s *stubDispatchUsers) FindByID(_ context.Context, _ uuid.UUID) (*models.User, error) {
	return s.user, nil
}

type stubAssetLister struct {
	assets []models.ComicAsset
}

func (s *stubAssetLister) ListByProject(_ context.Context, _ uuid.UUID) ([]models.ComicAsset, error) {
	return s.assets, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, data []byte) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, data)
	return fmt.Sprintf("msg_%d", len(p.messages)), nil
}

func buildDispatcher(t *testing.T, project *models.Project, user *models.User) (*Dispatcher, *stubDispatchRepo, *stubDispatchGate, *recordingPublisher) {
	t.Helper()
	repo := newStubDispatchRepo()
	gate := &stubDispatchGate{project: project}
	pub := &recordingPublisher{}
	d, err := NewDispatcher(DispatcherParams{
		Repo:      repo,
		Projects:  gate,
		Users:     &stubDispatchUsers{user: user},
		Assets:    &stubAssetLister{},
		Plans:     plans.NewService(config.PlansConfig{CreativeMaxPages: 10, ProMonthlyQuota: 50}),
		Publisher: pub,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return d, repo, gate, pub
}

func TestEnqueueComicGeneration(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	project := &models.Project{
		ID:           uuid.New(),
		UserID:       user.ID,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   3,
	}
	d, _, gate, pub := buildDispatcher(t, project, user)

	dto, err := d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypeComicGeneration)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if dto.Status != enums.GenerationStatusQueued {
		t.Fatalf("expected QUEUED, got %s", dto.Status)
	}
	if gate.project.Status != enums.ProjectStatusGenerating {
		t.Fatalf("expected project GENERATING, got %s", gate.project.Status)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one published message, got %d", len(pub.messages))
	}
	task, err := DecodeTaskMessage(pub.messages[0])
	if err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if task.GenerationID != dto.ID || task.TaskType != enums.TaskTypeComicGeneration {
		t.Fatalf("unexpected task message %+v", task)
	}
}

func TestEnqueueConcurrentSecondCallerLoses(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	project := &models.Project{
		ID:           uuid.New(),
		UserID:       user.ID,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   2,
	}
	d, _, _, _ := buildDispatcher(t, project, user)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypeComicGeneration)
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		if appErr := pkgerrors.As(err); appErr != nil &&
			(appErr.Code() == pkgerrors.CodeConflict || appErr.Code() == pkgerrors.CodeStateConflict) {
			conflicts++
		}
	}
	if successes != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got %d successes %d conflicts (%v)", successes, conflicts, results)
	}
}

func TestEnqueueFreePlanChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		user  models.User
		pages int
		code  pkgerrors.Code
	}{
		{
			name:  "free story already used",
			user:  models.User{Plan: enums.UserPlanFree, FreeStoryAvailable: true, FreeStoryUsed: true},
			pages: 1,
			code:  pkgerrors.CodeForbidden,
		},
		{
			name:  "free story not available",
			user:  models.User{Plan: enums.UserPlanFree, FreeStoryAvailable: false},
			pages: 1,
			code:  pkgerrors.CodeForbidden,
		},
		{
			name:  "too many pages",
			user:  models.User{Plan: enums.UserPlanFree, FreeStoryAvailable: true},
			pages: 2,
			code:  pkgerrors.CodeForbidden,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			user := tc.user
			user.ID = uuid.New()
			project := &models.Project{
				ID:           uuid.New(),
				UserID:       user.ID,
				Status:       enums.ProjectStatusDraft,
				PlanSnapshot: enums.UserPlanFree,
				TotalPages:   tc.pages,
			}
			d, _, _, pub := buildDispatcher(t, project, &user)

			_, err := d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypeComicGeneration)
			if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if len(pub.messages) != 0 {
				t.Fatalf("nothing may be published on admission failure")
			}
		})
	}
}

func TestEnqueuePublishFailureFailsJob(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	project := &models.Project{
		ID:           uuid.New(),
		UserID:       user.ID,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   1,
	}
	d, repo, gate, pub := buildDispatcher(t, project, user)
	pub.err = errors.New("broker unreachable")

	_, err := d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypeComicGeneration)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if len(repo.failed) != 1 {
		t.Fatalf("expected the generation marked failed")
	}
	if gate.project.Status != enums.ProjectStatusFailed {
		t.Fatalf("expected project FAILED after publish failure, got %s", gate.project.Status)
	}
}

func TestEnqueuePDFExportRequiresCompletedProject(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	project := &models.Project{
		ID:           uuid.New(),
		UserID:       user.ID,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   2,
	}
	d, _, _, _ := buildDispatcher(t, project, user)

	_, err := d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypePDFExport)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestGetEnforcesOwnership(t *testing.T) {
	t.Parallel()

	user := &models.User{ID: uuid.New(), Plan: enums.UserPlanPro}
	project := &models.Project{
		ID:           uuid.New(),
		UserID:       user.ID,
		Status:       enums.ProjectStatusDraft,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   1,
	}
	d, _, _, _ := buildDispatcher(t, project, user)

	dto, err := d.Enqueue(context.Background(), project.ID, user.ID, enums.TaskTypeComicGeneration)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, err := d.Get(context.Background(), dto.ID, user.ID); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err = d.Get(context.Background(), dto.ID, uuid.New())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = d.Get(context.Background(), uuid.New(), user.ID)
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
