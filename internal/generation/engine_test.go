package generation

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

func panelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode panel: %v", err)
	}
	return buf.Bytes()
}

type progressRecorder struct {
	values []int
}

func (p *progressRecorder) UpdateProgress(_ context.Context, _ uuid.UUID, progress int) error {
	p.values = append(p.values, progress)
	return nil
}

type stubEngineProjects struct {
	project *models.Project
}

func (s *stubEngineProjects) FindByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if s.project == nil || s.project.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.project, nil
}

func (s *stubEngineProjects) UpdateStatus(_ context.Context, _ uuid.UUID, from, to enums.ProjectStatus) (bool, error) {
	if s.project.Status != from {
		return false, nil
	}
	s.project.Status = to
	return true, nil
}

type stubEngineScenes struct {
	scenes []models.Scene
}

func (s *stubEngineScenes) ListByProject(_ context.Context, _ uuid.UUID) ([]models.Scene, error) {
	return s.scenes, nil
}

type stubEngineUsers struct {
	freeAvailable  bool
	freeUsed       bool
	freeClaims     int
	quotaIncrement int
}

func (s *stubEngineUsers) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return &models.User{
		ID:                 id,
		FreeStoryAvailable: s.freeAvailable,
		FreeStoryUsed:      s.freeUsed,
	}, nil
}

func (s *stubEngineUsers) MarkFreeStoryUsed(_ context.Context, _ uuid.UUID) (bool, error) {
	s.freeClaims++
	if !s.freeAvailable || s.freeUsed {
		return false, nil
	}
	s.freeAvailable = false
	s.freeUsed = true
	return true, nil
}

func (s *stubEngineUsers) IncrementQuotaUsed(_ context.Context, _ uuid.UUID, _, _ time.Time) error {
	s.quotaIncrement++
	return nil
}

type stubEngineComicAssets struct {
	upserts []models.ComicAsset
	listed  []models.ComicAsset
}

func (s *stubEngineComicAssets) Upsert(_ context.Context, asset *models.ComicAsset) error {
	s.upserts = append(s.upserts, *asset)
	return nil
}

func (s *stubEngineComicAssets) ListByProject(_ context.Context, _ uuid.UUID) ([]models.ComicAsset, error) {
	return s.listed, nil
}

type stubEnginePdfAssets struct {
	upserts []models.PdfAsset
}

func (s *stubEnginePdfAssets) Upsert(_ context.Context, asset *models.PdfAsset) error {
	s.upserts = append(s.upserts, *asset)
	return nil
}

type stubRenderer struct {
	panel    []byte
	calls    int
	seeds    []int64
	failures int
	failErr  error
}

func (s *stubRenderer) GeneratePanel(_ context.Context, _ string, seed int64) ([]byte, error) {
	s.calls++
	s.seeds = append(s.seeds, seed)
	if s.failures > 0 {
		s.failures--
		return nil, s.failErr
	}
	return s.panel, nil
}

type stubStore struct {
	uploads   map[string][]byte
	downloads int
}

func newStubStore() *stubStore {
	return &stubStore{uploads: map[string][]byte{}}
}

func (s *stubStore) Upload(_ context.Context, _, objectPath, _ string, data []byte) (string, error) {
	s.uploads[objectPath] = data
	return objectPath, nil
}

func (s *stubStore) Download(_ context.Context, _, object string) ([]byte, error) {
	s.downloads++
	return s.uploads[object], nil
}

func (s *stubStore) SignedReadURL(_, object string, _ time.Duration) (string, error) {
	return "https://storage.example.com/" + object + "?sig=abc", nil
}

func scriptScenes(projectID uuid.UUID, pages int) []models.Scene {
	var scenes []models.Scene
	for p := 1; p <= pages; p++ {
		for i := 1; i <= 4; i++ {
			scenes = append(scenes, models.Scene{
				ProjectID: projectID,
				PageNo:    p,
				PanelNo:   i,
				Dialogue:  pq.StringArray{"line"},
				Action:    "a chase",
				Setting:   "rooftops",
			})
		}
	}
	return scenes
}

type engineFixture struct {
	engine      *Engine
	progress    *progressRecorder
	projects    *stubEngineProjects
	users       *stubEngineUsers
	comicAssets *stubEngineComicAssets
	pdfAssets   *stubEnginePdfAssets
	renderer    *stubRenderer
	store       *stubStore
}

func buildEngine(t *testing.T, project *models.Project, scenes []models.Scene) *engineFixture {
	t.Helper()
	f := &engineFixture{
		progress:    &progressRecorder{},
		projects:    &stubEngineProjects{project: project},
		users:       &stubEngineUsers{freeAvailable: true},
		comicAssets: &stubEngineComicAssets{},
		pdfAssets:   &stubEnginePdfAssets{},
		renderer:    &stubRenderer{panel: panelPNG(t)},
		store:       newStubStore(),
	}
	engine, err := NewEngine(EngineParams{
		Generations: f.progress,
		Projects:    f.projects,
		Scenes:      &stubEngineScenes{scenes: scenes},
		Users:       f.users,
		ComicAssets: f.comicAssets,
		PdfAssets:   f.pdfAssets,
		Plans:       plans.NewService(config.PlansConfig{CreativeMaxPages: 10, ProMonthlyQuota: 50}),
		Renderer:    f.renderer,
		Store:       f.store,
		Bucket:      "comicforge-media",
		URLExpiry:   time.Hour,
		StandardDPI: 150,
		HighDPI:     300,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	f.engine = engine
	return f
}

func TestRenderComicProgressSequence(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanPro,
		ArtStyle:     "noir",
		TotalPages:   3,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 3))
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID, TaskType: enums.TaskTypeComicGeneration}

	if err := f.engine.RenderComic(context.Background(), gen); err != nil {
		t.Fatalf("render: %v", err)
	}

	want := []int{10, 15, 40, 65, 90}
	if len(f.progress.values) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, f.progress.values)
	}
	for i, v := range want {
		if f.progress.values[i] != v {
			t.Fatalf("expected progress %v, got %v", want, f.progress.values)
		}
	}
	if f.renderer.calls != 12 {
		t.Fatalf("expected 12 panel renders, got %d", f.renderer.calls)
	}
	if len(f.comicAssets.upserts) != 3 {
		t.Fatalf("expected 3 page assets, got %d", len(f.comicAssets.upserts))
	}
	if f.projects.project.Status != enums.ProjectStatusCompleted {
		t.Fatalf("expected COMPLETED project, got %s", f.projects.project.Status)
	}
	if f.users.quotaIncrement != 1 {
		t.Fatalf("expected one quota increment, got %d", f.users.quotaIncrement)
	}
	for _, asset := range f.comicAssets.upserts {
		if !asset.Watermarked {
			t.Fatalf("pro pages must be watermarked")
		}
	}
}

func TestRenderComicPageSeedsAreStable(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   2,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 2))
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID, TaskType: enums.TaskTypeComicGeneration}

	if err := f.engine.RenderComic(context.Background(), gen); err != nil {
		t.Fatalf("render: %v", err)
	}

	base := seedFromID(gen.ID)
	for i, seed := range f.renderer.seeds {
		pageNo := i/4 + 1
		if seed != base+int64(pageNo) {
			t.Fatalf("panel %d expected seed %d, got %d", i, base+int64(pageNo), seed)
		}
	}
	if f.comicAssets.upserts[0].Seed != base+1 || f.comicAssets.upserts[1].Seed != base+2 {
		t.Fatalf("asset seeds must match the page seeds")
	}
}

func TestRenderComicFreePlanOverLimitFailsWithoutRendering(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanFree,
		TotalPages:   2,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 2))
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID}

	err := f.engine.RenderComic(context.Background(), gen)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if f.renderer.calls != 0 {
		t.Fatalf("no panels may render for an over-limit free script, got %d calls", f.renderer.calls)
	}
}

func TestRenderComicFreeStoryAlreadyUsedFailsBeforeRender(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanFree,
		TotalPages:   1,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 1))
	f.users.freeAvailable = false
	f.users.freeUsed = true
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID}

	err := f.engine.RenderComic(context.Background(), gen)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error for a spent free story, got %v", err)
	}
	if f.renderer.calls != 0 {
		t.Fatalf("a spent free story must not spend image calls, got %d", f.renderer.calls)
	}
	if f.users.freeClaims != 0 {
		t.Fatalf("the flip must not be attempted, got %d claims", f.users.freeClaims)
	}
}

func TestRenderComicFreeStorySurvivesTransientRenderError(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanFree,
		TotalPages:   1,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 1))
	f.renderer.failures = 1
	f.renderer.failErr = errors.New("connection reset by peer")
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID}

	err := f.engine.RenderComic(context.Background(), gen)
	if err == nil || IsFatal(err) {
		t.Fatalf("expected a retryable error, got %v", err)
	}
	if f.users.freeClaims != 0 {
		t.Fatalf("a failed render must not touch the free story, got %d claims", f.users.freeClaims)
	}

	// redelivery of the same job must still be able to win
	if err := f.engine.RenderComic(context.Background(), gen); err != nil {
		t.Fatalf("redelivered render: %v", err)
	}
	if f.users.freeClaims != 1 {
		t.Fatalf("expected one claim after success, got %d", f.users.freeClaims)
	}
	if f.users.freeAvailable || !f.users.freeUsed {
		t.Fatalf("the free story pair must flip together on success")
	}
	if len(f.comicAssets.upserts) == 0 {
		t.Fatalf("the redelivered job must produce the page asset")
	}
}

func TestRenderComicFreePageIsWatermarked(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanFree,
		TotalPages:   1,
	}
	f := buildEngine(t, project, scriptScenes(project.ID, 1))
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID}

	if err := f.engine.RenderComic(context.Background(), gen); err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(f.comicAssets.upserts) != 1 || !f.comicAssets.upserts[0].Watermarked {
		t.Fatalf("free pages must be watermarked: %+v", f.comicAssets.upserts)
	}
	if f.users.quotaIncrement != 0 {
		t.Fatalf("free generations must not consume quota")
	}
}

func TestRenderComicBrokenScriptIsFatal(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusGenerating,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   1,
	}
	scenes := scriptScenes(project.ID, 1)[:3] // drop a panel
	f := buildEngine(t, project, scenes)
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID}

	err := f.engine.RenderComic(context.Background(), gen)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if f.renderer.calls != 0 {
		t.Fatalf("broken scripts must fail before rendering")
	}
}

func TestExportPDF(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusCompleted,
		PlanSnapshot: enums.UserPlanCreative,
		Title:        "The Tide Keeper",
		TotalPages:   2,
	}
	f := buildEngine(t, project, nil)

	// rendered pages already live in the store
	page := panelPNG(t)
	f.store.uploads["projects/x/pages/page_1.png"] = page
	f.store.uploads["projects/x/pages/page_2.png"] = page
	f.comicAssets.listed = []models.ComicAsset{
		{ProjectID: project.ID, PageNo: 1, ObjectPath: "projects/x/pages/page_1.png"},
		{ProjectID: project.ID, PageNo: 2, ObjectPath: "projects/x/pages/page_2.png"},
	}

	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID, TaskType: enums.TaskTypePDFExport}
	if err := f.engine.ExportPDF(context.Background(), gen); err != nil {
		t.Fatalf("export: %v", err)
	}

	if len(f.pdfAssets.upserts) != 1 {
		t.Fatalf("expected one pdf asset, got %d", len(f.pdfAssets.upserts))
	}
	asset := f.pdfAssets.upserts[0]
	if asset.PageCount != 2 || asset.FileSizeBytes == 0 {
		t.Fatalf("unexpected pdf asset %+v", asset)
	}
	if !strings.HasSuffix(asset.ObjectPath, ".pdf") {
		t.Fatalf("unexpected object path %q", asset.ObjectPath)
	}
	stored := f.store.uploads[asset.ObjectPath]
	if !bytes.HasPrefix(stored, []byte("%PDF-")) {
		t.Fatalf("stored object is not a pdf")
	}
}

func TestExportPDFRequiresRenderedPages(t *testing.T) {
	t.Parallel()

	project := &models.Project{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		Status:       enums.ProjectStatusCompleted,
		PlanSnapshot: enums.UserPlanPro,
		TotalPages:   2,
	}
	f := buildEngine(t, project, nil)
	gen := &models.Generation{ID: uuid.New(), ProjectID: project.ID, UserID: project.UserID, TaskType: enums.TaskTypePDFExport}

	err := f.engine.ExportPDF(context.Background(), gen)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}
