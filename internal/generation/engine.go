package generation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	"github.com/inkwell-systems/comicforge-backend/pkg/imaging"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/pdf"
)

const (
	progressLoaded    = 10
	progressValidated = 15
	pageProgressSpan  = 75

	watermarkText = "ComicForge Preview"
)

// pageProgress returns the reported progress after done of total pages.
func pageProgress(done, total int) int {
	if total < 1 {
		return progressValidated
	}
	return progressValidated + done*pageProgressSpan/total
}

// Engine renders comic pages and compiles PDF exports. It is driven by the
// worker; every method classifies its failures as fatal or retryable.
type Engine struct {
	generations engineRepository
	projects    engineProjects
	scenes      engineScenes
	users       engineUsers
	comicAssets engineComicAssets
	pdfAssets   enginePdfAssets
	plans       *plans.Service
	renderer    panelRenderer
	store       objectStore
	bucket      string
	urlExpiry   time.Duration
	standardDPI int
	highDPI     int
	logg        *logger.Logger
	now         func() time.Time
}

type engineRepository interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error
}

type engineProjects interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to enums.ProjectStatus) (bool, error)
}

type engineScenes interface {
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error)
}

type engineUsers interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	MarkFreeStoryUsed(ctx context.Context, id uuid.UUID) (bool, error)
	IncrementQuotaUsed(ctx context.Context, id uuid.UUID, now, nextReset time.Time) error
}

type engineComicAssets interface {
	Upsert(ctx context.Context, asset *models.ComicAsset) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ComicAsset, error)
}

type enginePdfAssets interface {
	Upsert(ctx context.Context, asset *models.PdfAsset) error
}

type panelRenderer interface {
	GeneratePanel(ctx context.Context, prompt string, seed int64) ([]byte, error)
}

type objectStore interface {
	Upload(ctx context.Context, bucket, objectPath, contentType string, data []byte) (string, error)
	Download(ctx context.Context, bucket, object string) ([]byte, error)
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
}

// EngineParams groups dependencies for the rendering engine.
type EngineParams struct {
	Generations engineRepository
	Projects    engineProjects
	Scenes      engineScenes
	Users       engineUsers
	ComicAssets engineComicAssets
	PdfAssets   enginePdfAssets
	Plans       *plans.Service
	Renderer    panelRenderer
	Store       objectStore
	Bucket      string
	URLExpiry   time.Duration
	StandardDPI int
	HighDPI     int
	Logger      *logger.Logger
	Now         func() time.Time
}

func NewEngine(params EngineParams) (*Engine, error) {
	switch {
	case params.Generations == nil:
		return nil, errors.New("generations repo is required")
	case params.Projects == nil:
		return nil, errors.New("projects repo is required")
	case params.Scenes == nil:
		return nil, errors.New("scenes repo is required")
	case params.Users == nil:
		return nil, errors.New("users repo is required")
	case params.ComicAssets == nil:
		return nil, errors.New("comic assets repo is required")
	case params.PdfAssets == nil:
		return nil, errors.New("pdf assets repo is required")
	case params.Plans == nil:
		return nil, errors.New("plans service is required")
	case params.Renderer == nil:
		return nil, errors.New("panel renderer is required")
	case params.Store == nil:
		return nil, errors.New("object store is required")
	case params.Bucket == "":
		return nil, errors.New("bucket is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	}
	urlExpiry := params.URLExpiry
	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}
	standardDPI := params.StandardDPI
	if standardDPI <= 0 {
		standardDPI = 150
	}
	highDPI := params.HighDPI
	if highDPI <= 0 {
		highDPI = 300
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		generations: params.Generations,
		projects:    params.Projects,
		scenes:      params.Scenes,
		users:       params.Users,
		comicAssets: params.ComicAssets,
		pdfAssets:   params.PdfAssets,
		plans:       params.Plans,
		renderer:    params.Renderer,
		store:       params.Store,
		bucket:      params.Bucket,
		urlExpiry:   urlExpiry,
		standardDPI: standardDPI,
		highDPI:     highDPI,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// RenderComic runs one comic generation job end to end.
func (e *Engine) RenderComic(ctx context.Context, gen *models.Generation) error {
	project, err := e.loadProject(ctx, gen.ProjectID)
	if err != nil {
		return err
	}
	if err := e.generations.UpdateProgress(ctx, gen.ID, progressLoaded); err != nil {
		return err
	}

	pages, err := e.loadScript(ctx, project)
	if err != nil {
		return err
	}
	policy := e.plans.PolicyFor(project.PlanSnapshot)
	if len(pages) > policy.MaxPages {
		return Fatal(fmt.Errorf("script has %d pages but plan %s allows %d",
			len(pages), project.PlanSnapshot, policy.MaxPages))
	}

	// read-only re-check before any image calls; the pair itself flips only
	// once the comic is fully rendered, so a failed attempt leaves the free
	// story spendable
	if project.PlanSnapshot == enums.UserPlanFree {
		user, err := e.users.FindByID(ctx, gen.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Fatal(errors.New("user no longer exists"))
			}
			return err
		}
		if !user.FreeStoryAvailable || user.FreeStoryUsed {
			return Fatal(errors.New("free story already used"))
		}
	}

	if err := e.generations.UpdateProgress(ctx, gen.ID, progressValidated); err != nil {
		return err
	}

	baseSeed := seedFromID(gen.ID)
	for i, page := range pages {
		pageSeed := baseSeed + int64(page.pageNo)
		if err := e.renderPage(ctx, gen, project, page, pageSeed, policy.WatermarkRequired); err != nil {
			return err
		}
		if err := e.generations.UpdateProgress(ctx, gen.ID, pageProgress(i+1, len(pages))); err != nil {
			return err
		}
	}

	if project.PlanSnapshot == enums.UserPlanFree {
		// the pair flips only now, with every page rendered. Returning the
		// error keeps the flip retryable: redelivery re-renders into the
		// same asset rows and tries again.
		won, err := e.users.MarkFreeStoryUsed(ctx, gen.UserID)
		if err != nil {
			return err
		}
		if !won {
			// a redelivered job whose first run already completed lands here
			e.logg.Warn(ctx, "free story was already claimed")
		}
	}

	if _, err := e.projects.UpdateStatus(ctx, project.ID, enums.ProjectStatusGenerating, enums.ProjectStatusCompleted); err != nil {
		return err
	}
	if project.PlanSnapshot != enums.UserPlanFree {
		if err := e.users.IncrementQuotaUsed(ctx, gen.UserID, e.now(), plans.NextQuotaReset(e.now())); err != nil {
			// the comic is done; losing one quota tick is acceptable
			e.logg.Error(ctx, "increment quota", err)
		}
	}
	return nil
}

type scriptPage struct {
	pageNo int
	panels []models.Scene
}

func (e *Engine) loadProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error) {
	project, err := e.projects.FindByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Fatal(errors.New("project no longer exists"))
		}
		return nil, err
	}
	return project, nil
}

// loadScript groups and validates the stored scenes. Anything malformed is
// fatal: redelivery cannot repair a broken script.
func (e *Engine) loadScript(ctx context.Context, project *models.Project) ([]scriptPage, error) {
	rows, err := e.scenes.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	byPage := map[int][]models.Scene{}
	for _, row := range rows {
		byPage[row.PageNo] = append(byPage[row.PageNo], row)
	}
	if len(byPage) == 0 {
		return nil, Fatal(errors.New("project has no scenes"))
	}
	if project.TotalPages > 0 && len(byPage) != project.TotalPages {
		return nil, Fatal(fmt.Errorf("project records %d pages but %d are stored",
			project.TotalPages, len(byPage)))
	}

	pages := make([]scriptPage, 0, len(byPage))
	for pageNo := 1; pageNo <= len(byPage); pageNo++ {
		panels, ok := byPage[pageNo]
		if !ok {
			return nil, Fatal(fmt.Errorf("page %d is missing", pageNo))
		}
		if len(panels) != 4 {
			return nil, Fatal(fmt.Errorf("page %d has %d panels, expected 4", pageNo, len(panels)))
		}
		pages = append(pages, scriptPage{pageNo: pageNo, panels: panels})
	}
	return pages, nil
}

func (e *Engine) renderPage(ctx context.Context, gen *models.Generation, project *models.Project, page scriptPage, seed int64, watermark bool) error {
	panels := make([][]byte, 0, len(page.panels))
	for _, scene := range page.panels {
		data, err := e.renderer.GeneratePanel(ctx, panelPrompt(project, scene), seed)
		if err != nil {
			return err
		}
		panels = append(panels, data)
	}

	img, err := imaging.ComposePage(panels)
	if err != nil {
		return Fatal(fmt.Errorf("compose page %d: %w", page.pageNo, err))
	}
	if watermark {
		img = imaging.Watermark(img, watermarkText)
	}
	encoded, err := imaging.EncodePNG(img)
	if err != nil {
		return Fatal(fmt.Errorf("encode page %d: %w", page.pageNo, err))
	}

	objectPath := fmt.Sprintf("projects/%s/pages/page_%d.png", project.ID, page.pageNo)
	if _, err := e.store.Upload(ctx, e.bucket, objectPath, "image/png", encoded); err != nil {
		return err
	}
	url, err := e.store.SignedReadURL(e.bucket, objectPath, e.urlExpiry)
	if err != nil {
		return err
	}

	expiresAt := e.now().Add(e.urlExpiry)
	return e.comicAssets.Upsert(ctx, &models.ComicAsset{
		ProjectID:    project.ID,
		PageNo:       page.pageNo,
		GenerationID: gen.ID,
		ObjectPath:   objectPath,
		URL:          url,
		URLExpiresAt: &expiresAt,
		Seed:         seed,
		Watermarked:  watermark,
	})
}

// ExportPDF runs one pdf export job end to end.
func (e *Engine) ExportPDF(ctx context.Context, gen *models.Generation) error {
	project, err := e.loadProject(ctx, gen.ProjectID)
	if err != nil {
		return err
	}
	if project.Status != enums.ProjectStatusCompleted {
		return Fatal(fmt.Errorf("project in status %s cannot be exported", project.Status))
	}
	if err := e.generations.UpdateProgress(ctx, gen.ID, progressLoaded); err != nil {
		return err
	}

	rendered, err := e.comicAssets.ListByProject(ctx, project.ID)
	if err != nil {
		return err
	}
	if len(rendered) == 0 || (project.TotalPages > 0 && len(rendered) < project.TotalPages) {
		return Fatal(errors.New("rendered pages are missing"))
	}
	if err := e.generations.UpdateProgress(ctx, gen.ID, progressValidated); err != nil {
		return err
	}

	pageBytes := make([][]byte, 0, len(rendered))
	for i, asset := range rendered {
		data, err := e.store.Download(ctx, e.bucket, asset.ObjectPath)
		if err != nil {
			return err
		}
		pageBytes = append(pageBytes, data)
		if err := e.generations.UpdateProgress(ctx, gen.ID, pageProgress(i+1, len(rendered))); err != nil {
			return err
		}
	}

	dpi := e.standardDPI
	if project.PlanSnapshot == enums.UserPlanCreative {
		dpi = e.highDPI
	}
	doc, pageCount, err := pdf.Compile(pdf.CompileParams{
		Title: project.Title,
		Pages: pageBytes,
		DPI:   dpi,
	})
	if err != nil {
		return Fatal(fmt.Errorf("compile pdf: %w", err))
	}

	objectPath := fmt.Sprintf("projects/%s/export/%s.pdf", project.ID, project.ID)
	if _, err := e.store.Upload(ctx, e.bucket, objectPath, "application/pdf", doc); err != nil {
		return err
	}
	url, err := e.store.SignedReadURL(e.bucket, objectPath, e.urlExpiry)
	if err != nil {
		return err
	}

	expiresAt := e.now().Add(e.urlExpiry)
	return e.pdfAssets.Upsert(ctx, &models.PdfAsset{
		ProjectID:     project.ID,
		GenerationID:  gen.ID,
		ObjectPath:    objectPath,
		URL:           url,
		URLExpiresAt:  &expiresAt,
		PageCount:     pageCount,
		FileSizeBytes: int64(len(doc)),
	})
}

// panelPrompt flattens one scene into the renderer prompt.
func panelPrompt(project *models.Project, scene models.Scene) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s style comic panel. Setting: %s. Action: %s.", project.ArtStyle, scene.Setting, scene.Action)
	if len(scene.Dialogue) > 0 {
		fmt.Fprintf(&b, " Dialogue: %s.", strings.Join(scene.Dialogue, " / "))
	}
	if scene.Caption != nil && *scene.Caption != "" {
		fmt.Fprintf(&b, " Caption: %s.", *scene.Caption)
	}
	return b.String()
}

// seedFromID derives a stable non-negative base seed so redelivered jobs
// render the same pages.
func seedFromID(id uuid.UUID) int64 {
	raw := binary.BigEndian.Uint64(id[:8])
	return int64(raw & 0x7fffffffffffffff)
}
