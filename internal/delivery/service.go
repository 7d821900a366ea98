package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/pkg/db/models"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

// DownloadDTO is a ready-to-use signed URL.
type DownloadDTO struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service hands out signed download URLs for finished assets, re-signing
// whenever the stored URL has gone stale.
type Service struct {
	projects    projectGate
	comicAssets comicAssetRepository
	pdfAssets   pdfAssetRepository
	signer      urlSigner
	auditTrail  auditAppender
	bucket      string
	urlExpiry   time.Duration
	logg        *logger.Logger
	now         func() time.Time
}

type projectGate interface {
	FindOwned(ctx context.Context, projectID, userID uuid.UUID) (*models.Project, error)
}

type comicAssetRepository interface {
	FindByProjectPage(ctx context.Context, projectID uuid.UUID, pageNo int) (*models.ComicAsset, error)
	RefreshURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
}

type pdfAssetRepository interface {
	FindByProject(ctx context.Context, projectID uuid.UUID) (*models.PdfAsset, error)
	RefreshURL(ctx context.Context, id uuid.UUID, url string, expiresAt time.Time) error
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
}

type urlSigner interface {
	SignedReadURL(bucket, object string, expires time.Duration) (string, error)
}

type auditAppender interface {
	Append(ctx context.Context, entry audit.Entry) error
}

// ServiceParams groups dependencies for the delivery service.
type ServiceParams struct {
	Projects    projectGate
	ComicAssets comicAssetRepository
	PdfAssets   pdfAssetRepository
	Signer      urlSigner
	Audit       auditAppender
	Bucket      string
	URLExpiry   time.Duration
	Logger      *logger.Logger
	Now         func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Projects == nil {
		return nil, errors.New("projects gate is required")
	}
	if params.ComicAssets == nil {
		return nil, errors.New("comic assets repo is required")
	}
	if params.PdfAssets == nil {
		return nil, errors.New("pdf assets repo is required")
	}
	if params.Signer == nil {
		return nil, errors.New("url signer is required")
	}
	if params.Audit == nil {
		return nil, errors.New("audit repo is required")
	}
	if params.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	urlExpiry := params.URLExpiry
	if urlExpiry <= 0 {
		urlExpiry = 24 * time.Hour
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		projects:    params.Projects,
		comicAssets: params.ComicAssets,
		pdfAssets:   params.PdfAssets,
		signer:      params.Signer,
		auditTrail:  params.Audit,
		bucket:      params.Bucket,
		urlExpiry:   urlExpiry,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// ComicPageURL returns a live signed URL for one rendered page.
func (s *Service) ComicPageURL(ctx context.Context, projectID, userID uuid.UUID, pageNo int) (*DownloadDTO, error) {
	if pageNo < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "page number must be at least 1")
	}
	if _, err := s.projects.FindOwned(ctx, projectID, userID); err != nil {
		return nil, err
	}

	asset, err := s.comicAssets.FindByProjectPage(ctx, projectID, pageNo)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "page has not been rendered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load page asset")
	}

	url, expiresAt, err := s.freshURL(ctx, asset.ObjectPath, asset.URL, asset.URLExpiresAt, func(u string, e time.Time) error {
		return s.comicAssets.RefreshURL(ctx, asset.ID, u, e)
	})
	if err != nil {
		return nil, err
	}

	s.recordDownload(ctx, userID, fmt.Sprintf("comic page %d of project %s", pageNo, projectID), func() error {
		return s.comicAssets.IncrementDownloadCount(ctx, asset.ID)
	})
	return &DownloadDTO{URL: url, ExpiresAt: expiresAt}, nil
}

// PdfURL returns a live signed URL for the project's compiled PDF.
func (s *Service) PdfURL(ctx context.Context, projectID, userID uuid.UUID) (*DownloadDTO, error) {
	if _, err := s.projects.FindOwned(ctx, projectID, userID); err != nil {
		return nil, err
	}

	asset, err := s.pdfAssets.FindByProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "project has no exported pdf")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load pdf asset")
	}

	url, expiresAt, err := s.freshURL(ctx, asset.ObjectPath, asset.URL, asset.URLExpiresAt, func(u string, e time.Time) error {
		return s.pdfAssets.RefreshURL(ctx, asset.ID, u, e)
	})
	if err != nil {
		return nil, err
	}

	s.recordDownload(ctx, userID, fmt.Sprintf("pdf of project %s", projectID), func() error {
		return s.pdfAssets.IncrementDownloadCount(ctx, asset.ID)
	})
	return &DownloadDTO{URL: url, ExpiresAt: expiresAt}, nil
}

// freshURL reuses the stored URL while it is still live and re-signs
// otherwise, persisting the replacement.
func (s *Service) freshURL(ctx context.Context, objectPath, storedURL string, storedExpiry *time.Time, persist func(string, time.Time) error) (string, time.Time, error) {
	now := s.now()
	if storedURL != "" && storedExpiry != nil && now.Before(*storedExpiry) {
		return storedURL, *storedExpiry, nil
	}

	url, err := s.signer.SignedReadURL(s.bucket, objectPath, s.urlExpiry)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign download url")
	}
	expiresAt := now.Add(s.urlExpiry)
	if err := persist(url, expiresAt); err != nil {
		// the signed URL is still valid even if the cache write failed
		s.logg.Error(ctx, "persist refreshed url", err)
	}
	return url, expiresAt, nil
}

// recordDownload bumps the counter and appends the audit entry; neither may
// fail the download itself.
func (s *Service) recordDownload(ctx context.Context, userID uuid.UUID, detail string, increment func() error) {
	if err := increment(); err != nil {
		s.logg.Error(ctx, "increment download count", err)
	}
	if err := s.auditTrail.Append(ctx, audit.Entry{
		UserID:    &userID,
		EventType: enums.AuditEventAssetDownloaded,
		Detail:    &detail,
	}); err != nil {
		s.logg.Error(ctx, "append download audit entry", err)
	}
}
