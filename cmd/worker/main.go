package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwell-systems/comicforge-backend/internal/assets"
	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/internal/generation"
	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/internal/projects"
	"github.com/inkwell-systems/comicforge-backend/internal/scenes"
	"github.com/inkwell-systems/comicforge-backend/internal/users"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db"
	"github.com/inkwell-systems/comicforge-backend/pkg/imagegen"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/metrics"
	"github.com/inkwell-systems/comicforge-backend/pkg/migrate"
	"github.com/inkwell-systems/comicforge-backend/pkg/pubsub"
	"github.com/inkwell-systems/comicforge-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap gcs", err)
		os.Exit(1)
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer pubsubClient.Close()

	renderer, err := imagegen.NewClient(cfg.ImageGen, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap image generation client", err)
		os.Exit(1)
	}

	planCatalog := plans.NewService(cfg.Plans)

	gormDB := dbClient.DB()
	generationRepo := generation.NewRepository(gormDB)
	projectRepo := projects.NewRepository(gormDB)
	sceneRepo := scenes.NewRepository(gormDB)
	userRepo := users.NewRepository(gormDB)
	auditRepo := audit.NewRepository(gormDB)
	comicAssetRepo := assets.NewComicRepository(gormDB)
	pdfAssetRepo := assets.NewPdfRepository(gormDB)

	engine, err := generation.NewEngine(generation.EngineParams{
		Generations: generationRepo,
		Projects:    projectRepo,
		Scenes:      sceneRepo,
		Users:       userRepo,
		ComicAssets: comicAssetRepo,
		PdfAssets:   pdfAssetRepo,
		Plans:       planCatalog,
		Renderer:    renderer,
		Store:       gcsClient,
		Bucket:      cfg.GCS.BucketName,
		URLExpiry:   cfg.GCS.DownloadURLExpiry,
		StandardDPI: cfg.PDF.StandardDPI,
		HighDPI:     cfg.PDF.HighDPI,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create generation engine", err)
		os.Exit(1)
	}

	taskMetrics := metrics.NewTaskMetrics(prometheus.DefaultRegisterer)

	subscription := pubsubClient.GenerationSubscription()
	if cfg.Worker.MaxOutstanding > 0 {
		subscription.ReceiveSettings.MaxOutstandingMessages = cfg.Worker.MaxOutstanding
	}

	worker, err := generation.NewWorker(generation.WorkerParams{
		Subscription: subscription,
		Repo:         generationRepo,
		Projects:     projectRepo,
		Engine:       engine,
		Audit:        auditRepo,
		Metrics:      taskMetrics,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker", err)
		os.Exit(1)
	}

	if cfg.App.Port != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.App.Port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logg.Error(ctx, "metrics server stopped", err)
			}
		}()
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting generation worker")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "generation worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "generation worker shutting down gracefully")
}
