package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/inkwell-systems/comicforge-backend/api/routes"
	"github.com/inkwell-systems/comicforge-backend/internal/assets"
	"github.com/inkwell-systems/comicforge-backend/internal/audit"
	"github.com/inkwell-systems/comicforge-backend/internal/auth"
	"github.com/inkwell-systems/comicforge-backend/internal/delivery"
	"github.com/inkwell-systems/comicforge-backend/internal/generation"
	"github.com/inkwell-systems/comicforge-backend/internal/payments"
	"github.com/inkwell-systems/comicforge-backend/internal/plans"
	"github.com/inkwell-systems/comicforge-backend/internal/planupgrade"
	"github.com/inkwell-systems/comicforge-backend/internal/projects"
	"github.com/inkwell-systems/comicforge-backend/internal/scenes"
	"github.com/inkwell-systems/comicforge-backend/internal/story"
	"github.com/inkwell-systems/comicforge-backend/internal/users"
	internalwebhooks "github.com/inkwell-systems/comicforge-backend/internal/webhooks"
	"github.com/inkwell-systems/comicforge-backend/pkg/auth/session"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db"
	"github.com/inkwell-systems/comicforge-backend/pkg/llm"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/migrate"
	"github.com/inkwell-systems/comicforge-backend/pkg/pubsub"
	"github.com/inkwell-systems/comicforge-backend/pkg/razorpay"
	"github.com/inkwell-systems/comicforge-backend/pkg/redis"
	"github.com/inkwell-systems/comicforge-backend/pkg/storage/gcs"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

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

	razorpayClient, err := razorpay.NewClient(ctx, cfg.Razorpay, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap razorpay", err)
		os.Exit(1)
	}

	storyClient, err := llm.NewStoryClient(cfg.OpenAI, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap story model client", err)
		os.Exit(1)
	}

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(ctx, "failed to create session manager", err)
		os.Exit(1)
	}

	planCatalog := plans.NewService(cfg.Plans)

	gormDB := dbClient.DB()
	userRepo := users.NewRepository(gormDB)
	auditRepo := audit.NewRepository(gormDB)
	projectRepo := projects.NewRepository(gormDB)
	sceneRepo := scenes.NewRepository(gormDB)
	paymentRepo := payments.NewRepository(gormDB)
	generationRepo := generation.NewRepository(gormDB)
	comicAssetRepo := assets.NewComicRepository(gormDB)
	pdfAssetRepo := assets.NewPdfRepository(gormDB)

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       userRepo,
		AuditRepo:      auditRepo,
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		logg.Error(ctx, "failed to create auth service", err)
		os.Exit(1)
	}

	registerService, err := auth.NewRegisterService(auth.RegisterServiceParams{
		TxRunner:       dbClient,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(ctx, "failed to create register service", err)
		os.Exit(1)
	}

	projectService, err := projects.NewService(projects.ServiceParams{
		Repo:  projectRepo,
		Users: userRepo,
	})
	if err != nil {
		logg.Error(ctx, "failed to create projects service", err)
		os.Exit(1)
	}

	sceneService, err := scenes.NewService(scenes.ServiceParams{
		Repo:     sceneRepo,
		Projects: projectService,
		Plans:    planCatalog,
	})
	if err != nil {
		logg.Error(ctx, "failed to create scenes service", err)
		os.Exit(1)
	}

	storyService, err := story.NewService(story.ServiceParams{
		Generator: storyClient,
		Scenes:    sceneService,
		Projects:  projectService,
		Plans:     planCatalog,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create story service", err)
		os.Exit(1)
	}

	publisher, err := generation.NewGCPPublisher(pubsubClient.GenerationPublisher())
	if err != nil {
		logg.Error(ctx, "failed to create task publisher", err)
		os.Exit(1)
	}

	dispatcher, err := generation.NewDispatcher(generation.DispatcherParams{
		Repo:      generationRepo,
		Projects:  projectService,
		Users:     userRepo,
		Assets:    comicAssetRepo,
		Plans:     planCatalog,
		Publisher: publisher,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create generation dispatcher", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:    paymentRepo,
		Users:   userRepo,
		Gateway: razorpayClient,
		Plans:   planCatalog,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	upgradeService, err := planupgrade.NewService(planupgrade.ServiceParams{
		Users:  userRepo,
		Audit:  auditRepo,
		Plans:  planCatalog,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create plan upgrade service", err)
		os.Exit(1)
	}

	webhookService, err := internalwebhooks.NewService(internalwebhooks.ServiceParams{
		Payments: paymentRepo,
		Upgrades: upgradeService,
		Audit:    auditRepo,
		Secret:   cfg.Razorpay.WebhookSecret,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create webhook service", err)
		os.Exit(1)
	}

	deliveryService, err := delivery.NewService(delivery.ServiceParams{
		Projects:    projectService,
		ComicAssets: comicAssetRepo,
		PdfAssets:   pdfAssetRepo,
		Signer:      gcsClient,
		Audit:       auditRepo,
		Bucket:      cfg.GCS.BucketName,
		URLExpiry:   cfg.GCS.DownloadURLExpiry,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create delivery service", err)
		os.Exit(1)
	}

	router := routes.NewRouter(cfg, logg, routes.Deps{
		DB:             dbClient,
		Redis:          redisClient,
		GCS:            gcsClient,
		SessionManager: sessionManager,
		AuthService:    authService,
		Register:       registerService,
		Users:          userRepo,
		Audit:          auditRepo,
		Projects:       projectService,
		Scenes:         sceneService,
		Story:          storyService,
		Dispatcher:     dispatcher,
		Payments:       paymentService,
		Delivery:       deliveryService,
		Webhooks:       webhookService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
