package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/inkwell-systems/comicforge-backend/api/controllers"
	webhookcontrollers "github.com/inkwell-systems/comicforge-backend/api/controllers/webhooks"
	"github.com/inkwell-systems/comicforge-backend/api/middleware"
	"github.com/inkwell-systems/comicforge-backend/internal/auth"
	"github.com/inkwell-systems/comicforge-backend/internal/delivery"
	"github.com/inkwell-systems/comicforge-backend/internal/generation"
	"github.com/inkwell-systems/comicforge-backend/internal/payments"
	"github.com/inkwell-systems/comicforge-backend/internal/projects"
	"github.com/inkwell-systems/comicforge-backend/internal/scenes"
	"github.com/inkwell-systems/comicforge-backend/internal/story"
	internalwebhooks "github.com/inkwell-systems/comicforge-backend/internal/webhooks"
	"github.com/inkwell-systems/comicforge-backend/pkg/auth/session"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	"github.com/inkwell-systems/comicforge-backend/pkg/db"
	"github.com/inkwell-systems/comicforge-backend/pkg/enums"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
	"github.com/inkwell-systems/comicforge-backend/pkg/redis"
	"github.com/inkwell-systems/comicforge-backend/pkg/storage/gcs"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// Deps carries everything the router hands to controllers.
type Deps struct {
	DB             db.Pinger
	Redis          *redis.Client
	GCS            gcs.Pinger
	SessionManager sessionManager
	AuthService    auth.Service
	Register       auth.RegisterService
	Users          controllers.UserRepository
	Audit          controllers.AuditRepository
	Projects       *projects.Service
	Scenes         *scenes.Service
	Story          *story.Service
	Dispatcher     *generation.Dispatcher
	Payments       *payments.Service
	Delivery       *delivery.Service
	Webhooks       *internalwebhooks.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis, deps.GCS))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/razorpay", webhookcontrollers.RazorpayWebhook(deps.Webhooks, logg))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.AuthService, logg))
		r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg), middleware.Idempotency(deps.Redis, logg)).
			Post("/register", controllers.AuthRegister(deps.Register, deps.AuthService, logg))
		r.Post("/logout", controllers.AuthLogout(deps.SessionManager, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(deps.SessionManager, cfg.JWT, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.SessionManager, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", controllers.UserProfile(deps.Users, logg))
			r.Get("/me/audit", controllers.UserAuditLog(deps.Audit, logg))
		})

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", controllers.ProjectCreate(deps.Projects, logg))
			r.Get("/", controllers.ProjectList(deps.Projects, logg))

			r.Route("/{projectId}", func(r chi.Router) {
				r.Get("/", controllers.ProjectGet(deps.Projects, logg))
				r.Patch("/", controllers.ProjectUpdate(deps.Projects, logg))
				r.Delete("/", controllers.ProjectDelete(deps.Projects, logg))

				r.Put("/scenes", controllers.ScenesReplace(deps.Scenes, logg))
				r.Get("/scenes", controllers.ScenesList(deps.Scenes, logg))

				r.Post("/story", controllers.StoryGenerate(deps.Story, logg))
				r.Post("/generate", controllers.GenerationEnqueue(deps.Dispatcher, enums.TaskTypeComicGeneration, logg))
				r.Post("/export", controllers.GenerationEnqueue(deps.Dispatcher, enums.TaskTypePDFExport, logg))
				r.Get("/generations/latest", controllers.GenerationLatest(deps.Dispatcher, logg))

				r.Get("/pages/{pageNo}/download", controllers.ComicPageDownload(deps.Delivery, logg))
				r.Get("/export/download", controllers.PdfDownload(deps.Delivery, logg))
			})
		})

		r.Get("/generations/{generationId}", controllers.GenerationGet(deps.Dispatcher, logg))

		r.Route("/payments", func(r chi.Router) {
			r.Post("/orders", controllers.PaymentCreateOrder(deps.Payments, logg))
			r.Get("/", controllers.PaymentList(deps.Payments, logg))
			r.Get("/{paymentId}", controllers.PaymentGet(deps.Payments, logg))
		})
	})

	return r
}
