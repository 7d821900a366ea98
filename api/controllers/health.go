package controllers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/inkwell-systems/comicforge-backend/api/responses"
	"github.com/inkwell-systems/comicforge-backend/pkg/config"
	pkgerrors "github.com/inkwell-systems/comicforge-backend/pkg/errors"
	"github.com/inkwell-systems/comicforge-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ComicForge-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every backing dependency answers a ping.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP, storageP pinger) http.HandlerFunc {
	checks := []struct {
		name string
		dep  pinger
	}{
		{"postgres", dbP},
		{"redis", redisP},
		{"gcs", storageP},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ComicForge-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		for _, check := range checks {
			if check.dep == nil {
				continue
			}
			if err := check.dep.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s unavailable", check.name)))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
