package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/taxnovahq/taxnova-backend/api/responses"
	"github.com/taxnovahq/taxnova-backend/pkg/config"
	"github.com/taxnovahq/taxnova-backend/pkg/logger"
)

const envHeader = "X-TaxNova-Env"

// Pinger is the readiness check each backing dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports per-dependency readiness. Nil pingers are
// dependencies the deployment runs without and count as ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unreachable"
				ready = false
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				continue
			}
			checks[name] = "ok"
		}

		status := http.StatusOK
		body := map[string]any{"status": "ready", "checks": checks}
		if !ready {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
		responses.WriteSuccessStatus(w, status, body)
	}
}
