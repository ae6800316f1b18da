package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/marcvilanova/raceday-backend/api/responses"
	"github.com/marcvilanova/raceday-backend/pkg/config"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is the health-check surface each dependency client exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RaceDay-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency and reports per-dependency state. Any
// failing dependency turns the whole check into a 503.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP, pubsubP, sheetsP Pinger) http.HandlerFunc {
	deps := []struct {
		name string
		ping Pinger
	}{
		{"database", dbP},
		{"redis", redisP},
		{"pubsub", pubsubP},
		{"sheets", sheetsP},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RaceDay-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]string{}
		healthy := true
		for _, dep := range deps {
			if dep.ping == nil {
				checks[dep.name] = "not configured"
				continue
			}
			if err := dep.ping.Ping(ctx); err != nil {
				checks[dep.name] = err.Error()
				healthy = false
				continue
			}
			checks[dep.name] = "ok"
		}

		if !healthy {
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeDependency, "one or more dependencies are unavailable").
					WithDetails(checks))
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
