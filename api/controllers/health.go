package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/milletlink/milletlink-backend/api/responses"
	"github.com/milletlink/milletlink-backend/pkg/config"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MilletLink-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks every backing dependency. Nil pingers are skipped so a
// binary that does not carry a dependency still reports ready.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MilletLink-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		statuses := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				statuses[name] = "down"
				responses.WriteError(ctx, logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").WithDetails(statuses))
				return
			}
			statuses[name] = "up"
		}
		responses.WriteSuccess(w, statuses)
	}
}
