package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marcvilanova/raceday-backend/api/controllers"
	"github.com/marcvilanova/raceday-backend/api/middleware"
	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/internal/payments"
	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	pubsubP controllers.Pinger,
	sheetsP controllers.Pinger,
	intakeEngine *intake.Engine,
	intakeRepo intake.Repository,
	queue *dispatch.Queue,
	sweeper *dispatch.Sweeper,
	paymentsService *payments.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP, pubsubP, sheetsP))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/races/{raceID}/sync", controllers.TriggerRaceSync(intakeEngine, intakeRepo, logg))

		r.Route("/dispatch", func(r chi.Router) {
			r.Post("/items", controllers.EnqueueDispatchItem(queue, logg))
			r.Post("/items/{itemID}/cancel", controllers.CancelDispatchItem(queue, logg))
			r.Post("/sweep", controllers.TriggerSweep(sweeper, logg))
			r.Post("/retry-failed", controllers.TriggerFailedRetry(sweeper, logg))
			r.Get("/status", controllers.DispatchStatus(queue, logg))
		})

		r.Post("/registrations/{registrationID}/confirm-payment", controllers.ConfirmPayment(paymentsService, logg))
	})

	return r
}
