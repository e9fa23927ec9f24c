package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/milletlink/milletlink-backend/api/controllers"
	"github.com/milletlink/milletlink-backend/api/middleware"
	"github.com/milletlink/milletlink-backend/internal/chat"
	"github.com/milletlink/milletlink-backend/internal/dispatch"
	"github.com/milletlink/milletlink-backend/internal/notifications"
	"github.com/milletlink/milletlink-backend/internal/orders"
	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	deps map[string]controllers.Pinger,
	ordersSvc *orders.Service,
	dispatchSvc *dispatch.Service,
	chatSvc *chat.Service,
	notificationsRepo *notifications.GormRepository,
	relayHandler http.Handler,
	registry *prometheus.Registry,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	allowedOrigins := cfg.Relay.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	if relayHandler != nil {
		r.Handle("/ws", relayHandler)
	}

	// Internal surface: trusted calls from the commerce backend.
	r.Route("/internal/v1", func(r chi.Router) {
		r.Post("/orders/{orderID}/transition", controllers.TransitionOrder(ordersSvc, logg))
		r.Route("/assignments/{assignmentID}", func(r chi.Router) {
			r.Get("/", controllers.GetAssignment(dispatchSvc, logg))
			r.Post("/accept", controllers.AcceptAssignment(dispatchSvc, logg))
			r.Post("/cancel", controllers.CancelAssignment(dispatchSvc, logg))
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/chat/{roomID}/messages", controllers.ChatHistory(chatSvc, logg))
		r.Route("/users/{userID}/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsRepo, logg))
			r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsRepo, logg))
		})
	})

	return r
}
