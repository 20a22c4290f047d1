package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/good-yellow-bee/nurserywatch/internal/api/middleware"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	testLimiter := middleware.NewRateLimiter(s.config.TestRateLimit, s.config.TestRateBurst)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/snapshot", s.getSnapshot)
		r.Post("/snapshot/refresh", s.refreshSnapshot)
		r.Get("/stream", s.streamUpdates)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.getHistory)
			r.Get("/summary", s.getSummaries)
			r.Get("/export", s.exportHistory)
			r.Get("/{sensor}/summary", s.getSensorSummary)
		})

		r.Route("/thresholds", func(r chi.Router) {
			r.Get("/", s.getThresholds)
			r.Put("/", s.putThresholds)
			r.Post("/reset", s.resetThresholds)
		})

		r.Get("/cloud", s.getCloudConfig)
		r.Patch("/cloud", s.patchCloudConfig)

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/settings", s.getNotificationSettings)
			r.Patch("/settings", s.patchNotificationSettings)

			r.Get("/logs", s.listNotificationLogs)
			r.Delete("/logs", s.clearNotificationLogs)

			r.With(middleware.RateLimitByIP(testLimiter)).Post("/test", s.sendTestNotification)
			r.Post("/trigger", s.triggerNotification)

			r.Get("/active", s.listActiveNotifications)
			r.Delete("/active/{id}", s.dismissNotification)

			r.Get("/stats", s.getNotificationStats)
		})

		r.Get("/push/permission", s.getPushPermission)
		r.Post("/push/permission", s.requestPushPermission)
	})

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)

	if s.config.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
