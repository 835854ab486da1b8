package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/selfieapp/selfie/internal/auth"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers) {
	// Health and metrics endpoints (no auth, no rate limit)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)
	r.GET("/metrics", h.Metrics)

	apiRateLimiter := RateLimiter(h.cfg.RateLimiting.RPS, h.cfg.RateLimiting.Burst)

	api := r.Group("/api")
	api.Use(apiRateLimiter)
	api.Use(auth.RequireAuth(h.tokens))

	events := api.Group("")
	events.Use(RequireJSONContentType())
	{
		events.GET("/events", h.APIListEvents)
		events.POST("/events", h.APICreateEvent)
		events.PUT("/events", h.APIUpdateEvent)
		events.PUT("/events/series/:recurrenceId", h.APIUpdateSeries)
		events.DELETE("/events/series/:recurrenceId", h.APIDeleteSeries)
		events.DELETE("/events/series/:recurrenceId/occurrence", h.APICancelOccurrence)
		events.PUT("/events/:id", h.APIUpdateOccurrence)
		events.DELETE("/events/:id", h.APIDeleteEvent)
		events.GET("/calendar.ics", h.APIExportCalendar)
		events.GET("/calendar/imports", h.APIListImports)
	}

	// Uploads carry text/calendar bodies
	api.POST("/calendar/import", RequireCalendarContentType(), h.APIImportCalendar)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

// NewRouter builds the gin engine with the global middleware stack.
func NewRouter(h *Handlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.logger))
	r.Use(Instrument(h.metrics))
	r.Use(SecurityHeaders())
	r.Use(CORS(h.cfg.Server.AllowedOrigins))
	SetupRoutes(r, h)
	return r
}
