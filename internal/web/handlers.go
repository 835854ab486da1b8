package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/selfieapp/selfie/internal/activity"
	"github.com/selfieapp/selfie/internal/auth"
	"github.com/selfieapp/selfie/internal/config"
	"github.com/selfieapp/selfie/internal/health"
	"github.com/selfieapp/selfie/internal/metrics"
	"github.com/selfieapp/selfie/internal/recurrence"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg     *config.Config
	engine  *recurrence.Engine
	tokens  *auth.TokenManager
	health  *health.Checker
	metrics *metrics.Metrics
	imports *activity.Tracker
	logger  *logrus.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	cfg *config.Config,
	engine *recurrence.Engine,
	tokens *auth.TokenManager,
	healthChecker *health.Checker,
	m *metrics.Metrics,
	imports *activity.Tracker,
	logger *logrus.Logger,
) *Handlers {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if imports == nil {
		imports = activity.NewTracker()
	}
	return &Handlers{
		cfg:     cfg,
		engine:  engine,
		tokens:  tokens,
		health:  healthChecker,
		metrics: m,
		imports: imports,
		logger:  logger,
	}
}

// HealthCheck returns a full health report.
func (h *Handlers) HealthCheck(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	report := h.health.Liveness()
	c.JSON(http.StatusOK, report)
}

// Readiness checks all dependencies.
func (h *Handlers) Readiness(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	if report.Status == health.StatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Metrics serves the Prometheus exposition.
func (h *Handlers) Metrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// sanitizeError returns a user-safe error message without exposing internal details.
// Internal error details are logged but not returned to the client.
func (h *Handlers) sanitizeError(c *gin.Context, err error, userMessage string) string {
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"route":  c.FullPath(),
		}).WithError(err).Error(userMessage)
	}
	return userMessage
}

// respondError maps engine errors onto HTTP statuses. Validation and lookup
// failures carry their message; anything else is reported generically.
func (h *Handlers) respondError(c *gin.Context, err error, userMessage string) {
	switch {
	case errors.Is(err, recurrence.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, recurrence.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Event not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.sanitizeError(c, err, userMessage)})
	}
}

// currentOwner returns the authenticated owner, writing a 401 when there is none.
func currentOwner(c *gin.Context) (string, bool) {
	claims := auth.GetCurrentUser(c)
	if claims == nil || claims.OwnerID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return "", false
	}
	return claims.OwnerID, true
}
