package http

import (
	"net/http"
	"time"

	"marco/internal/delivery/channels/telegram"
	domain "marco/internal/domain/reminder"
	"marco/internal/shared/logging"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReminderReader is the read side of the reminder registry.
type ReminderReader interface {
	All() []domain.Reminder
	ForUser(userID int64) []domain.Reminder
	DueAsOf(now time.Time) []domain.Reminder
	Len() int
	Dirty() bool
}

// RequestMetrics counts served requests.
type RequestMetrics interface {
	RecordHTTPRequest(route, code string)
}

// RouterDeps are the collaborators behind the HTTP surface. Updates and
// Gatherer are optional; their routes are not mounted when nil.
type RouterDeps struct {
	Reminders     ReminderReader
	Updates       telegram.UpdateHandler
	WebhookSecret string
	Gatherer      prometheus.Gatherer
	Metrics       RequestMetrics
	Clock         domain.Clock
	Logger        logging.Logger
}

// RouterConfig tunes the engine.
type RouterConfig struct {
	Debug          bool
	AllowedOrigins []string // CORS origins; empty disables CORS
}

// NewRouter creates the gin engine with all endpoints.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Router")
	}
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(RecoveryMiddleware(logger))
	engine.Use(LoggingMiddleware(logger))
	engine.Use(ObservabilityMiddleware(deps.Metrics))
	if len(cfg.AllowedOrigins) > 0 {
		engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	}

	apiHandler := NewAPIHandler(deps.Reminders, domain.ClockOrSystem(deps.Clock))

	engine.GET("/healthz", apiHandler.HandleHealthCheck)
	if deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.Updates != nil {
		engine.POST("/webhook", telegram.WebhookHandler(deps.Updates, deps.WebhookSecret))
	}

	api := engine.Group("/api")
	{
		api.GET("/reminders", apiHandler.HandleListReminders)
		api.GET("/reminders/due", apiHandler.HandleListDue)
	}

	engine.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "not found")
	})
	return engine
}

func corsConfig(origins []string) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowMethods = []string{"GET", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", logIDHeader}
	corsCfg.ExposeHeaders = []string{logIDHeader}
	for _, origin := range origins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			return corsCfg
		}
	}
	corsCfg.AllowOrigins = origins
	return corsCfg
}
