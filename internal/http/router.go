package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/draftstudio-backend/internal/http/handlers"
	httpMW "github.com/yungbote/draftstudio-backend/internal/http/middleware"
	"github.com/yungbote/draftstudio-backend/internal/observability"
	"github.com/yungbote/draftstudio-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log             *logger.Logger
	Metrics         *observability.Metrics
	ServiceName     string
	CORSOrigins     []string
	MaxRequestBytes int64

	HealthHandler   *httpH.HealthHandler
	DraftHandler    *httpH.DraftHandler
	SnapshotHandler *httpH.SnapshotHandler
	HandoffHandler  *httpH.HandoffHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.LimitBody(cfg.MaxRequestBytes))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")

	// Drafts
	if cfg.DraftHandler != nil {
		api.POST("/drafts", cfg.DraftHandler.Create)
		api.GET("/drafts", cfg.DraftHandler.List)
		api.GET("/drafts/:id", cfg.DraftHandler.Get)
		api.DELETE("/drafts/:id", cfg.DraftHandler.Delete)
		api.PUT("/drafts/:id/inputs", cfg.DraftHandler.UpdateInputs)
		api.POST("/drafts/:id/generate", cfg.DraftHandler.Generate)
		api.PUT("/drafts/:id/fields/:field", cfg.DraftHandler.Edit)
		api.DELETE("/drafts/:id/fields/:field", cfg.DraftHandler.ResetField)
		api.DELETE("/drafts/:id/edits", cfg.DraftHandler.ResetAll)
		api.POST("/drafts/:id/undo", cfg.DraftHandler.Undo)
		api.POST("/drafts/:id/reset", cfg.DraftHandler.Reset)
	}

	// Snapshots
	if cfg.SnapshotHandler != nil {
		api.POST("/drafts/:id/snapshots", cfg.SnapshotHandler.Capture)
		api.GET("/drafts/:id/snapshots", cfg.SnapshotHandler.History)
		api.PUT("/drafts/:id/snapshots/active", cfg.SnapshotHandler.SetActive)
		api.PATCH("/drafts/:id/snapshots/active/derived", cfg.SnapshotHandler.UpdateDerived)
		api.GET("/drafts/:id/snapshots/:sid/export", cfg.SnapshotHandler.Export)
		api.POST("/drafts/:id/snapshots/compare", cfg.SnapshotHandler.Compare)
	}

	// Handoffs
	if cfg.HandoffHandler != nil {
		api.POST("/handoffs", cfg.HandoffHandler.Send)
		api.GET("/handoffs/:source/:destination", cfg.HandoffHandler.Plan)
		api.POST("/handoffs/:source/:destination/apply", cfg.HandoffHandler.Apply)
		api.DELETE("/handoffs/:source/:destination", cfg.HandoffHandler.Dismiss)
	}

	return r
}
