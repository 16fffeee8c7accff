package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lessonforge/internal/http/handlers"
	httpMW "github.com/yungbote/lessonforge/internal/http/middleware"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	// Metrics enables request metrics and GET /metrics when set.
	Metrics *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	LessonHandler   *httpH.LessonHandler
	ActivityHandler *httpH.ActivityHandler
	RunHandler      *httpH.RunHandler
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

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Lessons
		if cfg.LessonHandler != nil {
			api.POST("/lessons/:id/generate", cfg.LessonHandler.Generate)
			api.GET("/lessons/:id/activities", cfg.LessonHandler.ListActivities)
		}

		// Activities
		if cfg.ActivityHandler != nil {
			api.POST("/activities/:id/retry", cfg.ActivityHandler.Retry)
		}

		// Runs
		if cfg.RunHandler != nil {
			api.GET("/runs/:id", cfg.RunHandler.GetRun)
		}
	}

	return r
}
