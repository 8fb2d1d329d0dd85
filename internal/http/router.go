package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/classsync/internal/http/handlers"
	httpMW "github.com/yungbote/classsync/internal/http/middleware"
	"github.com/yungbote/classsync/internal/observability"
	"github.com/yungbote/classsync/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	Origins     []string

	HealthHandler   *httpH.HealthHandler
	StateHandler    *httpH.StateHandler
	CommandHandler  *httpH.CommandHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	if cfg.Metrics != nil {
		r.Use(httpMW.Metrics(cfg.Metrics))
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}
	r.Use(httpMW.CORS(cfg.Origins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
	}

	// Reads
	if h := cfg.StateHandler; h != nil {
		api.GET("/state", h.Summary)
		api.GET("/me", h.Me)
		api.GET("/units", h.Units)
		api.GET("/units/:id", h.Unit)
		api.GET("/progress/:studentId", h.Progress)
		api.GET("/tests", h.Tests)
		api.GET("/tests/:id", h.Test)
		api.GET("/chats", h.Chats)
		api.GET("/chats/:id/messages", h.Messages)
		api.GET("/online", h.Online)
	}

	// Commands
	if h := cfg.CommandHandler; h != nil {
		api.GET("/commands", h.Ledger)

		api.POST("/units", h.CreateUnit)
		api.DELETE("/units/:id", h.DeleteUnit)
		api.POST("/units/:id/toggle-lock", h.ToggleUnitLock)
		api.POST("/units/:id/test", h.CreateTest)
		api.PUT("/words/:id", h.EditWord)
		api.POST("/me/avatar", h.ChangeAvatar)

		api.DELETE("/tests/:id", h.DeleteTest)
		api.POST("/tests/:id/activate", h.ActivateTest)
		api.POST("/tests/:id/join", h.JoinTest)
		api.POST("/tests/:id/start", h.StartTest)
		api.POST("/tests/:id/end", h.EndTest)
		api.POST("/tests/:id/submit", h.SubmitTest)
		api.POST("/tests/:id/grade", h.GradeResult)

		api.POST("/progress", h.SaveProgress)
		api.POST("/progress/reset", h.ResetProgress)

		api.POST("/messages", h.SendMessage)
		api.PUT("/messages/:id", h.EditMessage)
		api.DELETE("/messages/:id", h.DeleteMessage)
		api.POST("/messages/read", h.MarkRead)

		api.POST("/chats", h.CreateChat)
		api.DELETE("/chats/:id", h.DeleteChat)
		api.POST("/chats/:id/clear", h.ClearChat)
	}

	return r
}
