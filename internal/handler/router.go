package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tgo/docqa/internal/config"
	"github.com/tgo/docqa/internal/middleware"
	"github.com/tgo/docqa/internal/pkg/jwt"
	"github.com/tgo/docqa/internal/service"
)

// ReadinessCheck reports whether a backing service can take traffic.
type ReadinessCheck func(ctx context.Context) error

type Dependencies struct {
	Documents *service.DocumentService
	Retrieval *service.RetrievalService
	Answers   *service.AnswerService
	JWT       *jwt.Manager
	Checks    map[string]ReadinessCheck
	Logger    zerolog.Logger
}

type Handlers struct {
	Document *DocumentHandler
	Search   *SearchHandler
	QA       *QAHandler
	Health   *HealthHandler
}

func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestID())

	handlers := &Handlers{
		Document: NewDocumentHandler(deps.Documents, cfg.MaxUploadSize),
		Search:   NewSearchHandler(deps.Documents, deps.Retrieval),
		QA:       NewQAHandler(deps.Answers),
		Health:   NewHealthHandler(deps.Checks),
	}

	r.GET("/health", handlers.Health.Health)
	r.GET("/ready", handlers.Health.Ready)
	r.GET("/live", handlers.Health.Live)

	authMw := middleware.NewAuthMiddleware(deps.JWT)

	v1 := r.Group("/v1")
	v1.Use(authMw.JWTAuth())
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", handlers.Document.Upload)
			documents.GET("", handlers.Document.List)
			documents.GET("/:id", handlers.Document.Get)
			documents.GET("/:id/status", handlers.Document.Status)
			documents.GET("/:id/chunks", handlers.Document.Chunks)
			documents.DELETE("/:id", handlers.Document.Delete)
		}

		search := v1.Group("/search")
		{
			search.GET("/fulltext", handlers.Search.FullText)
			search.GET("/semantic", handlers.Search.Semantic)
		}

		v1.POST("/qa", handlers.QA.Ask)
	}

	return r
}

type HealthHandler struct {
	checks map[string]ReadinessCheck
}

func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "docqa",
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Ready runs every readiness check and fails if any of them does.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
