package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragkb/internal/middleware"
)

type RouterDeps struct {
	KnowledgeBases *KnowledgeBaseHandler
	Ingest         *IngestHandler
	Search         *SearchHandler
	RAG            *RAGHandler
	Settings       *SettingsHandler
	Metrics        http.Handler
	JWTSecret      []byte
	RateWindow     time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Settings.Health)
	api.GET("/settings", deps.Settings.Settings)
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret))
	if deps.RateWindow > 0 {
		authGroup.Use(middleware.RateLimit(deps.RateWindow))
	}

	authGroup.POST("/kb", deps.KnowledgeBases.Create)
	authGroup.GET("/kb", deps.KnowledgeBases.List)
	authGroup.GET("/kb/:id", deps.KnowledgeBases.Get)
	authGroup.DELETE("/kb/:id", deps.KnowledgeBases.Delete)
	authGroup.GET("/kb/:id/documents", deps.KnowledgeBases.ListDocuments)
	authGroup.GET("/kb/:id/stats", deps.KnowledgeBases.Stats)

	authGroup.POST("/kb/:id/documents", deps.Ingest.Ingest)
	authGroup.GET("/documents/:id", deps.Ingest.GetDocument)
	authGroup.GET("/documents/:id/raw", deps.Ingest.DownloadDocument)

	authGroup.POST("/kb/:id/search", deps.Search.Search)
	authGroup.POST("/rag/query", deps.RAG.Query)
}
