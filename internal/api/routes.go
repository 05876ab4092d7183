package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/cases"
	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/metrics"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, svc *cases.Service, db *gorm.DB, cache cache.Cache, m *metrics.Metrics, logger *logger.Logger, cfg *config.Config) {
	h := NewHandlers(svc, db, cache, logger, cfg)

	api := router.Group("/api")
	{
		// Operations
		api.GET("/health", h.HealthCheck)
		api.GET("/cache/stats", h.CacheStats)
		if m != nil {
			api.GET("/metrics", gin.WrapH(m.Handler()))
		}

		// Cases
		api.POST("/cases", h.CreateCase)
		api.POST("/rank_case", h.CreateCase)
		api.GET("/cases", h.ListCases)
		api.GET("/cases/:id", h.GetCase)
		api.PUT("/cases/:id", h.UpdateCase)
		api.DELETE("/cases/:id", h.DeleteCase)

		// Evidence files
		api.POST("/cases/:id/files", h.UploadFile)
		api.GET("/cases/:id/files", h.ListFiles)
		api.GET("/files/:id", h.DownloadFile)
		api.DELETE("/files/:id", h.DeleteFile)

		// Groups
		api.GET("/groups/:id", h.GetGroup)
		api.POST("/groups/:id/recompute", h.RecomputeGroup)

		// Model
		api.POST("/model/retrain", h.RetrainModel)
		api.POST("/retrain_model", h.RetrainModel)

		api.GET("/dashboard", h.Dashboard)
	}
}
