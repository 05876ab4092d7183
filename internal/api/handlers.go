package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/JustJay7/cyber-case-triage/internal/cache"
	"github.com/JustJay7/cyber-case-triage/internal/cases"
	"github.com/JustJay7/cyber-case-triage/internal/config"
	"github.com/JustJay7/cyber-case-triage/internal/scoring"
	"github.com/JustJay7/cyber-case-triage/pkg/logger"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	service *cases.Service
	db      *gorm.DB
	cache   cache.Cache
	logger  *logger.Logger
	cfg     *config.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(service *cases.Service, db *gorm.DB, cache cache.Cache, logger *logger.Logger, cfg *config.Config) *Handlers {
	return &Handlers{
		service: service,
		db:      db,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
	}
}

// CreateCase scores and stores a new case submission
func (h *Handlers) CreateCase(c *gin.Context) {
	var req cases.Submission
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid JSON body: " + err.Error(),
		})
		return
	}

	result, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Case created successfully",
		"data":    result,
	})
}

// ListCases returns a filtered page of cases
func (h *Handlers) ListCases(c *gin.Context) {
	query, err := parseListQuery(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       result.Data,
		"pagination": result.Pagination,
	})
}

// GetCase returns one case with its associations
func (h *Handlers) GetCase(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    detail,
	})
}

// UpdateCase applies a partial update
func (h *Handlers) UpdateCase(c *gin.Context) {
	var req cases.Patch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid JSON body: " + err.Error(),
		})
		return
	}

	detail, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Case updated successfully",
		"data":    detail,
	})
}

// DeleteCase removes a case and everything attached to it
func (h *Handlers) DeleteCase(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Case " + id + " deleted",
	})
}

// UploadFile attaches an evidence file to a case
func (h *Handlers) UploadFile(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Missing multipart field 'file'",
		})
		return
	}
	if h.cfg.MaxUploadSize > 0 && header.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error":   "File exceeds the upload limit of " + strconv.FormatInt(h.cfg.MaxUploadSize, 10) + " bytes",
		})
		return
	}

	src, err := header.Open()
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer src.Close()

	file, err := h.service.AddFile(c.Request.Context(), c.Param("id"), header.Filename, src)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    file,
	})
}

// ListFiles returns the evidence files of a case
func (h *Handlers) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    files,
	})
}

// DownloadFile streams a stored evidence file under its original name
func (h *Handlers) DownloadFile(c *gin.Context) {
	file, err := h.service.File(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.FileAttachment(file.FilePath, file.OriginalFilename)
}

// DeleteFile removes an evidence file
func (h *Handlers) DeleteFile(c *gin.Context) {
	if err := h.service.DeleteFile(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "File deleted",
	})
}

// GetGroup returns a case group with its members
func (h *Handlers) GetGroup(c *gin.Context) {
	summary, err := h.service.GroupSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    summary,
	})
}

// RecomputeGroup refreshes a group's rollups
func (h *Handlers) RecomputeGroup(c *gin.Context) {
	group, err := h.service.RecomputeGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    group,
	})
}

// RetrainModel fits a new priority model on verified cases
func (h *Handlers) RetrainModel(c *gin.Context) {
	var req struct {
		MinRows int `json:"min_rows"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid JSON body: " + err.Error(),
			})
			return
		}
	}

	result, err := h.service.RetrainModel(c.Request.Context(), req.MinRows)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Model retrained successfully",
		"data":    result,
	})
}

// Dashboard returns the overview statistics
func (h *Handlers) Dashboard(c *gin.Context) {
	d, err := h.service.Dashboard(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    d,
	})
}

// HealthCheck returns the health status
func (h *Handlers) HealthCheck(c *gin.Context) {
	dbHealthy := false
	if sqlDB, err := h.db.DB(); err == nil {
		dbHealthy = sqlDB.PingContext(c.Request.Context()) == nil
	}
	modelLoaded := h.service.ModelLoaded()

	status, code := "healthy", http.StatusOK
	if !dbHealthy || !modelLoaded {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":       status,
		"database":     dbHealthy,
		"model_loaded": modelLoaded,
		"cache":        h.cache.Stats(),
		"time":         time.Now().Unix(),
	})
}

// CacheStats returns cache statistics
func (h *Handlers) CacheStats(c *gin.Context) {
	stats := h.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   stats,
	})
}

// respondError maps service errors onto HTTP statuses. Storage details are
// logged, never returned.
func (h *Handlers) respondError(c *gin.Context, err error) {
	var verr *cases.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"fields":  verr.Fields,
		})
	case errors.Is(err, scoring.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error":   "Priority model is not loaded",
		})
	case errors.Is(err, scoring.ErrInsufficientTrainingData):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	case errors.Is(err, cases.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   err.Error(),
		})
	default:
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
	}
}
