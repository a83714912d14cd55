package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikeboe/research-agent/pkg/database"
	"github.com/mikeboe/research-agent/pkg/pipeline"
	"github.com/mikeboe/research-agent/pkg/store"
	"github.com/mikeboe/research-agent/pkg/vectorstore"
)

const version = "0.1.0"

// Handler exposes the research pipeline over HTTP.
type Handler struct {
	Orchestrator *pipeline.Orchestrator
	Store        *store.Postgres
	Index        *vectorstore.Index
	DB           *database.PostgresDB
}

func NewHandler(orc *pipeline.Orchestrator, st *store.Postgres, index *vectorstore.Index, db *database.PostgresDB) *Handler {
	return &Handler{Orchestrator: orc, Store: st, Index: index, DB: db}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/", h.root)
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/research", h.startResearch)
		api.GET("/research/:id", h.getResearch)
		api.GET("/research/:id/report", h.getReport)
		api.GET("/research/:id/results", h.getResults)
		api.GET("/research/:id/logs", h.getLogs)
		api.POST("/research/:id/index-documents", h.indexDocuments)
	}
}

func (h *Handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Autonomous Research Agent API",
		"version": version,
		"endpoints": gin.H{
			"research": "/api/research",
			"status":   "/api/research/{query_id}",
			"report":   "/api/research/{query_id}/report",
			"health":   "/health",
		},
	})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version,
	})
}

type startResearchRequest struct {
	Query string `json:"query" binding:"required"`
}

func (h *Handler) startResearch(c *gin.Context) {
	var req startResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queryID, err := h.Orchestrator.Submit(c.Request.Context(), req.Query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"query_id":  queryID,
		"query":     req.Query,
		"status":    pipeline.StatusPending,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) getResearch(c *gin.Context) {
	queryID, ok := h.queryID(c)
	if !ok {
		return
	}

	state, err := h.Store.GetState(c.Request.Context(), queryID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) getReport(c *gin.Context) {
	queryID, ok := h.queryID(c)
	if !ok {
		return
	}

	report, err := h.Orchestrator.GetReport(c.Request.Context(), queryID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	state, err := h.Store.GetState(c.Request.Context(), queryID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query_id":               queryID,
		"title":                  report.Title,
		"content":                report.Content,
		"summary":                report.Summary,
		"metadata":               report.Metadata,
		"web_results_count":      len(state.SearchResults),
		"document_results_count": len(state.Documents),
		"created_at":             state.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handler) getResults(c *gin.Context) {
	queryID, ok := h.queryID(c)
	if !ok {
		return
	}

	if _, err := h.Store.GetStatus(c.Request.Context(), queryID); err != nil {
		h.renderError(c, err)
		return
	}

	results, err := h.Store.GetResults(c.Request.Context(), queryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []pipeline.StepResult{}
	}
	c.JSON(http.StatusOK, gin.H{"query_id": queryID, "results": results})
}

func (h *Handler) getLogs(c *gin.Context) {
	queryID, ok := h.queryID(c)
	if !ok {
		return
	}

	logs, err := GetLogs(c.Request.Context(), h.DB, queryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []LogEntry{}
	}
	c.JSON(http.StatusOK, logs)
}

type indexDocumentsRequest struct {
	Texts     []string                 `json:"texts" binding:"required"`
	Metadatas []map[string]interface{} `json:"metadatas"`
}

func (h *Handler) indexDocuments(c *gin.Context) {
	queryID, ok := h.queryID(c)
	if !ok {
		return
	}

	// The id is only used to scope the request to a known query.
	if _, err := h.Store.GetStatus(c.Request.Context(), queryID); err != nil {
		h.renderError(c, err)
		return
	}

	var req indexDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ids, err := h.Index.IndexTexts(c.Request.Context(), req.Texts, req.Metadatas)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "success",
		"document_count": len(ids),
		"document_ids":   ids,
	})
}

func (h *Handler) queryID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Research query not found"})
	case errors.Is(err, pipeline.ErrNotReady):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Report not yet generated"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
