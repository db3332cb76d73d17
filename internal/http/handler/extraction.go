package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/yabrams/precon-demo-sub001/internal/http/dto"
	"github.com/yabrams/precon-demo-sub001/internal/model"
	"github.com/yabrams/precon-demo-sub001/internal/service"
)

type ExtractionHandler struct {
	service     service.ExtractionService
	traceHeader string
}

func NewExtractionHandler(service service.ExtractionService, traceHeader string) *ExtractionHandler {
	return &ExtractionHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

func (h *ExtractionHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("projectId")

	var req dto.StartExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid extraction request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	documents := make([]model.ExtractionDocument, 0, len(req.Documents))
	for i, d := range req.Documents {
		if d.Path == "" && d.URL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "each document needs a path or url"})
			return
		}
		docType := model.DocumentType(d.Type)
		if docType == "" {
			docType = model.DocumentTypeDrawing
		}
		documents = append(documents, model.ExtractionDocument{
			ID:       strconv.Itoa(i + 1),
			Name:     d.Name,
			Type:     docType,
			MimeType: d.MimeType,
			Source: model.DocumentSource{
				Path: d.Path,
				URL:  d.URL,
			},
		})
	}

	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}
	params := service.StartParams{
		ProjectID: projectID,
		Documents: documents,
		Config: model.ExtractionConfig{
			Profile:            model.PipelineProfile(req.Profile),
			DedupThreshold:     req.DedupThreshold,
			MaxBatchTokens:     req.MaxBatchTokens,
			LargeDocumentPages: req.LargeDocumentPages,
			BatchConcurrency:   req.BatchConcurrency,
		},
	}
	if traceID != "" {
		params.TraceID = &traceID
	}

	result, err := h.service.Start(ctx, params)
	if err != nil {
		slog.ErrorContext(ctx, "failed to start extraction", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start extraction"})
		return
	}

	c.JSON(http.StatusAccepted, dto.StartExtractionResponse{
		SessionID: result.Session.ID,
		ProjectID: result.Session.ProjectID,
		Status:    string(result.Session.Status),
		Enqueued:  result.Enqueued,
	})
}

func (h *ExtractionHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()

	sessionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	sess, err := h.service.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to fetch session", "error", err, "session_id", sessionID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch session"})
		return
	}

	c.JSON(http.StatusOK, sessionResponse(sess))
}

func (h *ExtractionHandler) ListByProject(c *gin.Context) {
	ctx := c.Request.Context()
	projectID := c.Param("projectId")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	sessions, err := h.service.ListByProject(ctx, projectID, limit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list sessions", "error", err, "project_id", projectID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	out := make([]dto.SessionResponse, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionResponse(&sessions[i]))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *ExtractionHandler) Estimate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.EstimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	est := h.service.Estimate(ctx, req.PageCount, model.PipelineProfile(req.Profile))
	c.JSON(http.StatusOK, dto.EstimateResponse{
		PageCount:       est.PageCount,
		Passes:          est.Passes,
		EstimatedTokens: est.EstimatedTokens,
		EstimatedUSD:    est.EstimatedUSD,
	})
}

func sessionResponse(sess *model.ExtractionSession) dto.SessionResponse {
	resp := dto.SessionResponse{
		SessionID:     sess.ID,
		ProjectID:     sess.ProjectID,
		Status:        string(sess.Status),
		Progress:      sess.Progress,
		CurrentPass:   sess.CurrentPass,
		TotalPasses:   sess.Config.Profile.Passes(),
		StatusMessage: sess.StatusMessage,
		Error:         sess.Error,
		WorkPackages:  sess.WorkPackages,
		Observations:  sess.Observations,
		Passes:        sess.Passes,
		CreatedAt:     sess.CreatedAt.Format(time.RFC3339),
	}
	if sess.CompletedAt != nil {
		completed := sess.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}
