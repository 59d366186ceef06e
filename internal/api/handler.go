package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/internal/pipeline"
	"github.com/nitesh/exchange_reviews/internal/service"
	"github.com/nitesh/exchange_reviews/internal/source"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

type Handler struct {
	svc    *service.Service
	tokens TokenService
	log    *logger.Logger
}

func NewHandler(svc *service.Service, tokens TokenService, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{svc: svc, tokens: tokens, log: log.With("component", "api")}
}

// Health: GET /healthz
func (h *Handler) Health(c *gin.Context) {
	res, err := h.svc.Health(c.Request.Context())
	if err != nil {
		h.log.Error("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"meta": gin.H{"status": "degraded"}, "data": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meta": gin.H{"status": "ok"}, "data": res})
}

// Ingest: POST /v1/ingest?reprocess=true
// The run outlives the request so a dropped client does not cut a batch short.
func (h *Handler) Ingest(c *gin.Context) {
	reprocess, _ := strconv.ParseBool(c.DefaultQuery("reprocess", "false"))
	ctx := context.WithoutCancel(c.Request.Context())

	res, err := h.svc.RunIngestion(ctx, pipeline.Options{Reprocess: reprocess})
	if err != nil {
		h.fail(c, "ingestion failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"inserted":  res.Inserted,
			"updated":   res.Updated,
			"reprocess": reprocess,
		},
		"data": res.Report,
	})
}

// Submit: POST /v1/reviews
func (h *Handler) Submit(c *gin.Context) {
	var in source.SubmissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.svc.Submit(c.Request.Context(), in)
	if err != nil {
		h.fail(c, "submission failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"meta": gin.H{"status": rec.ModerationStatus},
		"data": gin.H{"id": rec.ID, "status": rec.ModerationStatus},
	})
}

// Entities: GET /v1/entities
func (h *Handler) Entities(c *gin.Context) {
	res, err := h.svc.Aggregates(c.Request.Context())
	if err != nil {
		h.fail(c, "list entities failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"count": len(res)},
		"data": res,
	})
}

// Entity: GET /v1/entities/:name
func (h *Handler) Entity(c *gin.Context) {
	name := c.Param("name")
	view, err := h.svc.Aggregate(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "aggregate failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"entity": name},
		"data": view,
	})
}

// EntityReviews: GET /v1/entities/:name/reviews?limit=20&offset=0
func (h *Handler) EntityReviews(c *gin.Context) {
	name := c.Param("name")
	lim := parseLimit(c.DefaultQuery("limit", "20"))
	off := parseOffset(c.DefaultQuery("offset", "0"))

	res, err := h.svc.Reviews(c.Request.Context(), name, lim, off)
	if err != nil {
		h.fail(c, "list reviews failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{
			"entity": name,
			"count":  len(res),
			"limit":  lim,
			"offset": off,
		},
		"data": res,
	})
}

// Synthesis: GET /v1/entities/:name/synthesis
func (h *Handler) Synthesis(c *gin.Context) {
	name := c.Param("name")
	text, err := h.svc.Synthesize(c.Request.Context(), name)
	if err != nil {
		h.fail(c, "synthesis failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"entity": name},
		"data": gin.H{"summary": text},
	})
}

// Pending: GET /v1/admin/reviews/pending?limit=50
func (h *Handler) Pending(c *gin.Context) {
	lim := parseLimit(c.DefaultQuery("limit", "50"))
	res, err := h.svc.Pending(c.Request.Context(), lim)
	if err != nil {
		h.fail(c, "list pending failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"count": len(res), "limit": lim},
		"data": res,
	})
}

type statusRequest struct {
	Status models.ModerationStatus `json:"status"`
}

// SetStatus: PATCH /v1/admin/reviews/:id/status
// Body: {"status": "approved"} or {"status": "rejected"}
func (h *Handler) SetStatus(c *gin.Context) {
	id := c.Param("id")
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	rec, err := h.svc.Moderate(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, "moderation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta": gin.H{"id": id, "status": rec.ModerationStatus},
		"data": rec,
	})
}

// fail maps err to a status code. Only validation messages reach the client;
// everything else is logged and answered generically.
func (h *Handler) fail(c *gin.Context, msg string, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrRunInProgress.Error()})
	default:
		h.log.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// parseLimit ensures a sane integer limit, with bounds
func parseLimit(s string) int {
	l, err := strconv.Atoi(s)
	if err != nil || l <= 0 {
		return 10
	}
	if l > 200 {
		return 200
	}
	return l
}

func parseOffset(s string) int {
	o, err := strconv.Atoi(s)
	if err != nil || o < 0 {
		return 0
	}
	return o
}
