package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows the configured frontend origins, or any origin when none are set.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func NewRouter(h *Handler, origins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), CORS(origins))
	RegisterRoutes(r, h)
	return r
}

func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/reviews", h.Submit)
		v1.GET("/entities", h.Entities)
		v1.GET("/entities/:name", h.Entity)
		v1.GET("/entities/:name/reviews", h.EntityReviews)
		v1.GET("/entities/:name/synthesis", h.Synthesis)
	}

	admin := v1.Group("", RequireAdmin(h.tokens))
	{
		admin.POST("/ingest", h.Ingest)
		admin.GET("/admin/reviews/pending", h.Pending)
		admin.PATCH("/admin/reviews/:id/status", h.SetStatus)
	}
}
