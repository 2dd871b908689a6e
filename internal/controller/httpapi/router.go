package httpapi

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterConfig struct {
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
}

// NewRouter собирает gin engine со всеми маршрутами API
func NewRouter(h *Handler, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(logger), RequestLogger(logger))

	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	v1.Use(RateLimit(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)), JWTAuth(cfg.JWTSecret))
	{
		v1.POST("/appointments", h.Book)
		v1.GET("/appointments", h.List)
		v1.GET("/appointments/:id", h.Get)
		v1.PATCH("/appointments/:id/status", h.UpdateStatus)
		v1.POST("/appointments/:id/recording", h.AttachRecording)
		v1.POST("/appointments/:id/vitals", h.AttachVitalSigns)
		v1.DELETE("/appointments/:id", h.Delete)

		v1.GET("/teachers/:id/availability", h.Availability)
	}

	return r
}
