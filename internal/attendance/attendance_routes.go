package attendance

import (
	"tn-work/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type RouteConfig struct {
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	Redis          *redis.Client
	Logger         *zap.Logger
}

func RegisterRoutes(r *gin.RouterGroup, h *Handler, cfg RouteConfig) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}

	attendances := r.Group("/attendances")
	attendances.Use(
		middleware.AuthMiddleware(cfg.JWTSecret),
		middleware.ExtractUserID(),
		middleware.ContextLogger(logger),
	)
	{
		attendances.GET("", h.History)
		attendances.GET("/status", h.Status)
		attendances.GET("/hours/today", h.TodayHours)
		attendances.GET("/reports/weekly", h.WeeklyReport)
		attendances.GET("/reports/monthly", h.MonthlyReport)
		attendances.GET("/reports/range", h.RangeReport)

		writes := []gin.HandlerFunc{middleware.RateLimitByUser(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)}
		if cfg.Redis != nil {
			writes = append(writes, middleware.Idempotency(cfg.Redis, logger))
		}
		chain := func(last gin.HandlerFunc) []gin.HandlerFunc {
			return append(append([]gin.HandlerFunc{}, writes...), last)
		}
		attendances.POST("/clock-in", chain(h.ClockIn)...)
		attendances.POST("/clock-out", chain(h.ClockOut)...)
		attendances.POST("/clock", chain(h.Clock)...)
	}
}
