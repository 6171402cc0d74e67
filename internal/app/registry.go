package app

import (
	"context"

	"tn-work/internal/attendance"
	"tn-work/internal/config"
	"tn-work/internal/livestatus"
	"tn-work/internal/middleware"
	"tn-work/internal/rbac"
	"tn-work/internal/rbac/infra"
	"tn-work/internal/shared/clock"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildApp connects infrastructure and registers every route on router. The
// returned cleanup releases connections; the live hub runs until ctx ends.
func BuildApp(ctx context.Context, router *gin.Engine, cfg *config.Config) (func(), error) {
	logger := zap.L().Named("app.api")

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("database ready", zap.String("driver", cfg.DB.Driver))

	rdb, err := openRedis(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	enforcer, err := infra.NewEnforcer()
	if err != nil {
		st.Close()
		return nil, err
	}
	rbacService := rbac.NewService(enforcer)

	hub := registerModules(router, cfg, st, rdb, rbacService)
	go hub.Run(ctx)

	cleanup := func() {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = st.Close()
	}
	return cleanup, nil
}

func registerModules(
	router *gin.Engine,
	cfg *config.Config,
	st *store,
	rdb *redis.Client,
	rbacService rbac.Service,
) *livestatus.Hub {
	logger := zap.L()
	clk := clock.RealClock{}

	// --- Live feed ---
	liveService := livestatus.NewService(st.repo, clk, rdb, cfg.LiveCacheTTL)
	hub := livestatus.NewHub(liveService, rdb, cfg.LivePushInterval)
	invalidator := livestatus.NewInvalidator(rdb, hub.Trigger)

	// --- Attendance ---
	attendanceService := attendance.NewServiceWithOutbox(st.db, st.repo, st.outbox, invalidator, clk)

	// --- Handlers ---
	attendanceHandler := attendance.NewHandler(attendanceService, rdb)
	liveHandler := livestatus.NewHandler(liveService)
	rbacHandler := rbac.NewHandler(rbacService)

	router.Use(middleware.RequestID())

	// --- Routes Registration ---
	api := router.Group("/api/v1")
	{
		attendance.RegisterRoutes(api, attendanceHandler, attendance.RouteConfig{
			JWTSecret:      cfg.JWTSecret,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			Redis:          rdb,
			Logger:         logger,
		})
		livestatus.RegisterRoutes(api, liveHandler, hub, rbacService, cfg.JWTSecret, logger)
		rbac.RegisterRoutes(api, rbacHandler, cfg.JWTSecret)
	}

	return hub
}
