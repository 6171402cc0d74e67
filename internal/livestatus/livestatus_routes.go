package livestatus

import (
	"tn-work/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	rbacResource = "attendance_live"
	rbacAction   = "read"
)

func RegisterRoutes(r *gin.RouterGroup, h *Handler, hub *Hub, rbacSvc middleware.RBACService, jwtSecret string, logger *zap.Logger) {
	if logger == nil {
		logger = zap.L()
	}

	live := r.Group("/attendances/live")
	live.Use(
		middleware.AuthMiddleware(jwtSecret),
		middleware.ExtractUserID(),
		middleware.ContextLogger(logger),
		middleware.RBACAuthorize(rbacSvc, rbacResource, rbacAction),
	)
	{
		live.GET("", h.Live)
		if hub != nil {
			live.GET("/stream", hub.ServeWS)
		}
	}
}
