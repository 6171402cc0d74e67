package middleware

import (
	"net/http"

	"tn-work/internal/shared/contextutil"
	"tn-work/internal/shared/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ExtractUserID checks the token subject is a UUID and stores it as user_id_validated.
func ExtractUserID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID, exists := ctx.Get("user_id")
		if !exists {
			response.Error(ctx, http.StatusUnauthorized, "UNAUTHORIZED", "User tidak terautentikasi", nil)
			ctx.Abort()
			return
		}

		userIDStr, ok := userID.(string)
		if !ok || userIDStr == "" {
			response.Error(ctx, http.StatusUnauthorized, "INVALID_USER_ID", "Format user_id tidak valid", nil)
			ctx.Abort()
			return
		}
		if _, err := uuid.Parse(userIDStr); err != nil {
			response.Error(ctx, http.StatusUnauthorized, "INVALID_USER_ID", "Format user_id tidak valid", nil)
			ctx.Abort()
			return
		}

		ctx.Set("user_id_validated", userIDStr)
		ctx.Request = ctx.Request.WithContext(contextutil.WithUserID(ctx.Request.Context(), userIDStr))
		ctx.Next()
	}
}
