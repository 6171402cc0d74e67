package rbac

import (
	"net/http"
	"strings"

	"tn-work/internal/domain"
	"tn-work/internal/shared/apperror"
	"tn-work/internal/shared/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Check answers whether the caller's own role allows resource:action.
// Clients use it to decide whether to show the live attendance board.
func (h *Handler) Check(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, apperror.CodeValidation, "Input tidak valid", err.Error())
		return
	}

	role := c.GetString("role")
	req.Resource = strings.TrimSpace(req.Resource)
	req.Action = strings.TrimSpace(req.Action)

	allowed, err := h.service.Enforce(domain.EnforceRequest{Role: role, Resource: req.Resource, Action: req.Action})
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error", nil)
		return
	}

	response.Success(c, http.StatusOK, CheckResponse{
		Role:     role,
		Resource: req.Resource,
		Action:   req.Action,
		Allowed:  allowed,
	}, nil)
}
