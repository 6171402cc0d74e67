package livestatus

import (
	"net/http"
	"strings"

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

// Live serves ?today=true, ?date=YYYY-MM-DD, or the seven-day history when
// neither is given.
func (h *Handler) Live(c *gin.Context) {
	var q Query
	if err := c.ShouldBindQuery(&q); err != nil {
		httpErr := apperror.ToHTTP(apperror.InvalidField("Today"))
		response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, err.Error())
		return
	}
	q.Date = strings.TrimSpace(q.Date)

	resp, err := h.service.Live(c.Request.Context(), q)
	if err != nil {
		httpErr := apperror.ToHTTP(err)
		response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}
