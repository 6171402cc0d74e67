package attendance

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tn-work/internal/shared/apperror"
	"tn-work/internal/shared/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// maxClockBody bounds the combined endpoint body, beacons are tiny.
const maxClockBody = 4 << 10

type Handler struct {
	service Service
	rdb     *redis.Client
}

func NewHandler(service Service, rdb ...*redis.Client) *Handler {
	h := &Handler{service: service}
	if len(rdb) > 0 {
		h.rdb = rdb[0]
	}
	return h
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

func currentUserID(c *gin.Context) string {
	if uid := c.GetString("user_id_validated"); uid != "" {
		return uid
	}
	return c.GetString("user_id")
}

func (h *Handler) ClockIn(c *gin.Context) {
	defer h.releaseIdempotencyLock(c)

	resp, err := h.service.ClockIn(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.cacheIdempotentResponse(c, resp)
	response.Success(c, http.StatusCreated, resp, nil)
}

func (h *Handler) ClockOut(c *gin.Context) {
	defer h.releaseIdempotencyLock(c)

	var req ClockOutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, apperror.CodeValidation, "Input tidak valid", err.Error())
			return
		}
	}

	resp, err := h.service.ClockOut(c.Request.Context(), currentUserID(c), req.Source)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	h.cacheIdempotentResponse(c, resp)
	response.Success(c, http.StatusOK, resp, nil)
}

// Clock never rejects its body. Unload beacons may arrive as text/plain,
// truncated or empty, and all of those fall through to a check-out.
func (h *Handler) Clock(c *gin.Context) {
	defer h.releaseIdempotencyLock(c)

	req := parseClockRequest(c)
	resp, err := h.service.Clock(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Action == ActionClockIn {
		status = http.StatusCreated
	}
	h.cacheIdempotentResponse(c, resp)
	response.Success(c, status, resp, nil)
}

func parseClockRequest(c *gin.Context) ClockRequest {
	var req ClockRequest
	if c.Request.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxClockBody))
		_ = json.Unmarshal(raw, &req)
	}
	if t := c.Query("type"); t != "" {
		req.Type = t
	}
	if src := c.Query("source"); src != "" {
		req.Source = src
	}
	return req
}

func (h *Handler) Status(c *gin.Context) {
	resp, err := h.service.Status(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) History(c *gin.Context) {
	resp, err := h.service.History(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if pageSize < 1 {
		pageSize = 10
	}

	total := int64(len(resp))
	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(resp) {
		start = len(resp)
	}
	if end > len(resp) {
		end = len(resp)
	}

	meta := response.NewPaginationMeta(total, page, pageSize)
	response.Success(c, http.StatusOK, resp[start:end], &meta)
}

func (h *Handler) TodayHours(c *gin.Context) {
	resp, err := h.service.TodayHours(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) WeeklyReport(c *gin.Context) {
	resp, err := h.service.WeeklyReport(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Query("date")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) MonthlyReport(c *gin.Context) {
	resp, err := h.service.MonthlyReport(c.Request.Context(), currentUserID(c), strings.TrimSpace(c.Query("month")))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) RangeReport(c *gin.Context) {
	var q RangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeServiceError(c, apperror.MapValidationError(err))
		return
	}

	resp, err := h.service.RangeReport(c.Request.Context(), currentUserID(c), q.From, q.To)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp, nil)
}

func (h *Handler) releaseIdempotencyLock(c *gin.Context) {
	if h.rdb == nil {
		return
	}
	if lk := c.GetString("idempotency_lock_key"); lk != "" {
		_ = h.rdb.Del(c.Request.Context(), lk).Err()
	}
}

func (h *Handler) cacheIdempotentResponse(c *gin.Context, resp any) {
	if h.rdb == nil {
		return
	}
	ck := c.GetString("idempotency_cache_key")
	if ck == "" {
		return
	}
	if payload, err := json.Marshal(resp); err == nil {
		_ = h.rdb.Set(c.Request.Context(), ck, payload, 24*time.Hour).Err()
	}
}
