package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tn-work/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

const idemUser = "2b0f7c8e-7c43-4a53-9a43-7f3d7e1d9a11"

func newIdempotentRouter(rdb *redis.Client, handled *int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/attendances/clock",
		func(c *gin.Context) { c.Set("user_id_validated", idemUser) },
		middleware.Idempotency(rdb, zap.NewNop()),
		func(c *gin.Context) {
			*handled++
			c.JSON(http.StatusOK, gin.H{
				"cache_key": c.GetString("idempotency_cache_key"),
				"lock_key":  c.GetString("idempotency_lock_key"),
			})
		},
	)
	return r
}

func postClock(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/attendances/clock", nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency(t *testing.T) {
	cacheKey := middleware.IdempotencyCacheKey("/attendances/clock", idemUser, "k1")
	lockKey := cacheKey + ":lock"

	t.Run("no key passes through", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		handled := 0

		w := postClock(newIdempotentRouter(rdb, &handled), "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, handled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("first request takes the lock", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet(cacheKey).RedisNil()
		mock.ExpectSetNX(lockKey, "locked", 30*time.Second).SetVal(true)
		handled := 0

		w := postClock(newIdempotentRouter(rdb, &handled), "k1")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, handled)
		assert.Contains(t, w.Body.String(), lockKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cached response is replayed", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet(cacheKey).SetVal(`{"action":"clock_out","already_out":true}`)
		handled := 0

		w := postClock(newIdempotentRouter(rdb, &handled), "k1")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, handled)
		assert.JSONEq(t, `{"ok":true,"data":{"action":"clock_out","already_out":true}}`, w.Body.String())
	})

	t.Run("duplicate in flight", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet(cacheKey).RedisNil()
		mock.ExpectSetNX(lockKey, "locked", 30*time.Second).SetVal(false)
		handled := 0

		w := postClock(newIdempotentRouter(rdb, &handled), "k1")

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), `"code":"PROCESSING"`)
		assert.Equal(t, 0, handled)
	})

	t.Run("redis down serves request", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectGet(cacheKey).SetErr(errors.New("conn refused"))
		mock.ExpectSetNX(lockKey, "locked", 30*time.Second).SetErr(errors.New("conn refused"))
		handled := 0

		w := postClock(newIdempotentRouter(rdb, &handled), "k1")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, handled)
	})
}
