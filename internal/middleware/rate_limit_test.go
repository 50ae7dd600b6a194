package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rl *UserRateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(rl))
	r.GET("/users/:user_id/notifications", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/notifications", func(c *gin.Context) {
		var body struct {
			UserID string `json:"userId"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.String(http.StatusOK, body.UserID)
	})
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_PerUserFromPath(t *testing.T) {
	r := newLimitedRouter(NewUserRateLimiter(0.001, 2))

	for i := 0; i < 2; i++ {
		w := do(r, httptest.NewRequest(http.MethodGet, "/users/u1/notifications", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := do(r, httptest.NewRequest(http.MethodGet, "/users/u1/notifications", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// other users have their own bucket
	w = do(r, httptest.NewRequest(http.MethodGet, "/users/u2/notifications", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_BodyStaysReadable(t *testing.T) {
	r := newLimitedRouter(NewUserRateLimiter(0.001, 1))

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(`{"userId":"u9"}`))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	w := do(r, newReq())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u9", w.Body.String())

	w = do(r, newReq())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_HeaderAndAnonymous(t *testing.T) {
	r := newLimitedRouter(NewUserRateLimiter(0.001, 1))

	post := func(header string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/notifications", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		if header != "" {
			req.Header.Set(UserIDHeader, header)
		}
		return req
	}

	assert.Equal(t, http.StatusOK, do(r, post("u5")).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, post("u5")).Code)

	// anonymous requests are not limited here
	assert.Equal(t, http.StatusOK, do(r, post("")).Code)
	assert.Equal(t, http.StatusOK, do(r, post("")).Code)
}

func TestGetLimiter_ReusesLimiter(t *testing.T) {
	limiter := NewUserRateLimiter(1, 1)
	assert.Same(t, limiter.GetLimiter("a"), limiter.GetLimiter("a"))
	assert.NotSame(t, limiter.GetLimiter("a"), limiter.GetLimiter("b"))
}
