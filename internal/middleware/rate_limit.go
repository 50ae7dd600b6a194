package middleware

import (
	"bytes"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"golang.org/x/time/rate"

	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
)

// UserIDHeader carries the caller's user id when it is not in the path
const UserIDHeader = "X-User-ID"

// UserRateLimiter manages rate limiters per user
type UserRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewUserRateLimiter creates a new user rate limiter
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	return &UserRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(rps),
		burst:    burst,
	}
}

// GetLimiter returns the rate limiter for a specific user
func (rl *UserRateLimiter) GetLimiter(userID string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[userID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		// Double-check after acquiring write lock
		limiter, exists = rl.limiters[userID]
		if !exists {
			limiter = rate.NewLimiter(rl.rate, rl.burst)
			rl.limiters[userID] = limiter
		}
		rl.mu.Unlock()
	}

	return limiter
}

// userID finds the caller in the path, the header, the query or the JSON body
func userID(c *gin.Context) string {
	if id := c.Param("user_id"); id != "" {
		return id
	}
	if id := c.GetHeader(UserIDHeader); id != "" {
		return id
	}
	if id := c.Query("user_id"); id != "" {
		return id
	}
	if c.Request.Method == http.MethodGet || c.Request.ContentLength == 0 {
		return ""
	}

	var req struct {
		UserID string `json:"userId"`
	}
	err := c.ShouldBindBodyWith(&req, binding.JSON)
	// hand the buffered body back to the handler's own binding
	if b, ok := c.Get(gin.BodyBytesKey); ok {
		c.Request.Body = io.NopCloser(bytes.NewReader(b.([]byte)))
	}
	if err != nil {
		return ""
	}
	return req.UserID
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *UserRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := userID(c)
		// anonymous requests fail validation later
		if id == "" {
			c.Next()
			return
		}

		if !rl.GetLimiter(id).Allow() {
			metrics.RateLimitExceeded.WithLabelValues(c.FullPath()).Inc()
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
