package http_api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/core-coin/praemium/internal/models"
)

const ownerKey = "owner"

// requireSession resolves the bearer token to the account it was issued for.
func (s *HTTPServer) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.abort(c, models.NewError(models.KindUnauthorized, "Missing session token", nil))
			return
		}
		owner, err := s.sessions.ParseToken(token)
		if err != nil {
			s.abort(c, err)
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func (s *HTTPServer) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}

// rateLimiter keeps a token bucket per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	perMin   float64
	burst    int
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const visitorTTL = 10 * time.Minute

func newRateLimiter(requestsPerMinute float64, burst int) *rateLimiter {
	return &rateLimiter{
		perMin:   requestsPerMinute,
		burst:    burst,
		visitors: make(map[string]*visitor),
	}
}

func (r *rateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	v, ok := r.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(r.perMin/60.0), r.burst)}
		r.visitors[id] = v
	}
	v.lastSeen = now
	// Evict idle clients while the lock is held
	for key, other := range r.visitors {
		if now.Sub(other.lastSeen) > visitorTTL {
			delete(r.visitors, key)
		}
	}
	return v.limiter.AllowN(now, 1)
}

func (r *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Success: false,
				Error:   "Too many requests",
			})
			return
		}
		c.Next()
	}
}
