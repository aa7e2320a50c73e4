package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// RateLimit creates a per-IP rate limiting middleware. Limiters of clients
// idle for more than ten minutes are dropped.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*client)
		swept   = time.Now()
	)
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerSecond
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(swept) > time.Minute {
			for k, cl := range clients {
				if now.Sub(cl.lastSeen) > 10*time.Minute {
					delete(clients, k)
				}
			}
			swept = now
		}
		cl, ok := clients[ip]
		if !ok {
			cl = &client{limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)}
			clients[ip] = cl
		}
		cl.lastSeen = now
		limiter := cl.limiter
		mu.Unlock()

		if !limiter.Allow() {
			writeJSON(c, http.StatusTooManyRequests, errorResp{Error: "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
