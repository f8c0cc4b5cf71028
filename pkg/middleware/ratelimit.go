package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// RateLimiter applies a token bucket per client key.
type RateLimiter struct {
	config RateLimitConfig
	logger *zap.Logger

	mu      sync.Mutex
	clients map[string]*clientLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop. Call
// Stop to end the loop.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	if cfg.BurstSize < 1 {
		cfg.BurstSize = 1
	}

	rl := &RateLimiter{
		config:  cfg,
		logger:  logger.Named("ratelimit"),
		clients: make(map[string]*clientLimiter),
		stop:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	cl, exists := r.clients[key]
	if !exists {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(float64(r.config.RequestsPerMinute)/60.0), r.config.BurstSize),
		}
		r.clients[key] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter
}

func (r *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.cleanup()
		}
	}
}

// cleanup removes limiters idle for more than two cleanup intervals
func (r *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-2 * r.config.CleanupInterval)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, cl := range r.clients {
		if cl.lastSeen.Before(cutoff) {
			delete(r.clients, key)
		}
	}
}

// Allow reports whether a request from key may proceed.
func (r *RateLimiter) Allow(key string) bool {
	if !r.config.Enabled {
		return true
	}
	return r.getLimiter(key).Allow()
}

// retryAfter returns how long a client should wait for the next token
func (r *RateLimiter) retryAfter() time.Duration {
	if r.config.RequestsPerMinute <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Minute) / float64(r.config.RequestsPerMinute))
}

// Stop ends the cleanup loop.
func (r *RateLimiter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// RateLimitMiddleware returns a Gin middleware that limits requests per
// client IP.
func RateLimitMiddleware(rl *RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		clientIP := c.ClientIP()
		if !rl.Allow(clientIP) {
			seconds := int(math.Ceil(rl.retryAfter().Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			logger.Debug("Rate limit exceeded", zap.String("client_ip", clientIP), zap.String("path", c.Request.URL.Path))

			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
