package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/pkg/config"
)

// SecurityHeadersMiddleware adds comprehensive security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent clickjacking attacks
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// JSON only; nothing is ever rendered from this API
		c.Header("Content-Security-Policy", "default-src 'none'; connect-src 'self'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")

		c.Header("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")

		c.Next()
	}
}

var devOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://localhost:8080",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:8080",
}

// CORSMiddleware handles Cross-Origin Resource Sharing. Development also
// accepts the usual local console ports.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool)
	for _, o := range cfg.GetAllowedOrigins() {
		allowed[o] = true
	}
	if cfg.IsDevelopment() {
		for _, o := range devOrigins {
			allowed[o] = true
		}
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400") // 24 hours

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

var allowedContentTypes = []string{
	"application/json",
	"multipart/form-data",
	"text/csv",
}

var suspiciousAgents = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"<script",
	"javascript:",
}

// InputValidationMiddleware caps the body size, checks the Content-Type of
// writes and blocks known scanner user agents
func InputValidationMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && maxBytes > 0 {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := c.GetHeader("Content-Type")
			if contentType == "" {
				if c.Request.ContentLength > 0 {
					c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Content-Type header is required"})
					return
				}
				break
			}
			valid := false
			for _, t := range allowedContentTypes {
				if strings.HasPrefix(contentType, t) {
					valid = true
					break
				}
			}
			if !valid {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"error":         "Unsupported content type",
					"allowed_types": allowedContentTypes,
				})
				return
			}
		}

		ua := strings.ToLower(c.GetHeader("User-Agent"))
		for _, pattern := range suspiciousAgents {
			if strings.Contains(ua, pattern) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Request blocked for security reasons"})
				return
			}
		}

		c.Next()
	}
}

// RateLimiter is a sliding-window request limiter keyed by client IP
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
}

// NewRateLimiter allows limit requests per client within window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string][]time.Time),
	}
}

// Allow records a request from client and reports whether it is within the limit
func (r *RateLimiter) Allow(client string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	recent := r.clients[client][:0]
	for _, ts := range r.clients[client] {
		if now.Sub(ts) <= r.window {
			recent = append(recent, ts)
		}
	}
	if len(recent) >= r.limit {
		r.clients[client] = recent
		return false
	}
	r.clients[client] = append(recent, now)
	return true
}

// Middleware rejects requests over the limit with 429
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(r.window.Seconds()))
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}

// RateLimitingMiddleware allows 100 requests per minute per IP
func RateLimitingMiddleware() gin.HandlerFunc {
	return NewRateLimiter(100, time.Minute).Middleware()
}

// LoggingMiddleware logs every request with its status and latency
func LoggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"method", c.Request.Method,
			"path", path,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			var err error
			if last := c.Errors.Last(); last != nil {
				err = last
			}
			log.Error("Request failed", err, fields...)
		case status >= 400:
			log.Warn("Request rejected", append(fields, "user_agent", c.Request.UserAgent())...)
		default:
			log.Info("Request handled", fields...)
		}
	}
}
