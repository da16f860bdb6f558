package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/pkg/config"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.Any("/api/v1/models", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"models": []string{}})
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	w := serve(newRouter(SecurityHeadersMiddleware()), httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Contains(t, w.Header().Get("Cache-Control"), "no-store")
	assert.Equal(t, "0", w.Header().Get("Expires"))
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		origin  string
		allowed bool
	}{
		{"development console port", config.Config{Environment: "development"}, "http://localhost:5173", true},
		{"development api port", config.Config{Environment: "development"}, "http://127.0.0.1:8080", true},
		{"development unknown origin", config.Config{Environment: "development"}, "https://evil.example", false},
		{"production default origins", config.Config{Environment: "production"}, "http://localhost:3000", true},
		{"production dev-only port", config.Config{Environment: "production"}, "http://localhost:8080", false},
		{"configured origin", config.Config{Environment: "production", AllowedOrigins: "https://kpi.gov.local, https://console.gov.local"}, "https://console.gov.local", true},
		{"configured list replaces defaults", config.Config{Environment: "production", AllowedOrigins: "https://kpi.gov.local"}, "http://localhost:3000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
			req.Header.Set("Origin", tt.origin)
			w := serve(newRouter(CORSMiddleware(&cfg)), req)

			if tt.allowed {
				assert.Equal(t, tt.origin, w.Header().Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "Origin", w.Header().Get("Vary"))
			} else {
				assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
			}
			assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/models", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(newRouter(CORSMiddleware(&config.Config{Environment: "development"})), req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Body.String())
}

func TestInputValidationMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		userAgent   string
		status      int
		message     string
	}{
		{name: "json write", method: http.MethodPost, contentType: "application/json", body: `{}`, status: http.StatusOK},
		{name: "csv import", method: http.MethodPost, contentType: "text/csv; charset=utf-8", body: "objectName\n", status: http.StatusOK},
		{name: "empty action post", method: http.MethodPost, status: http.StatusOK},
		{name: "body without content type", method: http.MethodPut, body: `{}`, status: http.StatusBadRequest, message: "Content-Type header is required"},
		{name: "html body", method: http.MethodPatch, contentType: "text/html", body: "<p>", status: http.StatusUnsupportedMediaType, message: "Unsupported content type"},
		{name: "read without user agent", method: http.MethodGet, status: http.StatusOK},
		{name: "scanner user agent", method: http.MethodGet, userAgent: "sqlmap/1.4.9", status: http.StatusForbidden, message: "Request blocked"},
		{name: "script in user agent", method: http.MethodGet, userAgent: "Mozilla <script>alert(1)</script>", status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/models", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			w := serve(newRouter(InputValidationMiddleware(1024)), req)

			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}
}

func TestInputValidationMiddleware_BodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(InputValidationMiddleware(16))
	r.POST("/api/v1/models", func(c *gin.Context) {
		var body map[string]interface{}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/models", strings.NewReader(`{"name":"数据资源类评价模型"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, serve(r, req).Code)
}

func TestRateLimiter_Window(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	now := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"), "clients are limited independently")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_Middleware(t *testing.T) {
	r := newRouter(NewRateLimiter(5, time.Minute).Middleware())

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/models", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		last = serve(r, req)
		if i < 5 {
			require.Equal(t, http.StatusOK, last.Code, "request %d", i+1)
		}
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "60", last.Header().Get("Retry-After"))
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := logger.NewZapAdapter(zap.New(core))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, httptest.NewRequest(http.MethodGet, "/ok?category=c3", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	serve(r, httptest.NewRequest(http.MethodGet, "/fail", nil))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok?category=c3", entries[0].ContextMap()["path"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.EqualValues(t, http.StatusInternalServerError, entries[2].ContextMap()["status"])
}
