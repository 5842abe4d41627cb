package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/yeisme/photovault/pkg/configs"
	"github.com/yeisme/photovault/pkg/middleware"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func authEngine(conf configs.AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(middleware.AuthMiddleware(conf))
	r.GET("/api/v1/photos", func(c *gin.Context) {
		id, ok := middleware.GetUserID(c)
		c.JSON(http.StatusOK, gin.H{"user": id, "ok": ok})
	})
	r.GET("/api/v1/health/db", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func TestAuthMiddleware(t *testing.T) {
	conf := configs.Defaults().Auth
	r := authEngine(conf)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("X-User-ID", "42")
	w := serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":42,"ok":true}`, w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("X-User-ID", "abc")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	// 查询参数默认不生效
	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos?user_id=5", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/health/db", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	conf.DevAllowQuery = true
	w = serve(authEngine(conf), httptest.NewRequest(http.MethodGet, "/api/v1/photos?user_id=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":5,"ok":true}`, w.Body.String())
}

func TestETagMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middleware.ETagMiddleware(0))
	r.GET("/photos", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"photos": []int{1, 2}}) })
	r.GET("/missing", func(c *gin.Context) { c.JSON(http.StatusNotFound, gin.H{"error": "photo not found"}) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/photos", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"photos":[1,2]}`, w.Body.String())

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/photos", nil)
	req.Header.Set("If-None-Match", etag)
	w = serve(r, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/photos", nil)
	req.Header.Set("If-None-Match", `W/"deadbeef"`)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("ETag"))
	assert.JSONEq(t, `{"error":"photo not found"}`, w.Body.String())
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, middleware.GetRequestID(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(middleware.HeaderRequestID)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.HeaderRequestID, "upstream-1")
	assert.Equal(t, "upstream-1", serve(r, req).Body.String())
}

func TestRequireMinRole(t *testing.T) {
	conf := configs.Defaults().Auth

	r := gin.New()
	r.Use(middleware.AuthMiddleware(conf), middleware.RoleMiddleware(conf))
	r.POST("/run", middleware.RequireMinRole(middleware.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	run := func(user, role string) int {
		req := httptest.NewRequest(http.MethodPost, "/run", nil)
		if user != "" {
			req.Header.Set(conf.UserHeader, user)
		}

		if role != "" {
			req.Header.Set(conf.RoleHeader, role)
		}

		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusUnauthorized, run("", "admin"))
	assert.Equal(t, http.StatusForbidden, run("7", ""))
	assert.Equal(t, http.StatusForbidden, run("7", "operator"))
	assert.Equal(t, http.StatusAccepted, run("7", "Admin"))
}

func TestRoleAdminUsers(t *testing.T) {
	conf := configs.Defaults().Auth
	conf.AdminUsers = []int64{42}

	r := gin.New()
	r.Use(middleware.AuthMiddleware(conf), middleware.RoleMiddleware(conf))
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, middleware.GetRole(c).String()) })

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(conf.UserHeader, "42")
	assert.Equal(t, "admin", serve(r, req).Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(conf.UserHeader, "43")
	assert.Equal(t, "user", serve(r, req).Body.String())
}

func TestRateLimitPerUser(t *testing.T) {
	conf := configs.Defaults()
	conf.RateLimit.Enabled = true
	conf.RateLimit.RPS = 0.001
	conf.RateLimit.Burst = 1

	r := gin.New()
	r.Use(middleware.AuthMiddleware(conf.Auth), middleware.RateLimitMiddleware(conf.RateLimit))
	r.GET("/api/v1/photos", func(c *gin.Context) { c.Status(http.StatusOK) })

	as := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
		req.Header.Set("X-User-ID", user)

		return serve(r, req).Code
	}

	assert.Equal(t, http.StatusOK, as("1"))
	assert.Equal(t, http.StatusTooManyRequests, as("1"))
	assert.Equal(t, http.StatusOK, as("2"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("X-User-ID", "2")
	w := serve(r, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1000", w.Header().Get("Retry-After"))
}

func TestRateLimitSkipsHealth(t *testing.T) {
	conf := configs.Defaults().RateLimit
	conf.Enabled = true
	conf.Key = "global"
	conf.RPS = 0.001
	conf.Burst = 1

	r := gin.New()
	r.Use(middleware.RateLimitMiddleware(conf))
	r.GET("/health/ready", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/v1/photos", func(c *gin.Context) { c.Status(http.StatusOK) })

	for range 3 {
		assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	}

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)).Code)
}

func breakerEngine(conf configs.CircuitBreakerConfig, status *int) *gin.Engine {
	r := gin.New()
	r.Use(middleware.CircuitBreakerMiddleware(conf))
	r.GET("/api/v1/photos", func(c *gin.Context) { c.Status(*status) })
	r.GET("/api/v1/health/db", func(c *gin.Context) { c.Status(*status) })

	return r
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	conf := configs.Defaults().CircuitBreaker
	conf.Enabled = true
	conf.MinRequests = 2
	conf.FailureRate = 0.5
	conf.OpenTimeout = time.Minute

	status := http.StatusInternalServerError
	r := breakerEngine(conf, &status)

	get := func(path string) *httptest.ResponseRecorder {
		return serve(r, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, http.StatusInternalServerError, get("/api/v1/photos").Code)
	assert.Equal(t, http.StatusInternalServerError, get("/api/v1/photos").Code)

	status = http.StatusOK

	w := get("/api/v1/photos")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// 健康检查不受熔断影响
	assert.Equal(t, http.StatusOK, get("/api/v1/health/db").Code)
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	conf := configs.Defaults().CircuitBreaker
	conf.Enabled = true
	conf.MinRequests = 1

	status := http.StatusBadRequest
	r := breakerEngine(conf, &status)

	for range 5 {
		w := serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
		require.Equal(t, http.StatusBadRequest, w.Code)
	}
}

func TestCORSOrigins(t *testing.T) {
	conf := configs.Defaults()
	conf.Server.CORSOrigins = []string{"https://photos.example.com"}

	r := gin.New()
	r.Use(middleware.CORSMiddleware(conf.Server, conf.Auth))
	r.GET("/api/v1/photos", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("Origin", "https://photos.example.com")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://photos.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "Etag")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.Equal(t, http.StatusForbidden, serve(r, req).Code)
}

func TestTracingEchoesUpstreamTraceID(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	r := gin.New()
	r.Use(middleware.TracingMiddleware())
	r.GET("/api/v1/photos", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")

	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", w.Header().Get(middleware.HeaderTraceID))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	assert.Empty(t, w.Header().Get(middleware.HeaderTraceID))
}
