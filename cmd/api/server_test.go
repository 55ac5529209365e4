package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/sessionauth/internal/config"
	"github.com/yourusername/sessionauth/internal/observability"
	"github.com/yourusername/sessionauth/internal/session"
	"github.com/yourusername/sessionauth/internal/users"
)

func testConfig() *config.Config {
	return &config.Config{
		GinMode:               gin.TestMode,
		CORSAllowedOrigins:    "http://localhost:3000",
		UserStore:             config.StoreMemory,
		SessionStore:          config.StoreMemory,
		SessionSecret:         "0123456789abcdef0123456789abcdef",
		SessionCookieName:     "chocolatechip",
		SessionTTLMinutes:     10,
		SessionCookieHTTPOnly: true,
		SessionSameSite:       "lax",
		SweepIntervalMinutes:  10,
		BcryptCost:            bcrypt.MinCost,
		MetricsEnabled:        true,
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewMemoryStore(10*time.Minute, 0)
	t.Cleanup(func() { _ = store.Close() })

	d := &deps{
		users:    users.NewMemoryRepository(),
		sessions: store,
		metrics:  observability.NewMetrics(),
	}
	router, err := newRouter(testConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)), d)
	require.NoError(t, err)
	return router
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDefaultRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"api":"up"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouterWiresAuthFlow(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"username":"sue","password":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(r, req)
	require.Equal(t, http.StatusCreated, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"sue","password":"1234"}`))
	req.Header.Set("Content-Type", "application/json")
	w = serve(r, req)
	require.Equal(t, http.StatusOK, w.Code)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "chocolatechip" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, 600, cookie.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusOK, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	w = serve(r, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"code":"UNAUTHENTICATED","message":"You shall not pass!"}`, w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := serve(r, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-request-id")
}

func TestBuildDepsWithMemoryStores(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	d, err := buildDeps(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	defer d.Close()

	assert.IsType(t, &users.MemoryRepository{}, d.users)
	assert.IsType(t, &session.MemoryStore{}, d.sessions)
	assert.Nil(t, d.sweep)
	assert.NotNil(t, d.metrics)
	assert.Contains(t, logs.String(), "in-memory user store")
}

func TestSessionSecretFallback(t *testing.T) {
	cfg := testConfig()
	cfg.SessionSecret = ""

	key, err := sessionSecret(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, parseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, parseSameSite("none"))
	assert.Equal(t, http.SameSiteLaxMode, parseSameSite("lax"))
	assert.Equal(t, http.SameSiteLaxMode, parseSameSite(""))
}
