package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/youthhub-api/pkg/config"
	"github.com/noah-isme/youthhub-api/pkg/middleware/requestid"
)

func TestNewHonoursLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "warn", Format: "console"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = New(&config.Config{Env: config.EnvDevelopment, Log: config.LogConfig{Level: "loud"}})
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}

func TestGinMiddlewareLogsRouteAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/items/:id", func(c *gin.Context) {
		WithRequest(c.Request.Context(), zap.New(core)).Info("handled")
		c.Status(http.StatusOK)
	})

	req, _ := http.NewRequest(http.MethodGet, "/items/4", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	access := entries[1]
	assert.Equal(t, "http_request", access.Message)
	assert.Equal(t, "/items/:id", access.ContextMap()["path"])
	assert.Equal(t, int64(http.StatusOK), access.ContextMap()["status"])
	assert.Equal(t, "req-1", access.ContextMap()["request_id"])
}

func TestWithRequestWithoutID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithRequest(context.Background(), zap.New(core)).Info("plain")
	require.Equal(t, 1, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "request_id")
}
