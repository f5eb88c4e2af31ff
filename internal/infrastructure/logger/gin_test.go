package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGinEngine(log *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(GinMiddleware(log))
	return engine
}

func TestGinMiddlewareLogsRequests(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine := newGinEngine(zap.New(core))

	engine.GET("/sessions", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sessions?limit=5", nil)
	engine.ServeHTTP(w, req)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/sessions", fields["path"])
	assert.Equal(t, "limit=5", fields["query"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
}

func TestGinMiddlewareLogLevelByStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		level  zapcore.Level
	}{
		{"2xx logs info", http.StatusOK, zapcore.InfoLevel},
		{"4xx logs warn", http.StatusNotFound, zapcore.WarnLevel},
		{"5xx logs error", http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			engine := newGinEngine(zap.New(core))
			engine.GET("/status", func(c *gin.Context) {
				c.Status(tt.status)
			})

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))

			entries := logs.All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
		})
	}
}

func TestGinMiddlewarePropagatesLogger(t *testing.T) {
	core, _ := observer.New(zapcore.DebugLevel)
	engine := newGinEngine(zap.New(core))

	var fromGin, fromCtx *zap.Logger
	engine.GET("/probe", func(c *gin.Context) {
		fromGin = GetGinLogger(c)
		fromCtx = FromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	require.NotNil(t, fromGin)
	assert.Equal(t, fromGin, fromCtx)
}

func TestGetGinLoggerWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	log := GetGinLogger(c)
	require.NotNil(t, log)
	log.Info("discarded")
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	engine := gin.New()
	engine.Use(Recovery(zap.New(core)))
	engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Panic recovered", entries[0].Message)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}
