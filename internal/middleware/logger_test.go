package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"tidebase/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func loggedRequests(t *testing.T, register func(*gin.Engine), path string) *observer.ObservedLogs {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.Swap(zap.New(core))
	t.Cleanup(func() { logger.Swap(prev) })

	r := gin.New()
	r.Use(GinZapLogger())
	register(r)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return logs
}

func TestRequestLogLevels(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		status int
		level  zapcore.Level
	}{
		{"ok", "/v1/products", http.StatusOK, zapcore.InfoLevel},
		{"client error", "/v1/products", http.StatusBadRequest, zapcore.WarnLevel},
		{"server error", "/v1/products", http.StatusInternalServerError, zapcore.ErrorLevel},
		{"health check", "/health", http.StatusOK, zapcore.DebugLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := loggedRequests(t, func(r *gin.Engine) {
				r.GET(tc.path, func(c *gin.Context) { c.Status(tc.status) })
			}, tc.path)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tc.level {
				t.Errorf("level = %v, want %v", entries[0].Level, tc.level)
			}
		})
	}
}

func TestStreamDisconnectLogsResumePosition(t *testing.T) {
	logs := loggedRequests(t, func(r *gin.Engine) {
		r.GET("/v1/stream", func(c *gin.Context) { c.Status(http.StatusOK) })
	}, "/v1/stream?last_id=42")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "stream_closed" {
		t.Errorf("message = %q, want stream_closed", entries[0].Message)
	}
	fields := entries[0].ContextMap()
	if fields["last_id"] != "42" {
		t.Errorf("last_id = %v, want 42", fields["last_id"])
	}
}
