package api

import (
	"io"
	"strconv"
	"strings"
	"time"

	"tidebase/internal/buffer"
	"tidebase/internal/model"
	"tidebase/internal/service"
	"tidebase/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StreamHandler struct {
	hub *service.Hub
	buf *buffer.FeedBuffer
}

func NewStreamHandler(hub *service.Hub, buf *buffer.FeedBuffer) *StreamHandler {
	return &StreamHandler{hub: hub, buf: buf}
}

func csvSet(raw string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}

// WatchChanges streams captured records as server-sent events. A reconnecting
// client passes last_id; history inside the buffer window is replayed, a gap
// beyond it gets a reset event telling the client to refetch from the API.
func (h *StreamHandler) WatchChanges(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	tables := csvSet(c.Query("tables"))
	operations := make(map[string]bool)
	for op := range csvSet(c.Query("operations")) {
		operations[strings.ToUpper(op)] = true
	}

	var lastID int64
	if raw := c.Query("last_id"); raw != "" {
		lastID, _ = strconv.ParseInt(raw, 10, 64)
	}

	logger.Info("feed client connected",
		zap.String("ip", c.ClientIP()),
		zap.Int64("last_id", lastID))

	client := &service.Client{
		Send:       make(chan model.AuditRecord, 128),
		Tables:     tables,
		Operations: operations,
	}
	h.hub.Register <- client
	defer func() {
		h.hub.Unregister <- client
	}()

	maxSent := lastID
	history, ok := h.buf.Since(lastID)
	if !ok {
		c.SSEvent("reset", "history_evicted")
	}
	for _, rec := range history {
		if !client.Wants(rec) {
			continue
		}
		c.SSEvent("change", rec)
		maxSent = rec.AuditID
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case rec, open := <-client.Send:
			if !open {
				return false
			}
			// history replay may already have covered this record
			if rec.AuditID <= maxSent {
				return true
			}
			c.SSEvent("change", rec)
			maxSent = rec.AuditID
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", "pong")
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
