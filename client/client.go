package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tidebase/internal/model"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// Handler receives each captured change exactly once, in audit_id order.
type Handler func(model.AuditRecord)

// FeedClient subscribes to the dashboard change feed over SSE. It resumes
// from the last delivered audit_id across reconnects, and when the server
// signals that the requested history was evicted it resynchronizes from the
// audit read API before continuing to stream.
type FeedClient struct {
	addr       string
	tables     []string
	operations []string
	handler    Handler
	httpClient *http.Client

	mu     sync.RWMutex
	lastID int64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewFeedClient(addr string, tables, operations []string, handler Handler) *FeedClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &FeedClient{
		addr:       strings.TrimRight(addr, "/"),
		tables:     tables,
		operations: operations,
		handler:    handler,
		httpClient: &http.Client{Timeout: 0},
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start seeds the resume position from the audit API, then begins streaming
// in the background. Only records captured after Start are delivered.
func (c *FeedClient) Start() error {
	if err := c.resync(); err != nil {
		return err
	}
	go c.runWatchLoop()
	return nil
}

func (c *FeedClient) Stop() {
	c.cancel()
}

// LastID returns the audit_id of the newest record delivered so far.
func (c *FeedClient) LastID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastID
}

// resync fetches the newest audit record and moves the resume position past
// it. Used at startup and after a reset event, when the stream buffer no
// longer covers the gap.
func (c *FeedClient) resync() error {
	u := fmt.Sprintf("%s/v1/audits?limit=1", c.addr)
	req, _ := http.NewRequestWithContext(c.ctx, "GET", u, nil)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("failed to fetch audit head", zap.Error(err))
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("audit head fetch: unexpected status %d", resp.StatusCode)
	}

	var records []model.AuditRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		logger.Error("failed to decode audit head response", zap.Error(err))
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(records) > 0 && records[0].AuditID > c.lastID {
		c.lastID = records[0].AuditID
	}
	return nil
}

func (c *FeedClient) streamURL() string {
	c.mu.RLock()
	lastID := c.lastID
	c.mu.RUnlock()

	q := url.Values{}
	q.Set("last_id", fmt.Sprintf("%d", lastID))
	if len(c.tables) > 0 {
		q.Set("tables", strings.Join(c.tables, ","))
	}
	if len(c.operations) > 0 {
		q.Set("operations", strings.Join(c.operations, ","))
	}
	return fmt.Sprintf("%s/v1/stream?%s", c.addr, q.Encode())
}

func (c *FeedClient) runWatchLoop() {
	backoff := time.Second
	maxBackoff := 30 * time.Second
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			// Use sub-context for request cancellation
			reqCtx, reqCancel := context.WithCancel(c.ctx)
			req, _ := http.NewRequestWithContext(reqCtx, "GET", c.streamURL(), nil)
			resp, err := c.httpClient.Do(req)
			if err != nil {
				reqCancel()
				jitter := time.Duration(rand.Int63n(int64(backoff / 2)))
				logger.Warn("feed stream disconnected", zap.Error(err))
				time.Sleep(backoff + jitter)
				backoff *= 2
				if backoff > maxBackoff {
					backoff = maxBackoff
				}
				continue
			}

			// Watchdog for heartbeats
			var lastActivity int64 = time.Now().Unix()
			go func() {
				ticker := time.NewTicker(5 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-reqCtx.Done():
						return
					case <-ticker.C:
						if time.Now().Unix()-atomic.LoadInt64(&lastActivity) > 45 {
							logger.Warn("feed heartbeat timeout, reconnecting")
							reqCancel()
							return
						}
					}
				}
			}()

			backoff = time.Second
			scanner := bufio.NewScanner(resp.Body)

			var eventType string
			var dataBuffer bytes.Buffer

			for scanner.Scan() {
				atomic.StoreInt64(&lastActivity, time.Now().Unix())
				line := scanner.Text()
				if line == "" {
					// Process the accumulated message
					if eventType == "reset" {
						logger.Warn("feed history evicted, resynchronizing from audit api")
						if err := c.resync(); err != nil {
							logger.Error("failed to resync after reset", zap.Error(err))
						}
						// Close current stream
						reqCancel()
						break
					} else if eventType == "ping" {
						eventType = ""
						dataBuffer.Reset()
						continue
					} else if dataBuffer.Len() > 0 {
						var rec model.AuditRecord
						if err := json.Unmarshal(dataBuffer.Bytes(), &rec); err == nil {
							c.handleRecord(rec)
						} else {
							logger.Error("failed to unmarshal change record", zap.Error(err))
						}
					}

					// Reset buffers for next message
					eventType = ""
					dataBuffer.Reset()
					continue
				}

				if strings.HasPrefix(line, "event:") {
					eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
				} else if strings.HasPrefix(line, "data:") {
					// SSE allows multiple data lines, joined by newline
					if dataBuffer.Len() > 0 {
						dataBuffer.WriteString("\n")
					}
					dataBuffer.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
				}
			}
			reqCancel()
			resp.Body.Close()
		}
	}
}

func (c *FeedClient) handleRecord(rec model.AuditRecord) {
	c.mu.Lock()
	if rec.AuditID <= c.lastID {
		logger.Warn("stale change record received",
			zap.Int64("audit_id", rec.AuditID),
			zap.Int64("last_id", c.lastID))
		c.mu.Unlock()
		return
	}
	c.lastID = rec.AuditID
	c.mu.Unlock()

	if c.handler != nil {
		c.handler(rec)
	}
}
