package service

import (
	"tidebase/internal/metrics"
	"tidebase/internal/model"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// Client is one feed subscriber. Tables and Operations restrict what it
// receives; empty maps mean everything.
type Client struct {
	Send       chan model.AuditRecord
	Tables     map[string]bool
	Operations map[string]bool
}

func (c *Client) Wants(rec model.AuditRecord) bool {
	if len(c.Tables) > 0 && !c.Tables[rec.TableName] {
		return false
	}
	if len(c.Operations) > 0 && !c.Operations[rec.Operation] {
		return false
	}
	return true
}

// Hub fans captured records out to subscribers. All subscriber bookkeeping
// happens on the Run goroutine, so the maps need no locking. A subscriber
// whose channel is full is dropped rather than allowed to stall the rest.
type Hub struct {
	clients    map[*Client]bool
	Broadcast  chan model.AuditRecord
	Register   chan *Client
	Unregister chan *Client
	observer   metrics.FeedObserver
}

func NewHub(observer metrics.FeedObserver) *Hub {
	if observer == nil {
		observer = metrics.NopFeedObserver{}
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		Broadcast:  make(chan model.AuditRecord, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		observer:   observer,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			h.observer.IncSubscribers()
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.observer.DecSubscribers()
			}
		case rec := <-h.Broadcast:
			for client := range h.clients {
				if !client.Wants(rec) {
					continue
				}
				select {
				case client.Send <- rec:
				default:
					logger.Warn("slow feed subscriber dropped",
						zap.Int64("audit_id", rec.AuditID))
					close(client.Send)
					delete(h.clients, client)
					h.observer.DecSubscribers()
				}
			}
		}
	}
}
