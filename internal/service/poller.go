package service

import (
	"context"
	"sync/atomic"
	"time"

	"tidebase/internal/buffer"
	"tidebase/internal/metrics"
	"tidebase/internal/repository"
	"tidebase/pkg/logger"

	"go.uber.org/zap"
)

// FeedPoller tails the audit log and pushes new records through the hub. It
// tracks the last delivered id itself, so a missed tick only delays delivery,
// never loses records.
type FeedPoller struct {
	audit    repository.AuditInterface
	hub      *Hub
	buf      *buffer.FeedBuffer
	observer metrics.FeedObserver
	interval time.Duration
	batch    int

	lastID atomic.Int64
}

func NewFeedPoller(audit repository.AuditInterface, hub *Hub, buf *buffer.FeedBuffer, observer metrics.FeedObserver, interval time.Duration, batch int) *FeedPoller {
	if observer == nil {
		observer = metrics.NopFeedObserver{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 200
	}
	return &FeedPoller{
		audit:    audit,
		hub:      hub,
		buf:      buf,
		observer: observer,
		interval: interval,
		batch:    batch,
	}
}

func (p *FeedPoller) Run(ctx context.Context) {
	// Start from the current tail so a fresh process does not replay the
	// whole log at its subscribers. The tail also seeds the buffer's floor:
	// a client resuming from before this process started gets a reset
	// instead of a silently incomplete replay.
	if recs, err := p.audit.Query(ctx, repository.AuditFilter{Limit: 1}); err == nil && len(recs) > 0 {
		p.lastID.Store(recs[0].AuditID)
		p.buf.SetFloor(recs[0].AuditID)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	logger.Info("feed poller started",
		zap.Duration("interval", p.interval),
		zap.Int64("from_id", p.lastID.Load()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("feed poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *FeedPoller) poll(ctx context.Context) {
	recs, err := p.audit.FetchSince(ctx, p.lastID.Load(), p.batch)
	if err != nil {
		logger.Error("feed poll failed", zap.Int64("last_id", p.lastID.Load()), zap.Error(err))
		return
	}
	if len(recs) == 0 {
		return
	}
	for _, rec := range recs {
		p.buf.Add(rec)
		p.hub.Broadcast <- rec
		p.lastID.Store(rec.AuditID)
	}
	p.observer.RecordRecords(len(recs))
	p.observer.ObservePollLag(time.Since(recs[len(recs)-1].CreatedAt))
	logger.Debug("feed records delivered",
		zap.Int("count", len(recs)),
		zap.Int64("last_id", p.lastID.Load()))
}

// LastID reports the newest id the poller has delivered.
func (p *FeedPoller) LastID() int64 { return p.lastID.Load() }
