// Package buffer keeps a bounded history of recent audit records so a feed
// subscriber that reconnects can be compensated without replaying from the
// database.
package buffer

import (
	"sync"

	"tidebase/internal/model"
)

type FeedBuffer struct {
	records []model.AuditRecord
	size    int

	// floor is the highest id known to predate the buffered history: the
	// last evicted id, or the log tail at startup. -1 until either is known.
	// Ids are compared against it rather than inferred from arithmetic,
	// since serial sequences skip values on rolled-back transactions.
	floor int64

	mu sync.RWMutex
}

func NewFeedBuffer(size int) *FeedBuffer {
	if size <= 0 {
		size = 1000
	}
	return &FeedBuffer{
		records: make([]model.AuditRecord, 0, size),
		size:    size,
		floor:   -1,
	}
}

// SetFloor marks everything up to and including id as predating the buffered
// history. Called once at startup with the current log tail.
func (b *FeedBuffer) SetFloor(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id > b.floor {
		b.floor = id
	}
}

func (b *FeedBuffer) Add(rec model.AuditRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) >= b.size {
		if evicted := b.records[0].AuditID; evicted > b.floor {
			b.floor = evicted
		}
		b.records = b.records[1:]
	}
	b.records = append(b.records, rec)
}

// Since returns buffered records with an id greater than lastID. The second
// return is false when history the caller missed is no longer in memory,
// meaning the gap cannot be filled from the buffer.
func (b *FeedBuffer) Since(lastID int64) ([]model.AuditRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.floor >= 0 {
		if lastID < b.floor {
			return nil, false
		}
	} else if len(b.records) == 0 {
		// Nothing buffered and no known history. A brand new subscriber
		// missed nothing; one resuming from an old position cannot be
		// verified from memory.
		return nil, lastID == 0
	} else if lastID < b.records[0].AuditID-1 {
		return nil, false
	}

	var out []model.AuditRecord
	for _, rec := range b.records {
		if rec.AuditID > lastID {
			out = append(out, rec)
		}
	}
	return out, true
}

// Latest returns the highest buffered id, or zero when empty.
func (b *FeedBuffer) Latest() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.records) == 0 {
		return 0
	}
	return b.records[len(b.records)-1].AuditID
}
