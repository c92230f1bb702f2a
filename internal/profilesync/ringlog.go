package profilesync

import (
	"sync"
	"time"

	"github.com/scholar-sites/sitesync/internal/model"
)

// Status is the outcome of one tenant's sync attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Entry is one record in the operational sync log.
type Entry struct {
	TenantID     string              `json:"tenant_id"`
	CatalogID    string              `json:"catalog_id,omitempty"`
	Frequency    model.SyncFrequency `json:"frequency,omitempty"`
	LastSyncedAt *time.Time          `json:"last_synced_at,omitempty"`
	Status       Status              `json:"status"`
	Message      string              `json:"message,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

// defaultLogCapacity bounds the in-memory sync log.
const defaultLogCapacity = 100

// RingLog is a bounded, newest-first log of sync outcomes. It is held
// only in memory: history is an operational aid, not durable state, and
// is deliberately lost on restart.
type RingLog struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// NewRingLog creates a RingLog holding at most capacity entries.
// A non-positive capacity gets the default of 100.
func NewRingLog(capacity int) *RingLog {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &RingLog{capacity: capacity}
}

// Append records an entry at the front, evicting the oldest entry once
// the log is full.
func (l *RingLog) Append(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append([]Entry{e}, l.entries...)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[:l.capacity]
	}
}

// Entries returns a copy of the log, newest first.
func (l *RingLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of retained entries.
func (l *RingLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
