// Package logbuf keeps a bounded in-memory window of the desk's recent
// log records so operators can inspect a running desk over /api/logs
// without shipping logs anywhere. Every subsystem logger (agent, tools,
// scheduler, connectors, api) is tagged with a component attribute at
// startup; the buffer promotes that tag so entries can be filtered per
// subsystem.
package logbuf

import (
	"log/slog"
	"sync"
	"time"
)

// The attribute keys the desk binds to its subsystem loggers. Whichever
// appears first on a record becomes the entry's Component.
var componentKeys = []string{"component", "connector", "job"}

// Entry is one captured log record.
type Entry struct {
	Time      time.Time      `json:"time"`
	Level     slog.Level     `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Attrs     map[string]any `json:"attrs,omitempty"`
}

// Buffer retains the most recent entries, up to a fixed capacity. Safe for
// concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// New creates a buffer holding up to capacity entries. Older entries are
// evicted as new ones arrive.
func New(capacity int) *Buffer {
	return &Buffer{entries: make([]Entry, capacity)}
}

// Write records one entry, evicting the oldest when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.next] = e
	b.next++
	if b.next == len(b.entries) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()
}

// Query returns entries oldest-first, filtered by time, level, and
// component. A zero since, empty component, or non-positive limit leaves
// that filter off; with a limit, the newest matching entries win.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, component string, limit int) []Entry {
	var out []Entry
	for _, e := range b.snapshot() {
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if e.Level < minLevel {
			continue
		}
		if component != "" && e.Component != component {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// snapshot copies the live entries oldest-first.
func (b *Buffer) snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.full {
		return append([]Entry(nil), b.entries[:b.next]...)
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}
