// Package obslog provides the server's structured logging: a slog.Handler
// wrapping a fixed-size ring buffer of recent entries for introspection
// (scriptrt-console's log pane, an admin debug endpoint), modeled on the
// teacher's TUILogHandler (internal/scripting/logging.go) but generalized
// to a real slog.Handler — WithAttrs/WithGroup actually thread attributes
// through instead of returning the receiver unchanged, since this handler
// backs every engine log call, not just an interactive TUI's own status
// line.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Entry is one ring-buffered log record.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// ring is the shared, mutex-guarded backing store a RingHandler and every
// handler derived from it via WithAttrs/WithGroup write into, so a record
// logged through a child logger (logger.With("gamespace_id", ...)) still
// shows up in the root handler's Recent.
type ring struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
}

func (r *ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

func (r *ring) recent(n int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > len(r.entries) {
		n = len(r.entries)
	}
	start := len(r.entries) - n
	out := make([]Entry, n)
	copy(out, r.entries[start:])
	return out
}

// RingHandler is a slog.Handler that both forwards to an underlying handler
// (typically a slog.JSONHandler over stderr) and retains the last Capacity
// entries in memory for introspection.
type RingHandler struct {
	next slog.Handler
	ring *ring

	groups []string
	attrs  []slog.Attr
}

// NewRingHandler wraps next, retaining up to capacity recent entries.
func NewRingHandler(next slog.Handler, capacity int) *RingHandler {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingHandler{next: next, ring: &ring{capacity: capacity}}
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RingHandler) Handle(ctx context.Context, record slog.Record) error {
	attrs := make(map[string]string, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.String()
	}
	record.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})

	h.ring.add(Entry{
		Time:    record.Time,
		Level:   record.Level,
		Message: record.Message,
		Attrs:   attrs,
	})

	return h.next.Handle(ctx, record)
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &RingHandler{
		next:   h.next.WithAttrs(attrs),
		ring:   h.ring,
		groups: h.groups,
		attrs:  merged,
	}
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &RingHandler{
		next:   h.next.WithGroup(name),
		ring:   h.ring,
		attrs:  h.attrs,
		groups: groups,
	}
}

// Recent returns a copy of the last n retained entries (0 means all).
func (h *RingHandler) Recent(n int) []Entry {
	return h.ring.recent(n)
}

// New builds the server's root *slog.Logger: JSON output to w wrapped in a
// RingHandler. Callers can attach per-call attributes such as gamespace_id
// via logger.With(...).
func New(w io.Writer, level slog.Level, ringCapacity int) (*slog.Logger, *RingHandler) {
	json := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	ring := NewRingHandler(json, ringCapacity)
	return slog.New(ring), ring
}
