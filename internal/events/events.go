// Package events is the write-only progress stream for a session: a bounded
// channel of typed events that transports (SSE, polling) adapt over. The
// core never reads it back.
package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Type identifies a progress event.
type Type string

const (
	SessionStarted      Type = "session_started"
	SessionCompleted    Type = "session_completed"
	SessionFailed       Type = "session_failed"
	SessionAwaiting     Type = "session_awaiting_clarifications"
	DocumentStarted     Type = "document_started"
	DocumentCompleted   Type = "document_completed"
	DocumentSkipped     Type = "document_skipped"
	PassStarted         Type = "pass_started"
	PassCompleted       Type = "pass_completed"
	FacilityDetected    Type = "facility_detected"
	PeriodExtracted     Type = "period_extracted"
	ConflictDetected    Type = "conflict_detected"
	ClarificationNeeded Type = "clarification_needed"
)

// Event is one observation in a session's ordered progress stream.
type Event struct {
	Type      Type           `json:"type"`
	SessionID string         `json:"session_id"`
	At        time.Time      `json:"at"`
	Document  string         `json:"document,omitempty"`
	Pass      string         `json:"pass,omitempty"`
	Message   string         `json:"message,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Bus is a bounded per-session event channel. Publishing never blocks the
// pipeline: when no consumer keeps up, the oldest buffered event is dropped.
type Bus struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish appends an event to the stream.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for {
		select {
		case b.ch <- e:
			return
		default:
		}
		select {
		case dropped := <-b.ch:
			zap.L().Debug("events: dropped oldest event", zap.String("type", string(dropped.Type)))
		default:
		}
	}
}

// Events returns the read side of the stream.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close ends the stream. Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
