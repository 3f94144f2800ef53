// Package telemetry is the structured trace-event sink the Negotiator and
// Data-Stream Parser write decision/warning events to, and Session.TraceEvents
// reads back, per spec.md §4.7 trace_events and scenario S3's "decision"
// event. It wraps a *zap.Logger the same way the teacher wraps its debugf
// writer: one per-session sink, no process-wide global.
package telemetry

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is one structured occurrence worth surfacing to a caller tracing a
// session: a negotiation decision, a parse warning, an alarm, and so on.
// Kind is a short machine-stable tag ("decision", "parse_error", "alarm");
// Fields carries the event's payload for both the zap sink and trace_events.
type Event struct {
	Kind   string
	Fields map[string]any
}

// Sink records Events to both a zap.Logger (for operational visibility) and
// an in-memory list the Session exposes via TraceEvents, when tracing is
// enabled. The list is not bounded; every recorded event is kept. Safe for concurrent use, though within one session only the
// owning goroutine writes to it.
type Sink struct {
	log    *zap.Logger
	traced bool

	mu     sync.Mutex
	events []Event
}

// New builds a Sink logging through log. If traced is false, Record still
// logs through zap but Events/TraceEvents always returns nil — matching
// spec.md's "structured negotiation/parse events when tracing is enabled".
func New(log *zap.Logger, traced bool) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{log: log, traced: traced}
}

// Record appends ev to the trace (if enabled) and logs it at an appropriate
// level: "parse_error" and "negotiation_error" kinds log at Warn, everything
// else at Info.
func (s *Sink) Record(ev Event) {
	fields := make([]zapcore.Field, 0, len(ev.Fields)+1)
	fields = append(fields, zap.String("kind", ev.Kind))
	for k, v := range ev.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch ev.Kind {
	case "parse_error", "negotiation_error":
		s.log.Warn("trace event", fields...)
	default:
		s.log.Info("trace event", fields...)
	}

	if !s.traced {
		return
	}
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Events returns a copy of every recorded event, in order. Returns nil if
// tracing was not enabled.
func (s *Sink) Events() []Event {
	if !s.traced {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
