// Package events carries human-readable status events from the receiver to
// whoever is watching: the log, a UI shell connected over the events socket,
// or a test recorder. Emitting is fire-and-forget; no sink may block the
// caller for long.
package events

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zhubert/eagleray-sideband/logger"
)

// Kind classifies an event.
type Kind string

const (
	KindBanner          Kind = "banner"
	KindConnect         Kind = "connect"
	KindChannelState    Kind = "channel-state"
	KindPolling         Kind = "polling"
	KindObjectCreated   Kind = "object-created"
	KindObjectDestroyed Kind = "object-destroyed"
	KindObjectState     Kind = "object-state"
	KindInvocation      Kind = "invocation"
	KindTrigger         Kind = "trigger"
	KindError           Kind = "error"
)

// Event is one status line.
type Event struct {
	Time    time.Time `cbor:"1,keyasint"`
	Kind    Kind      `cbor:"2,keyasint"`
	Epoch   string    `cbor:"3,keyasint,omitempty"`
	Message string    `cbor:"4,keyasint"`
}

func (e Event) String() string {
	return e.Message
}

// Sink receives events.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Emitf formats and emits an event stamped with the current time.
func Emitf(s Sink, kind Kind, epoch string, format string, args ...any) {
	if s == nil {
		return
	}
	s.Emit(Event{
		Time:    time.Now(),
		Kind:    kind,
		Epoch:   epoch,
		Message: fmt.Sprintf(format, args...),
	})
}

// Fanout emits every event to each sink in order.
func Fanout(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ev Event) {
		for _, s := range live {
			s.Emit(ev)
		}
	})
}

// NewLogSink writes events to log at Info level.
func NewLogSink(log *slog.Logger) Sink {
	return SinkFunc(func(ev Event) {
		attrs := []any{"kind", string(ev.Kind)}
		if ev.Epoch != "" {
			attrs = append(attrs, logger.EpochKey, ev.Epoch)
		}
		log.Info(ev.Message, attrs...)
	})
}

// Recorder keeps every event in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Messages returns the recorded messages in order.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := make([]string, len(r.events))
	for i, ev := range r.events {
		msgs[i] = ev.Message
	}
	return msgs
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

// WaitFor blocks until an event matching match has been recorded or timeout
// elapses. It reports whether a match was seen.
func (r *Recorder) WaitFor(timeout time.Duration, match func(Event) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		for _, ev := range r.Events() {
			if match(ev) {
				return true
			}
		}
		select {
		case <-r.notify:
		case <-deadline.C:
			return false
		}
	}
}
