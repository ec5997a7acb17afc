package events

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/lasershot/internal/monitoring"
	"github.com/banshee-data/lasershot/internal/shotdetection"
)

// MemorySink keeps the most recent events in memory, for the HTTP API and
// tests. A limit of zero keeps everything.
type MemorySink struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemorySink creates a MemorySink holding at most limit events.
func NewMemorySink(limit int) *MemorySink {
	return &MemorySink{limit: limit}
}

func (m *MemorySink) Emit(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.limit > 0 && len(m.events) > m.limit {
		drop := len(m.events) - m.limit
		m.events = append(m.events[:0], m.events[drop:]...)
	}
	return nil
}

// Events returns a copy of the held events, oldest first.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfKind returns the held events of kind k.
func (m *MemorySink) OfKind(k Kind) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// Shots returns the shots among the held events.
func (m *MemorySink) Shots() []shotdetection.Shot {
	var out []shotdetection.Shot
	for _, e := range m.OfKind(KindShot) {
		if e.Shot != nil {
			out = append(out, *e.Shot)
		}
	}
	return out
}

// Reset discards the held events.
func (m *MemorySink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

// LogSink writes each event through monitoring.Logf.
type LogSink struct{}

func (LogSink) Emit(e Event) error {
	monitoring.Logf("[events] %s", e)
	return nil
}

// ErrSinkClosed is returned by AsyncSink.Emit after Close.
var ErrSinkClosed = errors.New("sink closed")

// AsyncSink delivers to a slower sink, such as the database, on its own
// goroutine so the emitting capture loop is never held up by it. Events keep
// their order. When the queue is full Emit drops the event and counts it.
type AsyncSink struct {
	next    Sink
	queue   chan Event
	done    chan struct{}
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink starts the delivery goroutine for next with room for size
// queued events.
func NewAsyncSink(next Sink, size int) *AsyncSink {
	a := &AsyncSink{
		next:  next,
		queue: make(chan Event, max(1, size)),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncSink) run() {
	defer close(a.done)
	for e := range a.queue {
		if err := a.next.Emit(e); err != nil {
			monitoring.Logf("[events] async sink rejected %s: %v", e, err)
		}
	}
}

// Emit queues e without blocking.
func (a *AsyncSink) Emit(e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrSinkClosed
	}
	select {
	case a.queue <- e:
		return nil
	default:
		n := a.dropped.Add(1)
		return fmt.Errorf("queue full, dropped %d events so far", n)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (a *AsyncSink) Dropped() uint64 { return a.dropped.Load() }

// Close stops accepting events and waits until the queued ones are delivered.
func (a *AsyncSink) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
