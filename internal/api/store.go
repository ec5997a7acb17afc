package api

import (
	"github.com/banshee-data/lasershot/internal/events"
	"github.com/banshee-data/lasershot/internal/shotdetection"
)

// MemoryStore serves the session log from an in-memory sink, for runs
// without a database.
type MemoryStore struct {
	Sink *events.MemorySink
}

func (m MemoryStore) RecentEvents(kind events.Kind, limit int) ([]events.Event, error) {
	var evs []events.Event
	if kind == "" {
		evs = m.Sink.Events()
	} else {
		evs = m.Sink.OfKind(kind)
	}
	return tail(evs, limit), nil
}

func (m MemoryStore) Shots(limit int) ([]shotdetection.Shot, error) {
	return tail(m.Sink.Shots(), limit), nil
}

func tail[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[len(s)-n:]
	}
	return s
}
