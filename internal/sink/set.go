// Package sink tracks the open connections events are pushed to.
package sink

import (
	"sort"
	"sync"

	"onebridge/pkg/metrics"
)

const (
	KindReverse = "reverse"
	KindForward = "forward"
)

// Sink is one open connection. Send must not block.
type Sink interface {
	ID() string
	Kind() string
	Send(frame []byte) error
	Close(code int, reason string)
}

// Set is the registry of active sinks shared by the dispatcher, the reverse
// manager and the forward socket server.
type Set struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewSet() *Set {
	return &Set{sinks: make(map[string]Sink)}
}

func (s *Set) Add(sk Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sinks[sk.ID()]; ok {
		return
	}
	s.sinks[sk.ID()] = sk
	metrics.ActiveSinks.WithLabelValues(sk.Kind()).Inc()
}

// Remove deregisters the sink and reports whether it was present.
func (s *Set) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sk, ok := s.sinks[id]
	if !ok {
		return false
	}
	delete(s.sinks, id)
	metrics.ActiveSinks.WithLabelValues(sk.Kind()).Dec()
	return true
}

// Snapshot returns the sinks open right now, ordered by id so that fan-out
// order is stable between calls.
func (s *Set) Snapshot() []Sink {
	s.mu.RLock()
	out := make([]Sink, 0, len(s.sinks))
	for _, sk := range s.sinks {
		out = append(out, sk)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

// CloseAll closes every sink of kind; an empty kind closes all of them.
// Sinks deregister themselves when their read loop ends.
func (s *Set) CloseAll(kind string, code int, reason string) {
	for _, sk := range s.Snapshot() {
		if kind == "" || sk.Kind() == kind {
			sk.Close(code, reason)
		}
	}
}
