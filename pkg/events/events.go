// Package events carries OPV change events from platform providers to the
// scorer over a multi-producer single-consumer queue. Providers only send;
// they never touch engine state.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
)

// Event is one observed state change.
type Event struct {
	OPV    opv.OPV
	Origin string // provider name, for diagnostics only
}

// Queue is the bounded MPSC event queue. Enqueues never block: when the
// queue is full the oldest event is dropped and a warning logged; the next
// full enumeration pass recovers anything lost.
type Queue struct {
	ch      chan Event
	log     zerolog.Logger
	mu      sync.Mutex
	dropped uint64
}

// NewQueue builds a queue with the given capacity; zero means the default
// soft bound.
func NewQueue(capacity int, log zerolog.Logger) *Queue {
	if capacity <= 0 {
		capacity = models.QueueSoftBound
	}
	return &Queue{ch: make(chan Event, capacity), log: log}
}

// Push enqueues without blocking, evicting the oldest event if needed.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		select {
		case q.ch <- e:
			return
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped++
			q.log.Warn().
				Str("path", old.OPV.PathString()).
				Uint64("total_dropped", q.dropped).
				Msg("event queue full; dropped oldest event")
		default:
		}
	}
}

// C is the consumer side; only the scorer reads it.
func (q *Queue) C() <-chan Event { return q.ch }

// Dropped reports how many events have been evicted so far.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Provider is a platform event source. Start must return promptly after
// launching any background work; the provider performs a full enumeration
// of its managed namespace first (synthetic SET per extant path), then
// streams live changes. Stop halts the background work and is idempotent.
type Provider interface {
	Name() string
	Start(sink *Queue) error
	Stop() error
}

// Registry holds the providers selected for the running platform.
type Registry struct {
	providers []Provider
}

// Register appends a provider.
func (r *Registry) Register(p Provider) { r.providers = append(r.providers, p) }

// Providers returns the registered providers in registration order.
func (r *Registry) Providers() []Provider { return r.providers }
