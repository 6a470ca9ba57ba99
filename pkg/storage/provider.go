// Package storage defines the persistence contracts the engine depends
// on, keeping it agnostic of the backing implementation.
package storage

import "github.com/ajiang-xyz/zekaengine/pkg/events"

// EventCache defines the contract for competition-mode interval caching:
// events accumulate keyed by (operation, path), duplicates collapse to the
// latest payload, and Drain hands them back in first-insertion order while
// clearing the cache atomically.
type EventCache interface {
	Put(ev events.Event) error
	Drain() ([]events.Event, error)
	Len() int
	Close() error
}
