// Package rubricstore backs the competition-mode interval cache with an
// in-memory Pebble instance. Pebble's batch commit gives the "drain the
// cache, score, swap" step a real transactional boundary, and the
// in-memory VFS keeps the engine's no-files-but-the-report guarantee
// intact.
package rubricstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
)

// Key prefixes simulate logical buckets in Pebble's flat key space.
var prefixEvent = []byte("evt:")

// cachedEvent is the Gob-serialized cache value. Seq preserves first
// insertion order even when later duplicates replace the payload.
type cachedEvent struct {
	Seq      uint64
	Op       byte
	Path     string
	Value    []byte
	HasValue bool
	Origin   string
}

// IntervalCache collapses events sharing an (operation, path) key to the
// latest payload while remembering first-insertion order for the drain.
type IntervalCache struct {
	mu  sync.Mutex
	db  *pebble.DB
	seq uint64
}

// NewIntervalCache opens the in-memory store.
func NewIntervalCache() (*IntervalCache, error) {
	db, err := pebble.Open("interval-cache", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("rubricstore: open: %w", err)
	}
	return &IntervalCache{db: db}, nil
}

func eventKey(op opv.Operation, path string) []byte {
	key := make([]byte, 0, len(prefixEvent)+2+len(path))
	key = append(key, prefixEvent...)
	key = append(key, byte(op), ':')
	key = append(key, path...)
	return key
}

// Put records an event, collapsing duplicates for the same key to the
// newest payload.
func (c *IntervalCache) Put(ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := eventKey(ev.OPV.Operation, ev.OPV.PathString())
	seq := c.seq
	if existing, closer, err := c.db.Get(key); err == nil {
		var old cachedEvent
		if decErr := gob.NewDecoder(bytes.NewReader(existing)).Decode(&old); decErr == nil {
			seq = old.Seq
		}
		closer.Close()
	} else {
		c.seq++
	}

	entry := cachedEvent{
		Seq:      seq,
		Op:       byte(ev.OPV.Operation),
		Path:     ev.OPV.PathString(),
		Value:    ev.OPV.Value,
		HasValue: ev.OPV.Value != nil,
		Origin:   ev.Origin,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("rubricstore: encode: %w", err)
	}
	return c.db.Set(key, buf.Bytes(), pebble.NoSync)
}

// Len reports the number of distinct keys currently cached.
func (c *IntervalCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	iter, err := c.db.NewIter(prefixIterOptions())
	if err != nil {
		return 0
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}

// Drain returns the cached events in first-insertion order and clears the
// cache in a single batch commit.
func (c *IntervalCache) Drain() ([]events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	iter, err := c.db.NewIter(prefixIterOptions())
	if err != nil {
		return nil, fmt.Errorf("rubricstore: iter: %w", err)
	}

	var entries []cachedEvent
	var keys [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var entry cachedEvent
		if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&entry); err != nil {
			iter.Close()
			return nil, fmt.Errorf("rubricstore: decode: %w", err)
		}
		entries = append(entries, entry)
		keys = append(keys, append([]byte(nil), iter.Key()...))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })

	batch := c.db.NewBatch()
	for _, key := range keys {
		if err := batch.Delete(key, nil); err != nil {
			batch.Close()
			return nil, err
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return nil, fmt.Errorf("rubricstore: clear: %w", err)
	}

	out := make([]events.Event, len(entries))
	for i, entry := range entries {
		o := opv.New(opv.Operation(entry.Op), entry.Path, nil)
		if entry.HasValue {
			o.Value = entry.Value
			if o.Value == nil {
				// Gob flattens empty slices to nil; restore the presence
				// distinction an empty value carries.
				o.Value = []byte{}
			}
		}
		out[i] = events.Event{OPV: o, Origin: entry.Origin}
	}
	return out, nil
}

// Close releases the store.
func (c *IntervalCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

func prefixIterOptions() *pebble.IterOptions {
	upper := append([]byte(nil), prefixEvent...)
	upper[len(upper)-1]++
	return &pebble.IterOptions{LowerBound: prefixEvent, UpperBound: upper}
}
