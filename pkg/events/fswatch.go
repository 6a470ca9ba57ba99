package events

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
)

// FSProvider watches a set of directory roots by periodic enumeration. On
// start it emits a synthetic SET per extant file, then diffs each pass
// against the previous one, emitting SET for new or modified files and
// DELETE for removed ones.
//
// Enumeration is the portable lowest common denominator; a kernel-level
// source can replace it behind the same Provider interface without the
// engine noticing.
type FSProvider struct {
	roots    []string
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped sync.WaitGroup
}

type fileStamp struct {
	modTime time.Time
	size    int64
}

// NewFSProvider builds a provider over the given roots. A zero interval
// means the development poll cadence.
func NewFSProvider(roots []string, interval time.Duration, log zerolog.Logger) *FSProvider {
	if interval <= 0 {
		interval = models.DevPollInterval
	}
	return &FSProvider{roots: roots, interval: interval, log: log}
}

// Name implements Provider.
func (p *FSProvider) Name() string { return "fswatch" }

// Start implements Provider.
func (p *FSProvider) Start(sink *Queue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return nil
	}
	p.stop = make(chan struct{})

	seen := p.enumerate(sink, nil)
	p.stopped.Add(1)
	go func() {
		defer p.stopped.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				seen = p.enumerate(sink, seen)
			}
		}
	}()
	return nil
}

// Stop implements Provider.
func (p *FSProvider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return nil
	}
	close(p.stop)
	p.stopped.Wait()
	p.stop = nil
	return nil
}

// enumerate walks the roots, emits changes relative to prev, and returns
// the new stamp map. A nil prev means the initial full enumeration, which
// emits a SET for everything.
func (p *FSProvider) enumerate(sink *Queue, prev map[string]fileStamp) map[string]fileStamp {
	next := make(map[string]fileStamp, len(prev))
	for _, root := range p.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtrees are skipped, not fatal
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			stamp := fileStamp{modTime: info.ModTime(), size: info.Size()}
			next[path] = stamp
			if prev != nil {
				if old, ok := prev[path]; ok && old == stamp {
					return nil
				}
			}
			sink.Push(Event{
				OPV:    opv.New(opv.SET, path, p.readValue(path)),
				Origin: p.Name(),
			})
			return nil
		})
		if err != nil {
			p.log.Warn().Err(err).Str("root", root).Msg("enumeration pass failed")
		}
	}
	for path := range prev {
		if _, ok := next[path]; !ok {
			sink.Push(Event{
				OPV:    opv.New(opv.DELETE, path, nil),
				Origin: p.Name(),
			})
		}
	}
	return next
}

// readValue attaches file content as the OPV value so value-keyed checks
// can commit it. Content checks re-read the file themselves; this value is
// only the commitment-side copy.
func (p *FSProvider) readValue(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, models.MaxContentBytes+1))
	if err != nil || len(data) > models.MaxContentBytes {
		return nil
	}
	return data
}

// SyntheticProvider replays a fixed event sequence, used by tests.
type SyntheticProvider struct {
	Events []Event

	mu      sync.Mutex
	started bool
}

// Name implements Provider.
func (p *SyntheticProvider) Name() string { return "synthetic" }

// Start implements Provider.
func (p *SyntheticProvider) Start(sink *Queue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}
	p.started = true
	for _, e := range p.Events {
		if e.Origin == "" {
			e.Origin = p.Name()
		}
		sink.Push(e)
	}
	return nil
}

// Stop implements Provider.
func (p *SyntheticProvider) Stop() error { return nil }
