// Package engine runs the scoring pipeline: providers feed OPV events into
// a bounded queue, a single scorer goroutine consumes them, and the report
// is re-rendered whenever its state changes.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/report"
	"github.com/ajiang-xyz/zekaengine/pkg/storage"
	"github.com/ajiang-xyz/zekaengine/pkg/storage/rubricstore"
)

// Config assembles an engine run.
type Config struct {
	Artifact  *artifact.Artifact
	Mode      string // models.ModeDevelopment or models.ModeCompetition
	Interval  time.Duration
	WorkDir   string
	Providers []events.Provider
	Reader    ContentReader
	QueueSize int
	Logger    zerolog.Logger
}

// Engine owns the scorer and its queue for one run.
type Engine struct {
	cfg    Config
	scorer *Scorer
	queue  *events.Queue
}

// New validates the configuration and builds the engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Artifact == nil {
		return nil, fmt.Errorf("engine: no artifact")
	}
	switch cfg.Mode {
	case models.ModeDevelopment, models.ModeCompetition:
	case "":
		cfg.Mode = models.ModeDevelopment
	default:
		return nil, fmt.Errorf("engine: unknown mode %q", cfg.Mode)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = models.DefaultInterval
	}
	if cfg.Reader == nil {
		cfg.Reader = OSContentReader{}
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}

	rep := report.New(cfg.Artifact.Title, cfg.Mode == models.ModeCompetition)
	eng := &Engine{
		cfg:    cfg,
		scorer: NewScorer(cfg.Artifact, rep, cfg.Reader, cfg.Logger),
		queue:  events.NewQueue(cfg.QueueSize, cfg.Logger),
	}
	return eng, nil
}

// Scorer exposes the engine's scorer, mainly for tests that drive events
// synchronously.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// Queue exposes the event queue providers feed.
func (e *Engine) Queue() *events.Queue { return e.queue }

// Run starts the providers and the scorer loop and blocks until ctx is
// cancelled. Shutdown is orderly: providers stop, the queue drains under a
// bounded deadline, and the report is flushed one last time.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, p := range e.cfg.Providers {
		p := p
		g.Go(func() error {
			if err := p.Start(e.queue); err != nil {
				// provider-unavailable: the engine continues with the
				// remaining providers.
				e.cfg.Logger.Warn().Err(err).Str("provider", p.Name()).Msg("provider unavailable")
				return nil
			}
			<-ctx.Done()
			return p.Stop()
		})
	}

	g.Go(func() error {
		switch e.cfg.Mode {
		case models.ModeCompetition:
			return e.runCompetition(ctx)
		default:
			return e.runDevelopment(ctx)
		}
	})

	return g.Wait()
}

// runDevelopment scores every event the moment it arrives.
func (e *Engine) runDevelopment(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return e.shutdown()
		case ev := <-e.queue.C():
			e.scorer.Score(ev)
			if err := e.scorer.Report().Flush(e.cfg.WorkDir); err != nil {
				e.cfg.Logger.Error().Err(err).Msg("report write failed")
			}
		}
	}
}

// runCompetition accumulates events into the interval cache and scores the
// drained batch at each boundary, swapping the rendered report once per
// interval.
func (e *Engine) runCompetition(ctx context.Context) error {
	ic, err := rubricstore.NewIntervalCache()
	if err != nil {
		return err
	}
	var cache storage.EventCache = ic
	defer cache.Close()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final partial interval: whatever is still queued joins the
			// cache before the last scoring pass.
		drain:
			for {
				select {
				case ev := <-e.queue.C():
					if err := cache.Put(ev); err != nil {
						e.cfg.Logger.Error().Err(err).Msg("interval cache write failed")
					}
				default:
					break drain
				}
			}
			if err := e.scoreInterval(cache); err != nil {
				e.cfg.Logger.Error().Err(err).Msg("final interval scoring failed")
			}
			return nil
		case ev := <-e.queue.C():
			if err := cache.Put(ev); err != nil {
				e.cfg.Logger.Error().Err(err).Msg("interval cache write failed")
			}
		case <-ticker.C:
			if err := e.scoreInterval(cache); err != nil {
				e.cfg.Logger.Error().Err(err).Msg("interval scoring failed")
			}
		}
	}
}

// scoreInterval drains the cache in insertion order, scores everything,
// then writes the report in one swap.
func (e *Engine) scoreInterval(cache storage.EventCache) error {
	drained, err := cache.Drain()
	if err != nil {
		return err
	}
	for _, ev := range drained {
		e.scorer.Score(ev)
	}
	return e.scorer.Report().Flush(e.cfg.WorkDir)
}

// shutdown drains whatever is still queued under the bounded deadline and
// flushes the report.
func (e *Engine) shutdown() error {
	deadline := time.After(models.ShutdownDrainDeadline)
	for {
		select {
		case ev := <-e.queue.C():
			e.scorer.Score(ev)
		case <-deadline:
			return e.scorer.Report().Flush(e.cfg.WorkDir)
		default:
			return e.scorer.Report().Flush(e.cfg.WorkDir)
		}
	}
}
