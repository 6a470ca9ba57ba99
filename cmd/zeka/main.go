package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajiang-xyz/zekaengine/internal/cliutil"
	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/engine"
	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	version "github.com/ajiang-xyz/zekaengine/pkg/version"
)

// Package main provides the zeka CLI, the scoring engine that watches the
// machine and maintains report.html against a compiled rubric.

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `zeka - Zeka scoring engine

Loads zeka.dat from the working directory, watches the filesystem, and
keeps report.html current. Needs elevated privileges to observe the paths
a rubric typically covers.

Usage:
  zeka run [-mode dev|comp] [-interval 120s] [-roots /etc,/home] [-queue N]
  zeka version

Commands:
  run      Start scoring
           Flags:
             -mode      dev scores instantly; comp scores per interval
             -interval  competition scoring interval
             -roots     comma-separated directory roots to watch
             -queue     event queue soft bound
  version  Display CLI and Engine version

Examples:
  zeka run
  zeka run -mode comp -interval 2m
`)
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runMode := runCmd.String("mode", models.ModeDevelopment, "Scoring mode: dev or comp")
	runInterval := runCmd.Duration("interval", models.DefaultInterval, "Competition scoring interval")
	runRoots := runCmd.String("roots", "/", "Comma-separated watch roots")
	runQueue := runCmd.Int("queue", models.QueueSoftBound, "Event queue soft bound")

	switch os.Args[1] {
	case "run":
		runCmd.Parse(os.Args[2:])
		runEngine(*runMode, *runInterval, *runRoots, *runQueue)
	case "version":
		fmt.Printf("zeka %s\n", version.EngineVersion())
	default:
		flag.Usage()
		os.Exit(1)
	}
}

func runEngine(mode string, interval time.Duration, roots string, queueSize int) {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if os.Geteuid() != 0 {
		log.Warn().Msg("not running as root; some event sources may be unreadable")
	}

	art, err := artifact.Load(models.ArtifactFileName)
	if err != nil {
		// artifact-corrupt is fatal at startup.
		cliutil.ExitError(err)
	}

	var rootList []string
	for _, r := range strings.Split(roots, ",") {
		if r = strings.TrimSpace(r); r != "" {
			rootList = append(rootList, r)
		}
	}

	eng, err := engine.New(engine.Config{
		Artifact: art,
		Mode:     mode,
		Interval: interval,
		WorkDir:  ".",
		Providers: []events.Provider{
			events.NewFSProvider(rootList, 0, log),
		},
		QueueSize: queueSize,
		Logger:    log,
	})
	if err != nil {
		cliutil.ExitError(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("mode", mode).Str("title", art.Title).Msg("scoring started")
	if err := eng.Run(ctx); err != nil {
		cliutil.ExitError(err)
	}
	log.Info().Msg("scoring stopped")
}
