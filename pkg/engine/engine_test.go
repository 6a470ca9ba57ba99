package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/compiler"
	"github.com/ajiang-xyz/zekaengine/pkg/engine"
	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/report"
	"github.com/ajiang-xyz/zekaengine/pkg/testutil"
)

// buildArtifact compiles a rubric and pushes it through the full binary
// round trip, so every scenario also exercises serialization.
func buildArtifact(t *testing.T, src string) *artifact.Artifact {
	t.Helper()
	return testutil.MustArtifact(t, src, compiler.Options{Seed: 42, Decoys: 2})
}

func newScorer(t *testing.T, art *artifact.Artifact, competitive bool, files map[string][]byte) *engine.Scorer {
	t.Helper()
	rep := report.New(art.Title, competitive)
	return engine.NewScorer(art, rep, engine.MapContentReader(files), zerolog.Nop())
}

var (
	setEvent    = testutil.SetEvent
	deleteEvent = testutil.DeleteEvent
)

const forensicsRubric = `
{}
---
- "Forensics 1": 5
  category: fq
  pass:
    - regex: ["/fq1", "fq1: 2"]
`

func TestScenarioRegexUnlock(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	s := newScorer(t, art, false, map[string][]byte{"/fq1": []byte("fq1: 2\n")})

	s.Score(setEvent("/fq1", "fq1: 2\n"))

	vulns := s.Report().Vulnerabilities()
	if len(vulns) != 1 {
		t.Fatalf("vuln count: got %d, want 1", len(vulns))
	}
	v := vulns[0]
	if v.Title != "Forensics 1" || v.Points != 5 || v.Category != models.CategoryFQ {
		t.Errorf("unlocked vulnerability mismatch: %+v", v)
	}
	if s.Report().Total() != 5 {
		t.Errorf("total: got %v, want 5", s.Report().Total())
	}
}

func TestScenarioRegexNoMatch(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	s := newScorer(t, art, false, map[string][]byte{"/fq1": []byte("fq1: 1")})

	s.Score(setEvent("/fq1", "fq1: 1"))

	if len(s.Report().Vulnerabilities()) != 0 {
		t.Errorf("report should be empty, got %+v", s.Report().Vulnerabilities())
	}
}

func TestScenarioCompositeOrAnd(t *testing.T) {
	src := `
{}
---
- "combo": 4
  category: local_policy
  pass:
    - or:
        - and:
            - regex: ["/f", "A"]
            - regex: ["/f", "B"]
        - regex: ["/f", "2"]
`
	art := buildArtifact(t, src)
	s := newScorer(t, art, false, map[string][]byte{"/f": []byte("B 2")})

	s.Score(setEvent("/f", "B 2"))

	if !s.Report().Unlocked(report.ExprKey(1)) {
		t.Fatal("composite condition should unlock on the or-branch")
	}
	if s.Report().Total() != 4 {
		t.Errorf("total: got %v, want 4", s.Report().Total())
	}
}

func TestScenarioCategoryOrdering(t *testing.T) {
	src := `
{}
---
- "z-check": 1
  category: user_auditing
  pass:
    - exists: ["/za"]
- "a-check": 1
  category: user_auditing
  pass:
    - exists: ["/ab"]
`
	art := buildArtifact(t, src)
	s := newScorer(t, art, false, nil)

	s.Score(setEvent("/za", ""))
	s.Score(setEvent("/ab", ""))

	vulns := s.Report().Vulnerabilities()
	if len(vulns) != 2 {
		t.Fatalf("vuln count: got %d, want 2", len(vulns))
	}
	if vulns[0].Title != "a-check" || vulns[1].Title != "z-check" {
		t.Errorf("lexicographic order violated: %q before %q", vulns[0].Title, vulns[1].Title)
	}
}

func TestScenarioCompetitionRetraction(t *testing.T) {
	src := `
{}
---
- "config locked down": 10
  category: local_policy
  pass:
    - imatch: ["/cfg", "Good"]
`
	art := buildArtifact(t, src)
	s := newScorer(t, art, true, nil)

	s.Score(setEvent("/cfg", "good"))
	if s.Report().Total() != 10 {
		t.Fatalf("expected unlock, total %v", s.Report().Total())
	}

	// Reverting the condition retracts the points.
	s.Score(setEvent("/cfg", "bad"))
	if s.Report().Total() != 0 {
		t.Errorf("expected retraction, total %v", s.Report().Total())
	}

	// And re-fixing re-awards them.
	s.Score(setEvent("/cfg", "GOOD"))
	if s.Report().Total() != 10 {
		t.Errorf("expected re-unlock, total %v", s.Report().Total())
	}
}

func TestScenarioProhibitedFileDelete(t *testing.T) {
	src := `
{}
---
- "Removed bad.exe": 5
  category: prohibited_file
  pass:
    - absent: ["/tmp/bad.exe"]
`
	art := buildArtifact(t, src)
	s := newScorer(t, art, true, nil)

	s.Score(deleteEvent("/tmp/bad.exe"))
	if !s.Report().Unlocked(report.ExprKey(1)) {
		t.Fatal("deleting the prohibited file should unlock")
	}

	s.Score(setEvent("/tmp/bad.exe", "mz"))
	if s.Report().Unlocked(report.ExprKey(1)) {
		t.Fatal("re-creating the file should re-lock")
	}

	s.Score(deleteEvent("/tmp/bad.exe"))
	if !s.Report().Unlocked(report.ExprKey(1)) {
		t.Fatal("deleting again should unlock again")
	}
}

func TestMissIsSilent(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	s := newScorer(t, art, false, nil)

	s.Score(setEvent("/not/in/rubric", "anything"))
	s.Score(deleteEvent("/also/not/there"))

	if len(s.Report().Vulnerabilities()) != 0 || s.Report().Dirty() {
		t.Error("events outside the rubric must have no observable effect")
	}
}

func TestAtMostOncePerDuplicateEvents(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	s := newScorer(t, art, true, map[string][]byte{"/fq1": []byte("fq1: 2")})

	for i := 0; i < 3; i++ {
		s.Score(setEvent("/fq1", "fq1: 2"))
	}
	if got := s.Report().Total(); got != 5 {
		t.Errorf("duplicate events must award once: total %v", got)
	}
}

func TestDevelopmentModeIsMonotone(t *testing.T) {
	src := `
{}
---
- "setting": 2
  category: local_policy
  pass:
    - imatch: ["/s", "on"]
`
	art := buildArtifact(t, src)
	s := newScorer(t, art, false, nil)

	s.Score(setEvent("/s", "on"))
	s.Score(setEvent("/s", "off"))
	if s.Report().Total() != 2 {
		t.Errorf("development mode must not retract: total %v", s.Report().Total())
	}
}

// TestRoundTripAwardsDeclaredTotal replays the full OPV set of a
// multi-check rubric and expects exactly the declared point sum.
func TestRoundTripAwardsDeclaredTotal(t *testing.T) {
	src := `
title: "Round Trip"
seed: 777
aead: "round-aad"
---
- "regex check": 5
  category: fq
  pass:
    - regex: ["/fq1", "fq1: 2"]
- "iregex check": 3
  category: os_update
  pass:
    - iregex: ["/release", "version: 9\\d"]
- "literal check": 2
  category: app_update
  pass:
    - match: ["/app.conf", "AutoUpdate=TRUE"]
- "value check": 4
  category: account_policy
  pass:
    - imatch: ["/policy", "strict"]
- "presence check": 1
  category: defensive_countermeasure
  pass:
    - exists: ["/etc/fw.rules"]
- "removal check": 6
  category: malware
  pass:
    - absent: ["/tmp/rat.bin"]
`
	files := map[string][]byte{
		"/fq1":      []byte("fq1: 2\n"),
		"/release":  []byte("VERSION: 94\n"),
		"/app.conf": []byte("# config\nAutoUpdate=TRUE\n"),
	}
	art := buildArtifact(t, src)
	if art.Title != "Round Trip" {
		t.Fatalf("artifact title: %q", art.Title)
	}
	s := newScorer(t, art, false, files)

	s.Score(setEvent("/fq1", "fq1: 2\n"))
	s.Score(setEvent("/release", "VERSION: 94\n"))
	s.Score(setEvent("/app.conf", "# config\nAutoUpdate=TRUE\n"))
	s.Score(setEvent("/policy", "STRICT"))
	s.Score(setEvent("/etc/fw.rules", "drop all"))
	s.Score(deleteEvent("/tmp/rat.bin"))

	if got := s.Report().Total(); got != 21 {
		t.Errorf("total: got %v, want 21 (report: %+v)", got, s.Report().Vulnerabilities())
	}
	if got := len(s.Report().Vulnerabilities()); got != 6 {
		t.Errorf("vuln count: got %d, want 6", got)
	}
}

func TestMutatedCiphertextStaysLocked(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	files := map[string][]byte{"/fq1": []byte("fq1: 2")}

	// Corrupt one byte of the sealed payload; the check still passes but
	// the unwrap must fail indistinguishably from a miss.
	art.Blobs[0][0] ^= 0x01
	s := newScorer(t, art, false, files)
	s.Score(setEvent("/fq1", "fq1: 2"))
	if len(s.Report().Vulnerabilities()) != 0 {
		t.Error("a mutated ciphertext must leave the vulnerability locked")
	}

	// Same artifact with a different engine-side AAD fails the same way.
	art2 := buildArtifact(t, forensicsRubric)
	art2.AAD = []byte("tampered")
	s2 := newScorer(t, art2, false, files)
	s2.Score(setEvent("/fq1", "fq1: 2"))
	if len(s2.Report().Vulnerabilities()) != 0 {
		t.Error("a mutated AAD must leave the vulnerability locked")
	}
}

func TestEngineRunDevelopmentWritesReport(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	dir := t.TempDir()

	eng, err := engine.New(engine.Config{
		Artifact: art,
		Mode:     models.ModeDevelopment,
		WorkDir:  dir,
		Reader:   engine.MapContentReader{"/fq1": []byte("fq1: 2")},
		Providers: []events.Provider{
			&events.SyntheticProvider{Events: []events.Event{setEvent("/fq1", "fq1: 2")}},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	path := filepath.Join(dir, models.ReportFileName)
	testutil.WaitForFile(t, path)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	html, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if !strings.Contains(string(html), "Forensics 1") {
		t.Error("report should list the unlocked vulnerability")
	}
}

func TestEngineRunCompetitionScoresAtIntervals(t *testing.T) {
	art := buildArtifact(t, forensicsRubric)
	dir := t.TempDir()

	eng, err := engine.New(engine.Config{
		Artifact: art,
		Mode:     models.ModeCompetition,
		Interval: 50 * time.Millisecond,
		WorkDir:  dir,
		Reader:   engine.MapContentReader{"/fq1": []byte("fq1: 2")},
		Providers: []events.Provider{
			&events.SyntheticProvider{Events: []events.Event{
				setEvent("/fq1", "old"),
				setEvent("/fq1", "fq1: 2"), // duplicate key collapses to this
			}},
		},
		Logger: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	path := filepath.Join(dir, models.ReportFileName)
	testutil.WaitForFile(t, path)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if eng.Scorer().Report().Total() != 5 {
		t.Errorf("interval scoring total: got %v, want 5", eng.Scorer().Report().Total())
	}
}

