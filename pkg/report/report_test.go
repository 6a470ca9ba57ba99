package report_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/report"
)

func TestUnlockIsIdempotent(t *testing.T) {
	r := report.New("t", true)
	v := models.Vulnerability{Title: "a", Points: 5, Category: models.CategoryFQ}

	if !r.Unlock(report.ExprKey(1), v) {
		t.Fatal("first unlock should report new")
	}
	if r.Unlock(report.ExprKey(1), v) {
		t.Error("second unlock of the same key must be a no-op")
	}
	if r.Total() != 5 {
		t.Errorf("total: got %v, want 5", r.Total())
	}
}

func TestLockRetractsOnlyInCompetitionMode(t *testing.T) {
	v := models.Vulnerability{Title: "a", Points: 3, Category: models.CategoryFQ}

	comp := report.New("t", true)
	comp.Unlock(report.ExprKey(1), v)
	if !comp.Lock(report.ExprKey(1)) {
		t.Error("competition mode must retract")
	}
	if comp.Total() != 0 {
		t.Errorf("total after retraction: got %v", comp.Total())
	}

	dev := report.New("t", false)
	dev.Unlock(report.ExprKey(1), v)
	if dev.Lock(report.ExprKey(1)) {
		t.Error("development mode is monotone; Lock must be a no-op")
	}
	if dev.Total() != 3 {
		t.Errorf("dev total: got %v", dev.Total())
	}
}

func TestCategoryThenTitleOrdering(t *testing.T) {
	r := report.New("t", true)
	r.Unlock(report.ExprKey(1), models.Vulnerability{Title: "z-check", Points: 1, Category: models.CategoryUserAuditing})
	r.Unlock(report.ExprKey(2), models.Vulnerability{Title: "a-check", Points: 1, Category: models.CategoryUserAuditing})
	r.Unlock(report.ExprKey(3), models.Vulnerability{Title: "m", Points: 1, Category: models.CategoryFQ})
	r.Unlock(report.ExprKey(4), models.Vulnerability{Title: "b", Points: 1, Category: models.CategoryMalware})

	got := r.Vulnerabilities()
	want := []string{"m", "a-check", "z-check", "b"}
	for i, title := range want {
		if got[i].Title != title {
			t.Fatalf("order %d: got %q, want %q (full: %+v)", i, got[i].Title, title, got)
		}
	}
}

func TestRenderContainsEntries(t *testing.T) {
	r := report.New("Round X", true)
	r.Unlock(report.ExprKey(1), models.Vulnerability{Title: "Forensics 1", Points: 5, Category: models.CategoryFQ})
	r.Unlock(report.ExprKey(2), models.Vulnerability{Title: "Half credit", Points: 2.5, Category: models.CategoryAppSec})

	html, err := r.Render(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	s := string(html)
	for _, want := range []string{"Round X", "Forensics 1", "5 pts", "2.5 pts", "7.5 pts", "03/01/2026 12:00:00 UTC"} {
		if !strings.Contains(s, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestRenderEmptyReport(t *testing.T) {
	r := report.New("t", true)
	html, err := r.Render(time.Now())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(string(html), "not scored any points") {
		t.Error("empty report should show the placeholder")
	}
}

func TestFlushWritesOnlyWhenDirty(t *testing.T) {
	dir := t.TempDir()
	r := report.New("t", true)
	r.Unlock(report.ExprKey(1), models.Vulnerability{Title: "a", Points: 1, Category: models.CategoryFQ})

	if !r.Dirty() {
		t.Fatal("report should be dirty after an unlock")
	}
	if err := r.Flush(dir); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if r.Dirty() {
		t.Error("Flush must clear the dirty flag")
	}
}
