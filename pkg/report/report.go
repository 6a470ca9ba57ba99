// Package report accumulates unlocked vulnerabilities and renders the
// score report. In development mode the report is monotone: once unlocked,
// an entry never retracts. In competition mode entries unlock and re-lock
// as interval evaluations change.
package report

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ajiang-xyz/zekaengine/pkg/models"
)

// Key identifies a vulnerability slot in the report without revealing
// anything about it while locked: expression-backed entries key on their
// expression identifier, direct unlocks on their blob index.
type Key struct {
	Expr uint16
	Blob uint32
}

// ExprKey keys an expression-backed vulnerability.
func ExprKey(id uint16) Key { return Key{Expr: id} }

// BlobKey keys a single-check vulnerability unlocked without an
// expression.
func BlobKey(idx uint32) Key { return Key{Blob: idx, Expr: 0xFFFF} }

// Report is the scorer-owned scoring state. It is not synchronized; only
// the scorer goroutine touches it.
type Report struct {
	title       string
	competitive bool
	entries     map[Key]models.Vulnerability
	everSeen    map[Key]bool
	changed     bool
}

// New builds an empty report. competitive selects retraction semantics.
func New(title string, competitive bool) *Report {
	return &Report{
		title:       title,
		competitive: competitive,
		entries:     map[Key]models.Vulnerability{},
		everSeen:    map[Key]bool{},
	}
}

// Unlock records a vulnerability. It reports whether the entry was newly
// unlocked; repeated unlocks within the same state are no-ops, which is
// what bounds each identifier to one effect per interval.
func (r *Report) Unlock(key Key, v models.Vulnerability) bool {
	if _, ok := r.entries[key]; ok {
		return false
	}
	if !r.competitive && v.SetOnce && r.everSeen[key] {
		return false
	}
	r.entries[key] = v
	r.everSeen[key] = true
	r.changed = true
	return true
}

// Lock retracts a vulnerability. Development mode is monotone, so the call
// is a no-op there.
func (r *Report) Lock(key Key) bool {
	if !r.competitive {
		return false
	}
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	r.changed = true
	return true
}

// Unlocked reports whether key is currently unlocked.
func (r *Report) Unlocked(key Key) bool {
	_, ok := r.entries[key]
	return ok
}

// Total sums the points of every unlocked entry.
func (r *Report) Total() float64 {
	var total float64
	for _, v := range r.entries {
		total += v.Points
	}
	return total
}

// Vulnerabilities returns the unlocked entries in display order: the fixed
// category order first, lexicographic by title within a category.
func (r *Report) Vulnerabilities() []models.Vulnerability {
	out := make([]models.Vulnerability, 0, len(r.entries))
	for _, v := range r.entries {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Title < out[j].Title
	})
	return out
}

// Dirty reports whether the report changed since the last Flush.
func (r *Report) Dirty() bool { return r.changed }

// Flush renders the report to dir/report.html when it has changed since
// the previous flush, and clears the dirty flag.
func (r *Report) Flush(dir string) error {
	if !r.changed {
		return nil
	}
	html, err := r.Render(time.Now().UTC())
	if err != nil {
		return err
	}
	path := filepath.Join(dir, models.ReportFileName)
	if err := os.WriteFile(path, html, models.FilePermReadWrite); err != nil {
		return err
	}
	r.changed = false
	return nil
}
