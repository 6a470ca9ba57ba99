package engine

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/ajiang-xyz/zekaengine/pkg/aead"
	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/commitment"
	"github.com/ajiang-xyz/zekaengine/pkg/descriptor"
	"github.com/ajiang-xyz/zekaengine/pkg/events"
	"github.com/ajiang-xyz/zekaengine/pkg/expr"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
	"github.com/ajiang-xyz/zekaengine/pkg/report"
)

// Out-of-band automaton inputs and the reserved dead state, mirroring the
// compiler's encoding of content automata.
const (
	eoiInput     = 256
	defaultInput = 257
	deadStateID  = 1<<32 - 1
)

// Scorer evaluates one OPV at a time against the artifact. It owns the
// variable table and the report exclusively; nothing here is synchronized
// because only the single scorer goroutine calls it.
type Scorer struct {
	art    *artifact.Artifact
	scheme *commitment.Scheme
	slots  *expr.Slots
	report *report.Report
	reader ContentReader
	log    zerolog.Logger
}

// NewScorer wires a scorer over a loaded artifact.
func NewScorer(art *artifact.Artifact, rep *report.Report, reader ContentReader, log zerolog.Logger) *Scorer {
	return &Scorer{
		art:    art,
		scheme: commitment.NewScheme(art.Prime, art.Seed),
		slots:  expr.NewSlots(art.Prime),
		report: rep,
		reader: reader,
		log:    log,
	}
}

// Report exposes the scorer-owned report.
func (s *Scorer) Report() *report.Report { return s.report }

// Score runs the full pipeline for one event: commitment, L1 lookup(s),
// check evaluation, variable updates, expression resolution, and any
// unlock. It completes entirely before returning; the scorer never yields
// mid-event.
func (s *Scorer) Score(ev events.Event) {
	o := ev.OPV

	// The lowercase index is consulted under two key shapes: the bare
	// (operation, path) tuple, and — when the event carries a value — the
	// value-bearing tuple, which is how literal value checks bind their
	// expected value into the key itself.
	bare := o
	bare.Value = nil
	s.processKey(bare.Lowercased(), bare, true)

	if o.Value != nil {
		s.processKey(o.Lowercased(), o, true)
	}
}

// processKey commits keyOPV, looks it up in L1, and runs the resulting
// record chain. caseOPV is the case-preserving form a redirect re-commits.
func (s *Scorer) processKey(keyOPV, caseOPV opv.OPV, allowRedirect bool) {
	x := s.scheme.Commit(keyOPV)
	y := s.art.EvalL1(x)
	_, idx, ok := descriptor.ParseElement(s.art.Prime, y)
	if !ok {
		// check-miss: silent by design.
		s.log.Debug().Str("path", caseOPV.PathString()).Msg("no check for key")
		return
	}
	for {
		rec, ok := s.art.Record(idx)
		if !ok {
			return
		}
		s.processRecord(rec, keyOPV, caseOPV, allowRedirect)
		if !rec.HasNext {
			return
		}
		idx = rec.Next
	}
}

func (s *Scorer) processRecord(rec descriptor.Record, keyOPV, caseOPV opv.OPV, allowRedirect bool) {
	switch rec.Header.Type {
	case descriptor.TypeRedirect:
		// Resend case-accurate: one extra pass keyed by the original
		// tuple, which carries the case-sensitive descriptors.
		if allowRedirect {
			s.processKey(caseOPV, caseOPV, false)
		}

	case descriptor.TypeCaseInsensitive:
		lit := descriptor.DecodeLiteralBody(rec.Body).Literal
		if len(lit) == 0 || (keyOPV.Value != nil && bytes.Equal(keyOPV.Value, lit)) {
			s.succeed(rec.Header, keyOPV)
		}

	case descriptor.TypeRegex, descriptor.TypeCaseSensitive:
		body, err := descriptor.DecodeContentBody(s.art.Prime, rec.Body)
		if err != nil {
			return
		}
		if s.contentMatches("/"+caseOPV.PathString(), body) {
			s.succeed(rec.Header, keyOPV)
		} else {
			// The check is known here yet its condition no longer holds:
			// the bound variable resets and its expression re-resolves,
			// which is how a previously earned unlock retracts.
			if rec.Header.VarID != 0 {
				s.slots.Clear(rec.Header.VarID)
			}
			if rec.Header.ExprID != 0 {
				s.resolveExpression(rec.Header.ExprID)
			}
		}
	}
	// Vulnerability or expression records reached through L1 are chaff;
	// nothing to do.
}

// succeed runs the post-evaluation path for a passing check: the offset
// re-commitment, the variable write, and either a direct unlock or an
// expression resolution.
func (s *Scorer) succeed(h descriptor.Header, keyOPV opv.OPV) {
	xs := s.scheme.CommitWithOffset(keyOPV, h.Hide)
	yh := s.art.EvalL2(xs)

	if h.VarID != 0 {
		if h.VarSetter {
			s.slots.Set(h.VarID, yh)
		} else {
			s.slots.Clear(h.VarID)
		}
	}

	if h.ExprID == 0 {
		s.unlockDirect(xs, yh)
		return
	}
	s.resolveExpression(h.ExprID)
}

// unlockDirect treats yh as a vulnerability-info descriptor keyed by the
// success commitment itself.
func (s *Scorer) unlockDirect(xs, yh field.Element) {
	_, idx, ok := descriptor.ParseElement(s.art.Prime, yh)
	if !ok {
		return
	}
	rec, ok := s.art.Record(idx)
	if !ok || rec.Header.Type != descriptor.TypeVulnInfo {
		return
	}
	vb := descriptor.DecodeVulnBody(rec.Body)
	if s.openAndUnlock(report.BlobKey(vb.BlobIdx), aead.KeyFromElement(xs), vb) {
		s.log.Debug().Uint32("blob", vb.BlobIdx).Msg("direct unlock")
	}
}

// resolveExpression evaluates expression id against the live variable
// table: true attempts an unlock keyed by the truth product; false
// retracts the expression's vulnerability.
func (s *Scorer) resolveExpression(id uint16) {
	ye := s.art.EvalL2(s.scheme.CommitScalar(uint64(id)))
	_, idx, ok := descriptor.ParseElement(s.art.Prime, ye)
	if !ok {
		return
	}
	rec, ok := s.art.Record(idx)
	if !ok || rec.Header.Type != descriptor.TypeBoolExpr {
		return
	}
	body, err := descriptor.DecodeExprBody(s.art.Prime, rec.Body)
	if err != nil {
		return
	}
	parsed, err := expr.Parse(body.Expr)
	if err != nil {
		return
	}

	if !parsed.EvalSlots(s.slots) {
		if s.report.Lock(report.ExprKey(id)) {
			s.log.Debug().Uint16("expr", id).Msg("expression false; retracted")
		}
		return
	}

	// Truth product over the referenced variables that currently hold
	// values; the reference list travels with the record.
	ids := s.art.VarList(body.VarListHead)
	if len(ids) == 0 {
		ids = parsed.Leaves()
	}
	product := s.art.Prime.One()
	for _, varID := range ids {
		if v, ok := s.slots.Get(varID); ok {
			product = product.Mul(v)
		}
	}

	// The expression automaton consumes the product's decimal rendering;
	// its terminal state keys the unwrap.
	state := body.Start
	for _, digit := range []byte(product.Big().String()) {
		state = s.art.EvalL2(s.art.Prime.CantorPair(state, s.art.Prime.FromUint64(uint64(digit))))
	}

	yv := s.art.EvalL2(product)
	_, vIdx, ok := descriptor.ParseElement(s.art.Prime, yv)
	if !ok {
		return
	}
	vRec, ok := s.art.Record(vIdx)
	if !ok || vRec.Header.Type != descriptor.TypeVulnInfo {
		return
	}
	vb := descriptor.DecodeVulnBody(vRec.Body)
	if s.openAndUnlock(report.ExprKey(id), aead.KeyFromElement(state), vb) {
		s.log.Debug().Uint16("expr", id).Msg("expression unlock")
	}
}

// openAndUnlock authenticates the sealed payload and, on success, adds the
// revealed vulnerability to the report. Authentication failure is
// indistinguishable from absence.
func (s *Scorer) openAndUnlock(key report.Key, aesKey [16]byte, vb descriptor.VulnBody) bool {
	blob, ok := s.art.Blob(vb.BlobIdx)
	if !ok {
		return false
	}
	plain, ok := aead.Open(aesKey, s.art.AAD, blob, vb.Tag)
	if !ok {
		// aead-fail: silent, same as a miss.
		return false
	}
	secret, err := aead.DecodeSecret(plain)
	if err != nil {
		return false
	}
	return s.report.Unlock(key, models.Vulnerability{
		Title:    secret.Title,
		Points:   secret.Points,
		Category: models.Category(secret.Category),
		SetOnce:  secret.SetOnce,
	})
}

// contentMatches streams each normalized line of the file through the
// Lagrange-embedded automaton; any accepting line passes the check.
func (s *Scorer) contentMatches(path string, body descriptor.ContentBody) bool {
	content, err := s.reader.ReadContent(path)
	if err != nil {
		// read-fail: treated as a miss.
		return false
	}
	p := s.art.Prime
	eoi := p.FromUint64(eoiInput)
	fallback := p.FromUint64(defaultInput)
	dead := p.FromUint64(deadStateID)

	for _, line := range bytes.Split(content, []byte{'\n'}) {
		norm := normalizeLine(line)
		state := p.FromUint64(uint64(body.EntryState))
		alive := true
		for _, b := range norm {
			next := s.art.EvalL3(p.CantorPair(state, p.FromUint64(uint64(b))))
			if !isStateID(next) {
				// No explicit entry for this byte: take the state's
				// fallback transition.
				next = s.art.EvalL3(p.CantorPair(state, fallback))
			}
			if !isStateID(next) || next.Equal(dead) {
				alive = false
				break
			}
			state = next
		}
		if alive && s.art.EvalL3(p.CantorPair(state, eoi)).Equal(body.Terminal) {
			return true
		}
	}
	return false
}

// isStateID reports whether a lookup result is a plausible small-integer
// automaton state rather than polynomial noise. A uniform field element
// lands below 2^32 with negligible probability, so this doubles as the
// miss signal for transition lookups.
func isStateID(e field.Element) bool {
	return e.Big().BitLen() <= 32
}

// normalizeLine trims surrounding whitespace and collapses interior runs
// of spaces and tabs to a single space, so content checks are stable under
// incidental formatting.
func normalizeLine(line []byte) []byte {
	trimmed := bytes.TrimSpace(line)
	out := make([]byte, 0, len(trimmed))
	inRun := false
	for _, b := range trimmed {
		if b == ' ' || b == '\t' {
			if !inRun {
				out = append(out, ' ')
			}
			inRun = true
			continue
		}
		inRun = false
		out = append(out, b)
	}
	return out
}
