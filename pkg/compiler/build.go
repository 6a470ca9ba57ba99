package compiler

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ajiang-xyz/zekaengine/pkg/aead"
	"github.com/ajiang-xyz/zekaengine/pkg/artifact"
	"github.com/ajiang-xyz/zekaengine/pkg/automaton"
	"github.com/ajiang-xyz/zekaengine/pkg/descriptor"
	"github.com/ajiang-xyz/zekaengine/pkg/expr"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/opv"
	"github.com/ajiang-xyz/zekaengine/pkg/rubric"
)

// Out-of-band automaton inputs. Byte inputs are 0..255, so pairing a state
// with these can never collide with a byte transition.
const (
	// eoiInput marks end of line; its transition carries the acceptance
	// terminal.
	eoiInput = 256
	// defaultInput carries the state's fallback transition; only bytes
	// whose target differs from the fallback get explicit entries, which
	// keeps search-wrapped automata from costing 256 points per state.
	defaultInput = 257
)

// deadStateID is the reserved state identifier meaning "this input kills
// the line". Live state identifiers are small allocation-order integers
// and never reach it.
const deadStateID = 1<<32 - 1

// l1Chain collects the records that share one L1 lookup key; they are
// linked into a sequence when the builder finalizes.
type l1Chain struct {
	x       field.Element
	records []uint32
}

type leafInfo struct {
	varID uint16
	yh    field.Element
}

func (b *builder) addCheck(exprID uint16, check rubric.Check) error {
	if !b.catSeen[check.Category] {
		b.catSeen[check.Category] = true
		b.categories = append(b.categories, check.Category)
	}

	// Assign variable slots to leaves in tree order and render the
	// expression string over them.
	var leaves []rubric.Leaf
	exprStr := b.renderCondition(check.Pass, &leaves)
	if len(leaves) > maxLeavesPerCheck {
		return &rubric.CheckError{Title: check.Title, Msg: fmt.Sprintf("%d conditions exceed the limit of %d", len(leaves), maxLeavesPerCheck)}
	}
	if len(exprStr) > descriptor.ExprMaxLen {
		return &rubric.CheckError{Title: check.Title, Msg: "pass conditions are too complex to encode"}
	}
	if int(b.nextVar) > maxVariables {
		return &rubric.CheckError{Title: check.Title, Msg: "rubric exhausts the variable identifier space"}
	}

	parsed, err := expr.Parse(exprStr)
	if err != nil {
		return &rubric.CheckError{Title: check.Title, Msg: err.Error()}
	}
	ids := parsed.Leaves()

	// Plant every leaf: its L1 entries and its success value in L2.
	vals := make(map[uint16]field.Element, len(ids))
	for i, leaf := range leaves {
		info, err := b.plantLeaf(check.Title, leaf, ids[i], exprID)
		if err != nil {
			return err
		}
		vals[info.varID] = info.yh
	}

	// Seal the vulnerability payload under the expression's terminal
	// state.
	start := b.randElement()
	terminal := b.randElement()
	secret, err := aead.EncodeSecret(aead.Secret{
		Title:    check.Title,
		Points:   check.Points,
		Category: uint8(check.Category),
	})
	if err != nil {
		return &rubric.CheckError{Title: check.Title, Msg: err.Error()}
	}
	key := aead.KeyFromElement(terminal)
	ciphertext, tag, err := aead.Seal(key, b.aad, secret)
	if err != nil {
		return err
	}
	if len(ciphertext) > artifact.BlobMaxLen {
		return &rubric.CheckError{Title: check.Title, Msg: "title too long to seal"}
	}
	blobIdx := uint32(len(b.blobs))
	b.blobs = append(b.blobs, ciphertext)

	vulnRecIdx := uint32(len(b.records))
	vulnRec := descriptor.Record{
		Header: descriptor.Header{Type: descriptor.TypeVulnInfo},
		Body:   descriptor.EncodeVulnBody(descriptor.VulnBody{BlobIdx: blobIdx, Tag: tag}),
	}
	b.records = append(b.records, vulnRec)
	vulnElem, err := descriptor.Element(b.p, vulnRec.Header, vulnRecIdx)
	if err != nil {
		return err
	}

	// Every satisfying combination of true leaves yields a distinct
	// variable product; each becomes an L2 key for the vulnerability
	// record and an accepted path through the expression automaton.
	satisfied := 0
	for mask := 1; mask < 1<<len(ids); mask++ {
		trueSet := make(map[uint16]bool, len(ids))
		for i, id := range ids {
			if mask&(1<<i) != 0 {
				trueSet[id] = true
			}
		}
		product, ok := parsed.ProductOver(b.p, vals, trueSet)
		if !ok {
			continue
		}
		satisfied++
		if err := b.l2.add(product, vulnElem); err != nil {
			return fmt.Errorf("compiler: check %q: variable product collision; pick a different seed", check.Title)
		}
		if err := b.plantExprPath(start, terminal, product.Big().String()); err != nil {
			return fmt.Errorf("compiler: check %q: %w", check.Title, err)
		}
	}
	if satisfied == 0 {
		return &rubric.CheckError{Title: check.Title, Msg: "pass conditions are unsatisfiable"}
	}

	// The expression record itself, reachable from the 9-bit expression
	// identifier committed as a scalar.
	head := b.addVarList(ids)
	exprBody, err := descriptor.EncodeExprBody(b.p, descriptor.ExprBody{
		Expr:        exprStr,
		BlobIdx:     blobIdx,
		Tag:         tag,
		VarListHead: head,
		Start:       start,
	})
	if err != nil {
		return &rubric.CheckError{Title: check.Title, Msg: err.Error()}
	}
	exprRecIdx := uint32(len(b.records))
	exprRec := descriptor.Record{
		Header: descriptor.Header{Type: descriptor.TypeBoolExpr, ExprID: exprID},
		Body:   exprBody,
	}
	b.records = append(b.records, exprRec)
	exprElem, err := descriptor.Element(b.p, exprRec.Header, exprRecIdx)
	if err != nil {
		return err
	}
	if err := b.l2.add(b.scheme.CommitScalar(uint64(exprID)), exprElem); err != nil {
		return fmt.Errorf("compiler: expression key collision; pick a different seed")
	}
	return nil
}

// renderCondition walks the condition tree, collecting leaves in order and
// producing the expression string over their variable identifiers.
func (b *builder) renderCondition(c rubric.Condition, leaves *[]rubric.Leaf) string {
	switch t := c.(type) {
	case rubric.Leaf:
		b.nextVar++
		*leaves = append(*leaves, t)
		return strconv.Itoa(int(b.nextVar))
	case rubric.Group:
		sep := "&"
		if t.Op == "or" {
			sep = "|"
		}
		parts := make([]string, len(t.Subs))
		for i, sub := range t.Subs {
			s := b.renderCondition(sub, leaves)
			if _, isGroup := sub.(rubric.Group); isGroup {
				s = "(" + s + ")"
			}
			parts[i] = s
		}
		return strings.Join(parts, sep)
	}
	return ""
}

// plantLeaf emits the L1 records realizing one concrete check and the L2
// success point its passing evaluation resolves to.
func (b *builder) plantLeaf(title string, leaf rubric.Leaf, varID, exprID uint16) (leafInfo, error) {
	path := leaf.Args[0]
	hide := b.randHide()
	yh := b.randElement()
	info := leafInfo{varID: varID, yh: yh}

	setter := func(t descriptor.Type, body [descriptor.BodyLen]byte) descriptor.Record {
		return descriptor.Record{
			Header: descriptor.Header{Type: t, VarSetter: true, Hide: hide, VarID: varID, ExprID: exprID},
			Body:   body,
		}
	}
	emptyCI, err := descriptor.EncodeLiteralBody(descriptor.LiteralBody{})
	if err != nil {
		return info, err
	}
	unsetter := descriptor.Record{
		Header: descriptor.Header{Type: descriptor.TypeCaseInsensitive, VarID: varID, ExprID: exprID},
		Body:   emptyCI,
	}

	lowerSet := opv.New(opv.SET, path, nil).Lowercased()
	lowerDel := opv.New(opv.DELETE, path, nil).Lowercased()

	switch leaf.Check {
	case rubric.CheckExists:
		b.addL1(lowerSet, setter(descriptor.TypeCaseInsensitive, emptyCI))
		b.addL1(lowerDel, unsetter)
		return info, b.plantSuccess(lowerSet, hide, yh)

	case rubric.CheckAbsent:
		b.addL1(lowerDel, setter(descriptor.TypeCaseInsensitive, emptyCI))
		b.addL1(lowerSet, unsetter)
		return info, b.plantSuccess(lowerDel, hide, yh)

	case rubric.CheckIMatch:
		valueKey := opv.New(opv.SET, path, []byte(leaf.Args[1])).Lowercased()
		b.addL1(valueKey, setter(descriptor.TypeCaseInsensitive, emptyCI))
		b.addL1(lowerSet, unsetter)
		b.addL1(lowerDel, unsetter)
		return info, b.plantSuccess(valueKey, hide, yh)

	case rubric.CheckIRegex:
		dfa, err := automaton.CompileInsensitive(leaf.Args[1])
		if err != nil {
			return info, &rubric.CheckError{Title: title, Msg: err.Error()}
		}
		body, err := b.plantDFA(dfa)
		if err != nil {
			return info, &rubric.CheckError{Title: title, Msg: err.Error()}
		}
		b.addL1(lowerSet, setter(descriptor.TypeRegex, body))
		b.addL1(lowerDel, unsetter)
		return info, b.plantSuccess(lowerSet, hide, yh)

	case rubric.CheckRegex, rubric.CheckMatch:
		var dfa *automaton.DFA
		recType := descriptor.TypeCaseSensitive
		if leaf.Check == rubric.CheckRegex {
			recType = descriptor.TypeRegex
			dfa, err = automaton.Compile(leaf.Args[1])
			if err != nil {
				return info, &rubric.CheckError{Title: title, Msg: err.Error()}
			}
		} else {
			dfa, err = automaton.CompileLiteral([]byte(leaf.Args[1]))
			if err != nil {
				return info, &rubric.CheckError{Title: title, Msg: err.Error()}
			}
		}
		body, err := b.plantDFA(dfa)
		if err != nil {
			return info, &rubric.CheckError{Title: title, Msg: err.Error()}
		}

		// Case-sensitive payloads hide behind the lowercase index via a
		// redirect; the second pass commits the case-preserving path.
		b.addRedirect(lowerSet)
		caseKey := opv.New(opv.SET, path, nil)
		b.addL1(caseKey, setter(recType, body))
		b.addL1(lowerDel, unsetter)
		return info, b.plantSuccess(caseKey, hide, yh)
	}
	return info, &rubric.CheckError{Title: title, Msg: "unknown check type " + leaf.Check}
}

// plantSuccess records the L2 mapping from the offset commitment of the
// key tuple to the leaf's slot value.
func (b *builder) plantSuccess(key opv.OPV, hide uint16, yh field.Element) error {
	x := b.scheme.CommitWithOffset(key, hide)
	if err := b.l2.add(x, yh); err != nil {
		return fmt.Errorf("compiler: success key collision; pick a different seed")
	}
	return nil
}

// addL1 queues a record under the commitment of key; records sharing a key
// become a linked sequence at finalize time.
func (b *builder) addL1(key opv.OPV, rec descriptor.Record) {
	x := b.scheme.Commit(key)
	idx := uint32(len(b.records))
	b.records = append(b.records, rec)

	k := string(x.Bytes())
	if chain, ok := b.chainsByKey[k]; ok {
		chain.records = append(chain.records, idx)
		return
	}
	chain := &l1Chain{x: x, records: []uint32{idx}}
	b.chainsByKey[k] = chain
	b.chains = append(b.chains, chain)
}

// addRedirect plants at most one redirect record per lowercase key.
func (b *builder) addRedirect(lowerKey opv.OPV) {
	x := b.scheme.Commit(lowerKey)
	k := string(x.Bytes())
	if b.redirected[k] {
		return
	}
	b.redirected[k] = true
	b.addL1(lowerKey, descriptor.Record{
		Header: descriptor.Header{Type: descriptor.TypeRedirect},
	})
}

// finalizeChains links each key's records and plants the L1 points.
func (b *builder) finalizeChains() error {
	for _, chain := range b.chains {
		for i, idx := range chain.records {
			if i+1 < len(chain.records) {
				b.records[idx].HasNext = true
				b.records[idx].Next = chain.records[i+1]
			}
		}
		first := chain.records[0]
		elem, err := descriptor.Element(b.p, b.records[first].Header, first)
		if err != nil {
			return err
		}
		if err := b.l1.add(chain.x, elem); err != nil {
			return fmt.Errorf("compiler: lookup key collision; pick a different seed")
		}
	}
	return nil
}

// plantDFA embeds a compiled automaton into L3 under freshly allocated
// small-integer state identifiers and returns the content body naming its
// entry state and terminal element.
func (b *builder) plantDFA(d *automaton.DFA) ([descriptor.BodyLen]byte, error) {
	var body [descriptor.BodyLen]byte
	base := b.nextL3
	if uint64(base)+uint64(d.NumStates()) >= deadStateID {
		return body, fmt.Errorf("automaton state space exhausted")
	}
	b.nextL3 += uint32(d.NumStates())
	for s := 0; s < d.NumStates(); s++ {
		from := b.p.FromUint64(uint64(base) + uint64(s))

		// The fallback target is whichever target (the dead state
		// included) absorbs the most input bytes; everything else gets an
		// explicit entry.
		counts := make([]int, d.NumStates()+1) // index 0 is dead
		for input := 0; input < 256; input++ {
			counts[d.Trans[s][input]+1]++
		}
		def := int32(-1)
		best := 0
		for tgt, n := range counts {
			if n > best {
				best = n
				def = int32(tgt - 1)
			}
		}
		if def >= 0 {
			key := b.p.CantorPair(from, b.p.FromUint64(defaultInput))
			if err := b.l3.add(key, b.p.FromUint64(uint64(base)+uint64(def))); err != nil {
				return body, err
			}
		}

		for input := 0; input < 256; input++ {
			to := d.Trans[s][input]
			if to == def {
				continue
			}
			val := b.p.FromUint64(deadStateID)
			if to >= 0 {
				val = b.p.FromUint64(uint64(base) + uint64(to))
			}
			key := b.p.CantorPair(from, b.p.FromUint64(uint64(input)))
			if err := b.l3.add(key, val); err != nil {
				return body, err
			}
		}
	}
	if len(b.l3.xs) > maxL3Points {
		return body, fmt.Errorf("content patterns require %d automaton points; at most %d are supported", len(b.l3.xs), maxL3Points)
	}

	terminal := b.randElement()
	eoi := b.p.FromUint64(eoiInput)
	for s := 0; s < d.NumStates(); s++ {
		if !d.Accept[s] {
			continue
		}
		from := b.p.FromUint64(uint64(base) + uint64(s))
		if err := b.l3.add(b.p.CantorPair(from, eoi), terminal); err != nil {
			return body, err
		}
	}
	return descriptor.EncodeContentBody(b.p, descriptor.ContentBody{
		EntryState: base + uint32(d.Start),
		Terminal:   terminal,
	})
}

// plantExprPath inserts one accepted digit string into the expression
// automaton rooted at start, sharing prefixes with previously inserted
// strings and converging on the shared terminal state.
func (b *builder) plantExprPath(start, terminal field.Element, digits string) error {
	state := start
	for i := 0; i < len(digits); i++ {
		key := b.p.CantorPair(state, b.p.FromUint64(uint64(digits[i])))
		k := string(key.Bytes())
		last := i == len(digits)-1

		if next, ok := b.exprTrie[k]; ok {
			if last && !next.Equal(terminal) {
				return fmt.Errorf("expression automaton prefix collision; pick a different seed")
			}
			state = next
			continue
		}
		next := b.randElement()
		if last {
			next = terminal
		}
		b.exprTrie[k] = next
		if err := b.l2.add(key, next); err != nil {
			return fmt.Errorf("expression automaton key collision; pick a different seed")
		}
		state = next
	}
	return nil
}

// addVarList appends the expression's referenced variables as a linked
// sequence in the side table and returns the presence-marked head.
func (b *builder) addVarList(ids []uint16) uint32 {
	if len(ids) == 0 {
		return 0
	}
	head := uint32(len(b.varNodes))
	for i, id := range ids {
		node := descriptor.VarNode{VarID: id}
		if i+1 < len(ids) {
			node.HasNext = true
			node.Next = uint16(len(b.varNodes) + 1)
		}
		b.varNodes = append(b.varNodes, node)
	}
	return artifact.VarListHead(head)
}

// addDecoys mixes chaff points into every polynomial so coefficient counts
// do not leak live check counts.
func (b *builder) addDecoys(n int) {
	for _, set := range []*pointSet{b.l1, b.l2, b.l3} {
		for i := 0; i < n; {
			x := b.randElement()
			if set.has(x) {
				continue
			}
			// Chaff y values are unconstrained; a miss already signals
			// through the descriptor null bits.
			_ = set.add(x, b.randElement())
			i++
		}
	}
}

// randElement draws a uniform nonzero element below p from the builder's
// seeded stream.
func (b *builder) randElement() field.Element {
	byteLen := b.p.ByteLen()
	topBits := uint(b.p.Int().BitLen() % 8)
	buf := make([]byte, (byteLen+7)/8*8)
	for {
		for i := 0; i < len(buf); i += 8 {
			binary.BigEndian.PutUint64(buf[i:], b.rng.Uint64())
		}
		bs := buf[:byteLen]
		if topBits != 0 {
			bs[0] &= byte(1<<topBits) - 1
		}
		v := new(big.Int).SetBytes(bs)
		if v.Sign() != 0 && v.Cmp(b.p.Int()) < 0 {
			return b.p.New(v)
		}
	}
}

func (b *builder) randHide() uint16 {
	for {
		if h := uint16(b.rng.Uint32()); h != 0 {
			return h
		}
	}
}
