// Package artifact reads and writes the compiled rubric file, conventionally
// `zeka.dat`. The artifact binds the prime, the generator seed, the AEAD
// additional data, the three Lagrange coefficient vectors, and the three
// side tables (descriptor records, variable-list nodes, ciphertext blobs)
// into a single read-only blob.
//
// Every pointer a descriptor can carry is validated once at open time;
// after that the scoring hot path trusts records without re-checking.
package artifact

import (
	"fmt"

	"github.com/ajiang-xyz/zekaengine/pkg/descriptor"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/lagrange"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
)

const (
	// Magic is the 8-byte file signature; the final byte doubles as the
	// format version and gates every open against an incompatible layout.
	Magic = "ZEKA\x00\x00\x00\x01"

	// CurrentArtifactVersion tracks the trailing magic byte. Increment it
	// only when the serialization layout or a locked cryptographic choice
	// (AES-128-GCM, SHA-256 key derivation) changes.
	CurrentArtifactVersion = 1

	// BlobEntryLen is the fixed side-table width of one ciphertext blob:
	// a 2-byte length followed by up to BlobMaxLen sealed bytes.
	BlobEntryLen = 160
	// BlobMaxLen bounds a single sealed vulnerability payload.
	BlobMaxLen = BlobEntryLen - 2
)

// Artifact is the fully decoded, validated rubric. It is immutable after
// load and safe to share across goroutines.
type Artifact struct {
	Title      string
	Prime      *field.Prime
	Seed       int64
	AAD        []byte
	Categories []models.Category

	L1, L2, L3 lagrange.Polynomial

	Records  []descriptor.Record
	VarNodes []descriptor.VarNode
	Blobs    [][]byte
}

// Record returns the side-table record at idx; the bool is false when idx
// is out of range, which scoring treats as a miss.
func (a *Artifact) Record(idx uint32) (descriptor.Record, bool) {
	if int(idx) >= len(a.Records) {
		return descriptor.Record{}, false
	}
	return a.Records[idx], true
}

// Blob returns the sealed payload at idx.
func (a *Artifact) Blob(idx uint32) ([]byte, bool) {
	if int(idx) >= len(a.Blobs) {
		return nil, false
	}
	return a.Blobs[idx], true
}

// VarList traverses the variable-reference linked sequence rooted at head.
// The high bit of head marks presence; a zero head without it is an empty
// list.
func (a *Artifact) VarList(head uint32) []uint16 {
	if head&(1<<31) == 0 {
		return nil
	}
	var out []uint16
	idx := head & 0xFFFFFF
	for {
		if int(idx) >= len(a.VarNodes) {
			return out
		}
		node := a.VarNodes[idx]
		out = append(out, node.VarID)
		if !node.HasNext {
			return out
		}
		idx = uint32(node.Next)
	}
}

// VarListHead packs a node index into the presence-marked head form.
func VarListHead(idx uint32) uint32 { return idx&0xFFFFFF | 1<<31 }

// EvalL1 evaluates the lowercase-keyed polynomial at x.
func (a *Artifact) EvalL1(x field.Element) field.Element { return a.L1.Eval(x, a.Prime) }

// EvalL2 evaluates the expression/derived-record polynomial at x.
func (a *Artifact) EvalL2(x field.Element) field.Element { return a.L2.Eval(x, a.Prime) }

// EvalL3 evaluates the content-automaton polynomial at x.
func (a *Artifact) EvalL3(x field.Element) field.Element { return a.L3.Eval(x, a.Prime) }

// validate performs the one-time boundary pass over every stored pointer.
func (a *Artifact) validate() error {
	if a.Prime == nil || a.Prime.Int().Sign() <= 0 {
		return fmt.Errorf("artifact: missing prime")
	}
	if a.Prime.ByteLen() < descriptor.HeaderLen+3 {
		return fmt.Errorf("artifact: prime too narrow to host descriptors")
	}
	if a.Prime.ByteLen() > descriptor.MaxElementWidth {
		return fmt.Errorf("artifact: prime of %d bytes exceeds the %d-byte record capacity", a.Prime.ByteLen(), descriptor.MaxElementWidth)
	}
	for _, c := range a.Categories {
		if !c.Valid() {
			return fmt.Errorf("artifact: unknown category id %d", uint8(c))
		}
	}
	for i, r := range a.Records {
		if r.HasNext && int(r.Next) >= len(a.Records) {
			return fmt.Errorf("artifact: record %d links past the record table", i)
		}
		switch r.Header.Type {
		case descriptor.TypeVulnInfo:
			b := descriptor.DecodeVulnBody(r.Body)
			if int(b.BlobIdx) >= len(a.Blobs) {
				return fmt.Errorf("artifact: record %d points past the blob table", i)
			}
		case descriptor.TypeBoolExpr:
			b, err := descriptor.DecodeExprBody(a.Prime, r.Body)
			if err != nil {
				return fmt.Errorf("artifact: record %d: %w", i, err)
			}
			if int(b.BlobIdx) >= len(a.Blobs) {
				return fmt.Errorf("artifact: record %d points past the blob table", i)
			}
			if b.VarListHead&(1<<31) != 0 && int(b.VarListHead&0xFFFFFF) >= len(a.VarNodes) {
				return fmt.Errorf("artifact: record %d points past the variable table", i)
			}
		case descriptor.TypeRegex, descriptor.TypeCaseSensitive:
			if _, err := descriptor.DecodeContentBody(a.Prime, r.Body); err != nil {
				return fmt.Errorf("artifact: record %d: %w", i, err)
			}
		}
	}
	for i, n := range a.VarNodes {
		if n.HasNext && int(n.Next) >= len(a.VarNodes) {
			return fmt.Errorf("artifact: variable node %d links past the table", i)
		}
	}
	for i, b := range a.Blobs {
		if len(b) > BlobMaxLen {
			return fmt.Errorf("artifact: blob %d of %d bytes exceeds %d", i, len(b), BlobMaxLen)
		}
	}
	return nil
}
