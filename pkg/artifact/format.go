package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"os"

	"github.com/ajiang-xyz/zekaengine/pkg/descriptor"
	"github.com/ajiang-xyz/zekaengine/pkg/field"
	"github.com/ajiang-xyz/zekaengine/pkg/lagrange"
	"github.com/ajiang-xyz/zekaengine/pkg/models"
)

// Wire layout. Length and count fields are little-endian; field elements
// are canonical big-endian. After the fixed header come six sections whose
// byte offsets (from the start of the file) are recorded in the header:
// L1, L2, L3 coefficient vectors, the record table, the variable-node
// table, and the blob table.

const headerOffsetCount = 6

// Encode serializes the artifact.
func (a *Artifact) Encode() ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	var head bytes.Buffer
	head.WriteString(Magic)

	primeBytes := a.Prime.Int().Bytes()
	writeU16(&head, len(primeBytes))
	head.Write(primeBytes)
	var seed [8]byte
	binary.LittleEndian.PutUint64(seed[:], uint64(a.Seed))
	head.Write(seed[:])
	writeU16(&head, len(a.AAD))
	head.Write(a.AAD)
	writeU16(&head, len(a.Title))
	head.WriteString(a.Title)
	head.WriteByte(byte(len(a.Categories)))
	for _, c := range a.Categories {
		head.WriteByte(byte(c))
	}
	writeU32(&head, len(a.L1))
	writeU32(&head, len(a.L2))
	writeU32(&head, len(a.L3))
	writeU32(&head, len(a.Records))
	writeU32(&head, len(a.VarNodes))
	writeU32(&head, len(a.Blobs))

	// Section offsets are relative to the start of the file; the header's
	// own length is known once the offset slots are included.
	headerLen := head.Len() + headerOffsetCount*8
	width := a.Prime.ByteLen()
	offsets := [headerOffsetCount]uint64{}
	cursor := uint64(headerLen)
	offsets[0] = cursor
	cursor += uint64(len(a.L1) * width)
	offsets[1] = cursor
	cursor += uint64(len(a.L2) * width)
	offsets[2] = cursor
	cursor += uint64(len(a.L3) * width)
	offsets[3] = cursor
	cursor += uint64(len(a.Records) * descriptor.RecordLen)
	offsets[4] = cursor
	cursor += uint64(len(a.VarNodes) * 4)
	offsets[5] = cursor
	cursor += uint64(len(a.Blobs) * BlobEntryLen)

	out := make([]byte, 0, cursor)
	out = append(out, head.Bytes()...)
	for _, off := range offsets {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], off)
		out = append(out, b[:]...)
	}

	for _, poly := range []lagrange.Polynomial{a.L1, a.L2, a.L3} {
		for _, coeff := range poly {
			out = append(out, coeff.Bytes()...)
		}
	}
	for _, r := range a.Records {
		enc, err := r.Encode()
		if err != nil {
			return nil, err
		}
		out = append(out, enc[:]...)
	}
	for _, n := range a.VarNodes {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], descriptor.PackVarNode(n))
		out = append(out, b[:]...)
	}
	for _, blob := range a.Blobs {
		entry := make([]byte, BlobEntryLen)
		binary.LittleEndian.PutUint16(entry, uint16(len(blob)))
		copy(entry[2:], blob)
		out = append(out, entry...)
	}
	if uint64(len(out)) != cursor {
		return nil, fmt.Errorf("artifact: encoded %d bytes, expected %d", len(out), cursor)
	}
	return out, nil
}

// Decode parses and validates an artifact image. Any inconsistency is
// fatal: a corrupt artifact must never reach scoring.
func Decode(data []byte) (*Artifact, error) {
	r := &reader{data: data}
	magic := r.take(len(Magic))
	if r.err != nil || string(magic) != Magic {
		return nil, fmt.Errorf("artifact: bad magic (version %d expected)", CurrentArtifactVersion)
	}

	primeLen := r.u16()
	primeBytes := r.take(primeLen)
	if r.err != nil {
		return nil, r.err
	}
	prime := field.NewPrime(new(big.Int).SetBytes(primeBytes))

	a := &Artifact{Prime: prime}
	a.Seed = int64(binary.LittleEndian.Uint64(r.take(8)))
	a.AAD = append([]byte(nil), r.take(r.u16())...)
	a.Title = string(r.take(r.u16()))
	catCount := int(r.byte())
	for i := 0; i < catCount; i++ {
		a.Categories = append(a.Categories, models.Category(r.byte()))
	}
	l1Count, l2Count, l3Count := r.u32(), r.u32(), r.u32()
	recCount, nodeCount, blobCount := r.u32(), r.u32(), r.u32()
	var offsets [headerOffsetCount]uint64
	for i := range offsets {
		off := r.take(8)
		if r.err != nil {
			return nil, r.err
		}
		offsets[i] = binary.LittleEndian.Uint64(off)
	}
	if r.err != nil {
		return nil, r.err
	}
	if offsets[0] != uint64(r.pos) {
		return nil, fmt.Errorf("artifact: first section offset %d disagrees with header end %d", offsets[0], r.pos)
	}

	// Length sanity before any count-sized allocation: a corrupt header
	// must fail cleanly, not balloon memory.
	width := prime.ByteLen()
	claimed := uint64(l1Count+l2Count+l3Count)*uint64(width) +
		uint64(recCount)*descriptor.RecordLen + uint64(nodeCount)*4 + uint64(blobCount)*BlobEntryLen
	if claimed > uint64(len(data)) {
		return nil, fmt.Errorf("artifact: header claims %d section bytes but file has %d", claimed, len(data))
	}

	readPoly := func(count int, offset uint64) (lagrange.Polynomial, error) {
		if uint64(r.pos) != offset {
			return nil, fmt.Errorf("artifact: section offset mismatch at %d", r.pos)
		}
		poly := make(lagrange.Polynomial, count)
		for i := range poly {
			coeff, err := prime.FromCanonicalBytes(r.take(width))
			if r.err != nil {
				return nil, r.err
			}
			if err != nil {
				return nil, fmt.Errorf("artifact: coefficient %d out of range: %w", i, err)
			}
			poly[i] = coeff
		}
		return poly, nil
	}

	var err error
	if a.L1, err = readPoly(l1Count, offsets[0]); err != nil {
		return nil, err
	}
	if a.L2, err = readPoly(l2Count, offsets[1]); err != nil {
		return nil, err
	}
	if a.L3, err = readPoly(l3Count, offsets[2]); err != nil {
		return nil, err
	}

	if uint64(r.pos) != offsets[3] {
		return nil, fmt.Errorf("artifact: record section offset mismatch")
	}
	for i := 0; i < recCount; i++ {
		var raw [descriptor.RecordLen]byte
		copy(raw[:], r.take(descriptor.RecordLen))
		if r.err != nil {
			return nil, r.err
		}
		rec, err := descriptor.DecodeRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("artifact: record %d: %w", i, err)
		}
		a.Records = append(a.Records, rec)
	}

	if uint64(r.pos) != offsets[4] {
		return nil, fmt.Errorf("artifact: variable section offset mismatch")
	}
	for i := 0; i < nodeCount; i++ {
		raw := r.take(4)
		if r.err != nil {
			return nil, r.err
		}
		a.VarNodes = append(a.VarNodes, descriptor.UnpackVarNode(binary.LittleEndian.Uint32(raw)))
	}

	if uint64(r.pos) != offsets[5] {
		return nil, fmt.Errorf("artifact: blob section offset mismatch")
	}
	for i := 0; i < blobCount; i++ {
		entry := r.take(BlobEntryLen)
		if r.err != nil {
			return nil, r.err
		}
		n := int(binary.LittleEndian.Uint16(entry))
		if n > BlobMaxLen {
			return nil, fmt.Errorf("artifact: blob %d length %d exceeds %d", i, n, BlobMaxLen)
		}
		a.Blobs = append(a.Blobs, append([]byte(nil), entry[2:2+n]...))
	}
	if r.pos != len(data) {
		return nil, fmt.Errorf("artifact: %d trailing bytes", len(data)-r.pos)
	}

	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Save writes the artifact to path.
func (a *Artifact) Save(path string) error {
	data, err := a.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, models.FilePermReadWrite)
}

// Load reads and validates the artifact at path.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func writeU16(buf *bytes.Buffer, v int) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v int) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	buf.Write(b[:])
}

// reader is a cursor with sticky error handling; a short read poisons all
// subsequent takes.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("artifact: truncated at byte %d", r.pos)
		return make([]byte, max(n, 0))
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) byte() byte { return r.take(1)[0] }

func (r *reader) u16() int {
	return int(binary.LittleEndian.Uint16(r.take(2)))
}

func (r *reader) u32() int {
	return int(binary.LittleEndian.Uint32(r.take(4)))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
