package descriptor

import (
	"encoding/binary"
	"fmt"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

// The record body is a typed view over 124 fixed bytes. Each check type
// lays its fields out at fixed offsets; unused tail bytes stay zero.

// ContentBody backs TypeRegex and TypeCaseSensitive records: the compiled
// automaton's entry-state identifier and the terminal element a successful
// walk must reach.
type ContentBody struct {
	EntryState uint32
	Terminal   field.Element
}

// EncodeContentBody lays the body out as a 4-byte entry state followed by
// the terminal element in canonical form.
func EncodeContentBody(p *field.Prime, b ContentBody) ([BodyLen]byte, error) {
	var out [BodyLen]byte
	if p.ByteLen() > MaxElementWidth {
		return out, fmt.Errorf("descriptor: prime width %d exceeds record capacity %d", p.ByteLen(), MaxElementWidth)
	}
	binary.BigEndian.PutUint32(out[:4], b.EntryState)
	copy(out[4:4+p.ByteLen()], b.Terminal.Bytes())
	return out, nil
}

// DecodeContentBody is the inverse of EncodeContentBody.
func DecodeContentBody(p *field.Prime, body [BodyLen]byte) (ContentBody, error) {
	if p.ByteLen() > MaxElementWidth {
		return ContentBody{}, fmt.Errorf("descriptor: prime width %d exceeds record capacity %d", p.ByteLen(), MaxElementWidth)
	}
	terminal, err := p.FromCanonicalBytes(body[4 : 4+p.ByteLen()])
	if err != nil {
		return ContentBody{}, err
	}
	return ContentBody{
		EntryState: binary.BigEndian.Uint32(body[:4]),
		Terminal:   terminal,
	}, nil
}

// LiteralBody backs TypeCaseInsensitive records. A zero-length literal
// means presence alone satisfies the check (the value equality, if any, is
// already bound into the lookup key).
type LiteralBody struct {
	Literal []byte
}

const literalMaxLen = BodyLen - 1

// EncodeLiteralBody lays the body out as a length byte and the literal.
func EncodeLiteralBody(b LiteralBody) ([BodyLen]byte, error) {
	var out [BodyLen]byte
	if len(b.Literal) > literalMaxLen {
		return out, fmt.Errorf("descriptor: literal of %d bytes exceeds %d", len(b.Literal), literalMaxLen)
	}
	out[0] = byte(len(b.Literal))
	copy(out[1:], b.Literal)
	return out, nil
}

// DecodeLiteralBody is the inverse of EncodeLiteralBody.
func DecodeLiteralBody(body [BodyLen]byte) LiteralBody {
	n := int(body[0])
	lit := make([]byte, n)
	copy(lit, body[1:1+n])
	return LiteralBody{Literal: lit}
}

// ExprBody backs TypeBoolExpr records: the expression string over variable
// identifiers, the ciphertext blob the expression guards, its AEAD tag, the
// head of the variable-reference list, and the expression DFA's start
// state.
type ExprBody struct {
	Expr        string
	BlobIdx     uint32
	Tag         [16]byte
	VarListHead uint32 // high bit set when a list is present
	Start       field.Element
}

const (
	exprOffLen   = 0
	exprOffStr   = 1
	exprOffBlob  = exprOffStr + ExprMaxLen
	exprOffTag   = exprOffBlob + 4
	exprOffList  = exprOffTag + 16
	exprOffStart = exprOffList + 4
)

// EncodeExprBody packs the expression fields at their fixed offsets.
func EncodeExprBody(p *field.Prime, b ExprBody) ([BodyLen]byte, error) {
	var out [BodyLen]byte
	if len(b.Expr) > ExprMaxLen {
		return out, fmt.Errorf("descriptor: expression of %d bytes exceeds %d", len(b.Expr), ExprMaxLen)
	}
	if p.ByteLen() > MaxElementWidth {
		return out, fmt.Errorf("descriptor: prime width %d exceeds record capacity %d", p.ByteLen(), MaxElementWidth)
	}
	out[exprOffLen] = byte(len(b.Expr))
	copy(out[exprOffStr:], b.Expr)
	binary.BigEndian.PutUint32(out[exprOffBlob:], b.BlobIdx)
	copy(out[exprOffTag:], b.Tag[:])
	binary.BigEndian.PutUint32(out[exprOffList:], b.VarListHead)
	copy(out[exprOffStart:exprOffStart+p.ByteLen()], b.Start.Bytes())
	return out, nil
}

// DecodeExprBody is the inverse of EncodeExprBody.
func DecodeExprBody(p *field.Prime, body [BodyLen]byte) (ExprBody, error) {
	if p.ByteLen() > MaxElementWidth {
		return ExprBody{}, fmt.Errorf("descriptor: prime width %d exceeds record capacity %d", p.ByteLen(), MaxElementWidth)
	}
	n := int(body[exprOffLen])
	if n > ExprMaxLen {
		return ExprBody{}, fmt.Errorf("descriptor: expression length byte %d exceeds %d", n, ExprMaxLen)
	}
	start, err := p.FromCanonicalBytes(body[exprOffStart : exprOffStart+p.ByteLen()])
	if err != nil {
		return ExprBody{}, err
	}
	b := ExprBody{
		Expr:        string(body[exprOffStr : exprOffStr+n]),
		BlobIdx:     binary.BigEndian.Uint32(body[exprOffBlob:]),
		VarListHead: binary.BigEndian.Uint32(body[exprOffList:]),
		Start:       start,
	}
	copy(b.Tag[:], body[exprOffTag:])
	return b, nil
}

// VulnBody backs TypeVulnInfo records: the ciphertext blob holding the
// sealed (title, points, category) triple and its AEAD tag.
type VulnBody struct {
	BlobIdx uint32
	Tag     [16]byte
}

// EncodeVulnBody packs the pointer and tag.
func EncodeVulnBody(b VulnBody) [BodyLen]byte {
	var out [BodyLen]byte
	binary.BigEndian.PutUint32(out[:4], b.BlobIdx)
	copy(out[4:20], b.Tag[:])
	return out
}

// DecodeVulnBody is the inverse of EncodeVulnBody.
func DecodeVulnBody(body [BodyLen]byte) VulnBody {
	b := VulnBody{BlobIdx: binary.BigEndian.Uint32(body[:4])}
	copy(b.Tag[:], body[4:20])
	return b
}

// VarNode is one entry of the variable-reference side table, packed into a
// uint32: the high bit is the has-next flag, the variable identifier sits in
// bits 16..29, and the low 16 bits index the next node.
type VarNode struct {
	VarID   uint16
	HasNext bool
	Next    uint16
}

// PackVarNode serializes a node.
func PackVarNode(n VarNode) uint32 {
	v := uint32(n.VarID&0x3FFF)<<16 | uint32(n.Next)
	if n.HasNext {
		v |= 1 << 31
	}
	return v
}

// UnpackVarNode deserializes a node.
func UnpackVarNode(v uint32) VarNode {
	return VarNode{
		VarID:   uint16(v >> 16 & 0x3FFF),
		HasNext: v&(1<<31) != 0,
		Next:    uint16(v),
	}
}
