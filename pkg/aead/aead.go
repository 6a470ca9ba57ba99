// Package aead seals and unwraps vulnerability payloads. The construction
// is AES-128-GCM with a detached 16-byte tag and an all-zero nonce; keys
// are single-use by construction (one per sealed payload, derived from a
// secret only a passing check can compute), which is what makes the fixed
// nonce sound here. The key is the low 128 bits of SHA-256 over the
// canonical bytes of the deriving field element.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ajiang-xyz/zekaengine/pkg/field"
)

// TagLen is the detached authentication tag size.
const TagLen = 16

var zeroNonce [12]byte

// KeyFromElement derives the AES key from a terminal automaton state or
// success commitment.
func KeyFromElement(e field.Element) [16]byte {
	sum := sha256.Sum256(e.Bytes())
	var key [16]byte
	copy(key[:], sum[16:])
	return key
}

// Seal encrypts plaintext under key with the artifact-wide additional
// authenticated data, returning ciphertext and detached tag.
func Seal(key [16]byte, aad, plaintext []byte) (ciphertext []byte, tag [TagLen]byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, tag, err
	}
	sealed := gcm.Seal(nil, zeroNonce[:], plaintext, aad)
	ciphertext = sealed[:len(sealed)-TagLen]
	copy(tag[:], sealed[len(sealed)-TagLen:])
	return ciphertext, tag, nil
}

// Open authenticates and decrypts. A failure is reported as ok=false with
// no detail: an unauthentic payload is indistinguishable from an absent
// one.
func Open(key [16]byte, aad, ciphertext []byte, tag [TagLen]byte) ([]byte, bool) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, false
	}
	sealed := make([]byte, 0, len(ciphertext)+TagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)
	plain, err := gcm.Open(nil, zeroNonce[:], sealed, aad)
	if err != nil {
		return nil, false
	}
	return plain, true
}

func newGCM(key [16]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Secret is the sealed content of a vulnerability payload: what the
// competitor learns only at unlock time.
type Secret struct {
	Title    string
	Points   float64
	Category uint8
	SetOnce  bool
}

// EncodeSecret serializes a Secret for sealing.
func EncodeSecret(s Secret) ([]byte, error) {
	if len(s.Title) > 0xFFFF {
		return nil, fmt.Errorf("aead: title of %d bytes is too long", len(s.Title))
	}
	buf := make([]byte, 0, 12+len(s.Title))
	var pts [8]byte
	binary.BigEndian.PutUint64(pts[:], math.Float64bits(s.Points))
	buf = append(buf, pts[:]...)
	buf = append(buf, s.Category)
	if s.SetOnce {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	var tl [2]byte
	binary.BigEndian.PutUint16(tl[:], uint16(len(s.Title)))
	buf = append(buf, tl[:]...)
	buf = append(buf, s.Title...)
	return buf, nil
}

// DecodeSecret is the inverse of EncodeSecret.
func DecodeSecret(b []byte) (Secret, error) {
	if len(b) < 12 {
		return Secret{}, fmt.Errorf("aead: secret payload of %d bytes is truncated", len(b))
	}
	s := Secret{
		Points:   math.Float64frombits(binary.BigEndian.Uint64(b[:8])),
		Category: b[8],
		SetOnce:  b[9] == 1,
	}
	n := int(binary.BigEndian.Uint16(b[10:12]))
	if len(b) != 12+n {
		return Secret{}, fmt.Errorf("aead: secret payload length mismatch")
	}
	s.Title = string(b[12:])
	return s, nil
}
