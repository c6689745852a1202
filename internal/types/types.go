// Package types defines the fixed-size identity and integrity types shared by
// the module ABI, the image builder and the host loader.
//
// All binary encodings are little-endian and match the layouts baked into
// signed library images, so these types must never change size.
package types

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Size constants for core types.
const (
	UUIDSize      = 16
	DigestSize    = 32
	SignatureSize = 64
)

var (
	// ErrInvalidUUID is returned when a UUID has invalid length or format.
	ErrInvalidUUID = errors.New("invalid uuid: must be 16 bytes")

	// ErrInvalidDigest is returned when a digest has invalid length.
	ErrInvalidDigest = errors.New("invalid digest: must be 32 bytes")

	// ErrInvalidSignature is returned when a signature has invalid length.
	ErrInvalidSignature = errors.New("invalid signature: must be 64 bytes")
)

// UUID is the 16-byte module identifier. It is globally unique across all
// modules packed into one image; the module name is diagnostics only.
type UUID [UUIDSize]byte

// uuidGroupLens is the canonical 8-4-4-4-12 grouping.
var uuidGroupLens = [5]int{8, 4, 4, 4, 12}

// ParseUUID parses a canonical 8-4-4-4-12 hex UUID string.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	parts := strings.Split(s, "-")
	if len(parts) != len(uuidGroupLens) {
		return u, fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
	for i, part := range parts {
		if len(part) != uuidGroupLens[i] {
			return u, fmt.Errorf("%w: %q", ErrInvalidUUID, s)
		}
	}
	data, err := hex.DecodeString(strings.Join(parts, ""))
	if err != nil {
		return u, fmt.Errorf("%w: %q", ErrInvalidUUID, s)
	}
	copy(u[:], data)
	return u, nil
}

// MustParseUUID parses a canonical UUID string or panics. For package-level
// module identity constants only.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UUIDFromBytes creates a UUID from a byte slice.
func UUIDFromBytes(b []byte) (UUID, error) {
	var u UUID
	if len(b) != UUIDSize {
		return u, ErrInvalidUUID
	}
	copy(u[:], b)
	return u, nil
}

// String returns the canonical 8-4-4-4-12 representation.
func (u UUID) String() string {
	s := hex.EncodeToString(u[:])
	return s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32]
}

// IsZero returns true if the UUID is all zeros.
func (u UUID) IsZero() bool {
	return u == UUID{}
}

// Bytes returns the UUID as a byte slice.
func (u UUID) Bytes() []byte {
	return u[:]
}

// MarshalText implements encoding.TextMarshaler.
func (u UUID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// Digest is a 32-byte BLAKE3 content hash.
type Digest [DigestSize]byte

// ComputeDigest computes the BLAKE3 digest of data.
func ComputeDigest(data []byte) Digest {
	return blake3.Sum256(data)
}

// DigestFromBytes creates a Digest from a byte slice.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, ErrInvalidDigest
	}
	copy(d[:], b)
	return d, nil
}

// String returns the base58-encoded representation.
func (d Digest) String() string {
	return base58.Encode(d[:])
}

// Hex returns the hex-encoded representation.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// IsZero returns true if the digest is all zeros.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Equals returns true if two digests are equal.
func (d Digest) Equals(other Digest) bool {
	return d == other
}

// Bytes returns the digest as a byte slice.
func (d Digest) Bytes() []byte {
	return d[:]
}

// Signature is a 64-byte Ed25519 signature over an image header.
type Signature [SignatureSize]byte

// SignatureFromBytes creates a Signature from a byte slice.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, ErrInvalidSignature
	}
	copy(sig[:], b)
	return sig, nil
}

// String returns the base58-encoded representation.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// IsZero returns true if the signature is all zeros.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// Verify verifies this signature against a message and public key.
func (s Signature) Verify(pub ed25519.PublicKey, message []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, message, s[:])
}

// Bytes returns the signature as a byte slice.
func (s Signature) Bytes() []byte {
	return s[:]
}

// KeyFingerprint computes the SHA3-256 fingerprint of a signing public key.
// The fingerprint is embedded in image headers so tooling can name the key
// that produced an image without shipping the key itself.
func KeyFingerprint(pub ed25519.PublicKey) Digest {
	return sha3.Sum256(pub)
}
