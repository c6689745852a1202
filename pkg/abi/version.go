// Package abi defines the binary contract between independently built DSP
// modules and the firmware host: the version tag read before anything else in
// a module binary is trusted, and the fixed-layout module manifest consumed
// by the image builder and the loader.
//
// All records are little-endian and live at fixed offsets so both sides can
// be compiled and shipped independently without layout negotiation.
package abi

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// VersionTagMagic identifies a version tag record. Spells "MVER" in the
// binary (little-endian).
const VersionTagMagic uint32 = 0x5245564D

// VersionTagSize is the encoded size of a version tag.
const VersionTagSize = 12

var (
	// ErrNoVersionTag is returned when the tag magic is absent or the record
	// is truncated.
	ErrNoVersionTag = errors.New("missing or malformed version tag")

	// ErrVersionMismatch is returned when a module's ABI version is outside
	// the host's supported set.
	ErrVersionMismatch = errors.New("module ABI version not supported")
)

// Version is an ABI version pair. Compatibility is an exact match on both
// components; BuildID never participates in the check.
type Version struct {
	Major uint16
	Minor uint16
}

// String returns the dotted representation.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// CurrentVersion is the ABI version this tree is built against.
var CurrentVersion = Version{Major: 4, Minor: 5}

// VersionTag is the fixed-layout record at offset 0 of every module binary.
// The host reads it before trusting any other byte of the module.
//
// Layout: magic u32 | api_major u16 | api_minor u16 | build_id u32.
type VersionTag struct {
	Version Version
	BuildID uint32
}

// ParseVersionTag decodes a version tag from the start of data.
func ParseVersionTag(data []byte) (*VersionTag, error) {
	if len(data) < VersionTagSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrNoVersionTag, len(data), VersionTagSize)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != VersionTagMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrNoVersionTag)
	}
	return &VersionTag{
		Version: Version{
			Major: binary.LittleEndian.Uint16(data[4:6]),
			Minor: binary.LittleEndian.Uint16(data[6:8]),
		},
		BuildID: binary.LittleEndian.Uint32(data[8:12]),
	}, nil
}

// Encode returns the 12-byte encoding of the tag.
func (t *VersionTag) Encode() []byte {
	buf := make([]byte, VersionTagSize)
	binary.LittleEndian.PutUint32(buf[0:4], VersionTagMagic)
	binary.LittleEndian.PutUint16(buf[4:6], t.Version.Major)
	binary.LittleEndian.PutUint16(buf[6:8], t.Version.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], t.BuildID)
	return buf
}

// VersionSet is the set of ABI versions a host (or builder) accepts.
type VersionSet []Version

// DefaultVersionSet accepts only the current ABI version.
func DefaultVersionSet() VersionSet {
	return VersionSet{CurrentVersion}
}

// Supports reports whether v is in the set (exact major.minor match).
func (s VersionSet) Supports(v Version) bool {
	for _, sv := range s {
		if sv == v {
			return true
		}
	}
	return false
}

// Check validates a module's version tag against the set. It is the
// compatibility gate: a failure here means the module never executes.
func (s VersionSet) Check(tag *VersionTag) error {
	if tag == nil {
		return ErrNoVersionTag
	}
	if !s.Supports(tag.Version) {
		return fmt.Errorf("%w: module built against %s, host supports %v",
			ErrVersionMismatch, tag.Version, []Version(s))
	}
	return nil
}
