package abi

import (
	"errors"
	"fmt"
)

// Module binary layout. The version tag sits at offset 0 so it can be read
// before anything else in the binary is trusted; the manifest follows at a
// fixed offset; the remainder is opaque code and data.
const (
	VersionTagOffset = 0
	ManifestOffset   = 16
	MinBinarySize    = ManifestOffset + ManifestSize

	// MaxBinarySize bounds a single module binary. Placement addresses are
	// 32-bit, so anything near this limit is already a configuration error.
	MaxBinarySize = 16 * 1024 * 1024
)

var (
	// ErrBinaryTooSmall is returned when a module binary cannot hold the
	// fixed-offset records.
	ErrBinaryTooSmall = errors.New("module binary too small")

	// ErrBinaryTooLarge is returned when a module binary exceeds MaxBinarySize.
	ErrBinaryTooLarge = errors.New("module binary too large")

	// ErrEntryOutOfRange is returned when the manifest entry point does not
	// fall inside the module binary.
	ErrEntryOutOfRange = errors.New("entry point outside module binary")
)

// ModuleBinary is a parsed developer-built module artifact: the version tag,
// the authored manifest, and the full binary bytes the image builder packs.
type ModuleBinary struct {
	Tag      VersionTag
	Manifest Manifest
	Data     []byte
}

// ParseModuleBinary validates the fixed-offset records of a module binary.
// The tag is decoded first; nothing past it is touched if the tag is absent.
func ParseModuleBinary(data []byte) (*ModuleBinary, error) {
	if len(data) > MaxBinarySize {
		return nil, ErrBinaryTooLarge
	}
	if len(data) < MinBinarySize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrBinaryTooSmall, len(data), MinBinarySize)
	}

	tag, err := ParseVersionTag(data[VersionTagOffset:])
	if err != nil {
		return nil, err
	}

	manifest, err := ParseManifest(data[ManifestOffset:])
	if err != nil {
		return nil, err
	}

	if manifest.EntryPoint >= uint32(len(data)) {
		return nil, fmt.Errorf("%w: entry 0x%x, binary %d bytes",
			ErrEntryOutOfRange, manifest.EntryPoint, len(data))
	}

	return &ModuleBinary{
		Tag:      *tag,
		Manifest: *manifest,
		Data:     data,
	}, nil
}

// BuildModuleBinary assembles a module binary from a tag, a manifest and the
// compiled code section. Used by module build tooling and tests; the image
// builder only ever parses.
func BuildModuleBinary(tag VersionTag, manifest Manifest, code []byte) ([]byte, error) {
	encoded, err := manifest.Encode()
	if err != nil {
		return nil, err
	}

	data := make([]byte, MinBinarySize+len(code))
	copy(data[VersionTagOffset:], tag.Encode())
	copy(data[ManifestOffset:], encoded)
	copy(data[MinBinarySize:], code)

	if manifest.EntryPoint >= uint32(len(data)) {
		return nil, fmt.Errorf("%w: entry 0x%x, binary %d bytes",
			ErrEntryOutOfRange, manifest.EntryPoint, len(data))
	}
	return data, nil
}
