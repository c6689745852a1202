package abi

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

// Manifest layout constants.
const (
	// ManifestSize is the encoded size of a module manifest record.
	ManifestSize = 96

	// NameSize is the fixed width of the manifest name field.
	NameSize = 8
)

// Type flag bits in Manifest.Type.
const (
	// LoadTypeLoadable marks a dynamically loaded module. Unset means the
	// module is linked into the base firmware.
	LoadTypeLoadable uint32 = 1 << 0

	// DomainLL schedules the module in the low-latency pipeline domain.
	DomainLL uint32 = 1 << 1

	// DomainDP schedules the module in the deferred data-processing domain.
	DomainDP uint32 = 1 << 2

	// StreamCompat marks a module whose table carries the deprecated
	// stream-processing operation instead of the sink/source one. The host
	// selects the processing slot from this bit, never by probing the table.
	StreamCompat uint32 = 1 << 3
)

// Manifest validation errors.
var (
	ErrInvalidManifest = errors.New("invalid module manifest")
	ErrNameTooLong     = errors.New("module name exceeds 8 bytes")
	ErrNameNotASCII    = errors.New("module name must be printable ASCII")
	ErrZeroUUID        = errors.New("module uuid must not be zero")
	ErrZeroEntryPoint  = errors.New("module entry point must not be zero")
	ErrZeroAffinity    = errors.New("module affinity mask must not be zero")
	ErrZeroInstanceMax = errors.New("module instance max count must not be zero")
)

// Manifest is the module descriptor record. The developer authors the
// identity and scheduling fields at module build time; BaseAddress comes from
// the placement configuration and FileOffset, PayloadSize, RawSize and Hash
// are computed by the image builder. Once packed into a signed image the
// record is immutable.
//
// Layout (96 bytes, little-endian):
//
//	0   name      [8]byte, NUL-padded ASCII, diagnostics only
//	8   uuid      [16]byte
//	24  entry_point        u32, offset into the module binary
//	28  type               u32, flag bits above
//	32  affinity_mask      u32
//	36  instance_max_count u32
//	40  base_address       u32
//	44  file_offset        u32
//	48  payload_size       u32 (compressed, as stored in the image)
//	52  raw_size           u32 (uncompressed module binary)
//	56  hash      [32]byte, BLAKE3 of the uncompressed binary
//	88  reserved  [8]byte, zero
type Manifest struct {
	Name             string
	UUID             types.UUID
	EntryPoint       uint32
	Type             uint32
	AffinityMask     uint32
	InstanceMaxCount uint32

	// Builder-computed fields. Zero until image assembly finalizes them.
	BaseAddress uint32
	FileOffset  uint32
	PayloadSize uint32
	RawSize     uint32
	Hash        types.Digest
}

// Validate checks the developer-authored fields. Builder-computed fields are
// not inspected so the same check applies before and after finalization.
func (m *Manifest) Validate() error {
	if len(m.Name) > NameSize {
		return fmt.Errorf("%w: %q", ErrNameTooLong, m.Name)
	}
	for i := 0; i < len(m.Name); i++ {
		if m.Name[i] < 0x20 || m.Name[i] > 0x7e {
			return fmt.Errorf("%w: %q", ErrNameNotASCII, m.Name)
		}
	}
	if m.UUID.IsZero() {
		return ErrZeroUUID
	}
	if m.EntryPoint == 0 {
		return ErrZeroEntryPoint
	}
	if m.AffinityMask == 0 {
		return ErrZeroAffinity
	}
	// A zero limit would make the module unloadable under any host policy.
	if m.InstanceMaxCount == 0 {
		return ErrZeroInstanceMax
	}
	return nil
}

// IsLoadable reports whether the module is dynamically loaded.
func (m *Manifest) IsLoadable() bool {
	return m.Type&LoadTypeLoadable != 0
}

// IsStreamCompat reports whether the module negotiated the deprecated
// stream-processing operation.
func (m *Manifest) IsStreamCompat() bool {
	return m.Type&StreamCompat != 0
}

// Encode returns the 96-byte manifest record.
func (m *Manifest) Encode() ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, ManifestSize)
	copy(buf[0:NameSize], m.Name)
	copy(buf[8:24], m.UUID[:])
	binary.LittleEndian.PutUint32(buf[24:28], m.EntryPoint)
	binary.LittleEndian.PutUint32(buf[28:32], m.Type)
	binary.LittleEndian.PutUint32(buf[32:36], m.AffinityMask)
	binary.LittleEndian.PutUint32(buf[36:40], m.InstanceMaxCount)
	binary.LittleEndian.PutUint32(buf[40:44], m.BaseAddress)
	binary.LittleEndian.PutUint32(buf[44:48], m.FileOffset)
	binary.LittleEndian.PutUint32(buf[48:52], m.PayloadSize)
	binary.LittleEndian.PutUint32(buf[52:56], m.RawSize)
	copy(buf[56:88], m.Hash[:])
	return buf, nil
}

// ParseManifest decodes a manifest record from the start of data.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) < ManifestSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidManifest, len(data), ManifestSize)
	}

	m := &Manifest{}
	m.Name = parseName(data[0:NameSize])
	uuid, err := types.UUIDFromBytes(data[8:24])
	if err != nil {
		return nil, err
	}
	m.UUID = uuid
	m.EntryPoint = binary.LittleEndian.Uint32(data[24:28])
	m.Type = binary.LittleEndian.Uint32(data[28:32])
	m.AffinityMask = binary.LittleEndian.Uint32(data[32:36])
	m.InstanceMaxCount = binary.LittleEndian.Uint32(data[36:40])
	m.BaseAddress = binary.LittleEndian.Uint32(data[40:44])
	m.FileOffset = binary.LittleEndian.Uint32(data[44:48])
	m.PayloadSize = binary.LittleEndian.Uint32(data[48:52])
	m.RawSize = binary.LittleEndian.Uint32(data[52:56])
	hash, err := types.DigestFromBytes(data[56:88])
	if err != nil {
		return nil, err
	}
	m.Hash = hash

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// parseName strips the NUL padding from a fixed-width name field.
func parseName(field []byte) string {
	end := len(field)
	for i, b := range field {
		if b == 0 {
			end = i
			break
		}
	}
	return string(field[:end])
}
