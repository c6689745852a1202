// Package image assembles, signs, reads and catalogs library images: the
// distributable artifact holding one or more finalized module manifests and
// their compressed binaries. Assembly is where every cross-module invariant
// is enforced; a violation aborts the build and no image is produced.
package image

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
)

// ImageMagic identifies a library image. Spells "SLIB" in the file.
const ImageMagic uint32 = 0x42494C53

// FormatVersion is the image container format revision.
const FormatVersion uint16 = 1

// Layout constants.
const (
	// HeaderSize is the encoded header length. The Ed25519 signature over
	// these bytes sits at the very end of the file.
	HeaderSize = 120

	// LibraryNameSize is the fixed width of the header's name field.
	LibraryNameSize = 16

	// MaxModules bounds the module count in one image.
	MaxModules = 64
)

var (
	// ErrInvalidImage is returned for a malformed image file.
	ErrInvalidImage = errors.New("invalid library image")

	// ErrLibraryNameTooLong is returned when the library name exceeds the
	// header field.
	ErrLibraryNameTooLong = errors.New("library name exceeds 16 bytes")

	// ErrTooManyModules is returned when an image exceeds MaxModules.
	ErrTooManyModules = errors.New("too many modules for one image")
)

// Header is the fixed-layout image header.
//
// Layout (120 bytes, little-endian):
//
//	0   magic          u32
//	4   format_version u16
//	6   module_count   u16
//	8   library name   [16]byte, NUL-padded
//	24  public key     [32]byte
//	56  key fingerprint [32]byte, SHA3-256 of the public key
//	88  digest         [32]byte, BLAKE3 of manifest table || payloads
type Header struct {
	FormatVersion uint16
	ModuleCount   uint16
	Library       string
	PublicKey     ed25519.PublicKey
	Fingerprint   types.Digest
	Digest        types.Digest
}

// Encode returns the 120-byte header.
func (h *Header) Encode() ([]byte, error) {
	if len(h.Library) > LibraryNameSize {
		return nil, fmt.Errorf("%w: %q", ErrLibraryNameTooLong, h.Library)
	}
	if len(h.PublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: bad public key length %d", ErrInvalidImage, len(h.PublicKey))
	}

	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], ImageMagic)
	binary.LittleEndian.PutUint16(buf[4:6], h.FormatVersion)
	binary.LittleEndian.PutUint16(buf[6:8], h.ModuleCount)
	copy(buf[8:24], h.Library)
	copy(buf[24:56], h.PublicKey)
	copy(buf[56:88], h.Fingerprint[:])
	copy(buf[88:120], h.Digest[:])
	return buf, nil
}

// ParseHeader decodes an image header from the start of data.
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidImage, len(data), HeaderSize)
	}
	if binary.LittleEndian.Uint32(data[0:4]) != ImageMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidImage)
	}

	h := &Header{
		FormatVersion: binary.LittleEndian.Uint16(data[4:6]),
		ModuleCount:   binary.LittleEndian.Uint16(data[6:8]),
	}
	if h.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d", ErrInvalidImage, h.FormatVersion)
	}
	if h.ModuleCount == 0 || h.ModuleCount > MaxModules {
		return nil, fmt.Errorf("%w: module count %d", ErrInvalidImage, h.ModuleCount)
	}

	h.Library = trimName(data[8:24])
	h.PublicKey = ed25519.PublicKey(append([]byte(nil), data[24:56]...))

	var err error
	h.Fingerprint, err = types.DigestFromBytes(data[56:88])
	if err != nil {
		return nil, err
	}
	h.Digest, err = types.DigestFromBytes(data[88:120])
	if err != nil {
		return nil, err
	}
	return h, nil
}

// manifestTableSize returns the byte length of the manifest table for n
// modules.
func manifestTableSize(n int) int {
	return n * abi.ManifestSize
}

// payloadBase returns the file offset where compressed payloads begin.
func payloadBase(n int) int {
	return HeaderSize + manifestTableSize(n)
}

func trimName(field []byte) string {
	end := len(field)
	for i, b := range field {
		if b == 0 {
			end = i
			break
		}
	}
	return string(field[:end])
}
