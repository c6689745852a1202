package image

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
)

var (
	// ErrDigestMismatch is returned when image content does not match the
	// header digest.
	ErrDigestMismatch = errors.New("image digest mismatch")

	// ErrBadSignature is returned when the image signature does not verify.
	ErrBadSignature = errors.New("image signature verification failed")

	// ErrModuleNotFound is returned when a uuid is absent from an image.
	ErrModuleNotFound = errors.New("module not found in image")

	// ErrPayloadCorrupt is returned when a module payload fails its
	// per-module hash or size check.
	ErrPayloadCorrupt = errors.New("module payload corrupt")
)

// Image is a parsed library image. Parsing validates structure only;
// Verify must pass before manifests are acted upon.
type Image struct {
	Header    *Header
	Manifests []*abi.Manifest
	Signature types.Signature

	raw []byte
}

// Parse decodes an image from memory.
func Parse(data []byte) (*Image, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}

	n := int(header.ModuleCount)
	minSize := payloadBase(n) + types.SignatureSize
	if len(data) < minSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrInvalidImage, len(data), minSize)
	}

	manifests := make([]*abi.Manifest, 0, n)
	for i := 0; i < n; i++ {
		off := HeaderSize + i*abi.ManifestSize
		m, err := abi.ParseManifest(data[off : off+abi.ManifestSize])
		if err != nil {
			return nil, fmt.Errorf("manifest %d: %w", i, err)
		}
		end := int(m.FileOffset) + int(m.PayloadSize)
		if int(m.FileOffset) < payloadBase(n) || end > len(data)-types.SignatureSize {
			return nil, fmt.Errorf("%w: manifest %d payload out of bounds", ErrInvalidImage, i)
		}
		// Size fields are attacker-controlled until Verify passes, and
		// Verify(nil) only proves self-consistency. Bound them here so a
		// crafted manifest cannot drive a huge decode allocation later.
		if m.RawSize > abi.MaxBinarySize || m.PayloadSize > abi.MaxBinarySize {
			return nil, fmt.Errorf("%w: manifest %d declares %d raw bytes, limit %d",
				ErrInvalidImage, i, m.RawSize, abi.MaxBinarySize)
		}
		manifests = append(manifests, m)
	}

	sig, err := types.SignatureFromBytes(data[len(data)-types.SignatureSize:])
	if err != nil {
		return nil, err
	}

	return &Image{
		Header:    header,
		Manifests: manifests,
		Signature: sig,
		raw:       data,
	}, nil
}

// Open reads and parses an image file.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// VerifyDigest recomputes the content digest and compares it to the header.
func (img *Image) VerifyDigest() error {
	body := img.raw[HeaderSize : len(img.raw)-types.SignatureSize]
	if !types.ComputeDigest(body).Equals(img.Header.Digest) {
		return ErrDigestMismatch
	}
	return nil
}

// Verify checks the content digest and the Ed25519 signature over the
// header. When pub is nil the embedded public key is used, which proves
// integrity but not provenance; callers that care who signed pass their own
// trusted key.
func (img *Image) Verify(pub ed25519.PublicKey) error {
	if err := img.VerifyDigest(); err != nil {
		return err
	}
	if pub == nil {
		pub = img.Header.PublicKey
	}
	if !img.Signature.Verify(pub, img.raw[:HeaderSize]) {
		return ErrBadSignature
	}
	return nil
}

// Module returns the manifest for uuid.
func (img *Image) Module(uuid types.UUID) (*abi.Manifest, error) {
	for _, m := range img.Manifests {
		if m.UUID == uuid {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, uuid)
}

// Payload decompresses and integrity-checks the module binary for uuid.
func (img *Image) Payload(uuid types.UUID) ([]byte, error) {
	m, err := img.Module(uuid)
	if err != nil {
		return nil, err
	}

	compressed := img.raw[m.FileOffset : m.FileOffset+m.PayloadSize]
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init decompressor: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, make([]byte, 0, m.RawSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPayloadCorrupt, m.Name, err)
	}
	if uint32(len(raw)) != m.RawSize {
		return nil, fmt.Errorf("%w: %s: size %d, manifest says %d",
			ErrPayloadCorrupt, m.Name, len(raw), m.RawSize)
	}
	if !types.ComputeDigest(raw).Equals(m.Hash) {
		return nil, fmt.Errorf("%w: %s: content hash mismatch", ErrPayloadCorrupt, m.Name)
	}
	return raw, nil
}
