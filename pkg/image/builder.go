package image

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/libconfig"
	"github.com/thesofproject/sof-lmdk/pkg/placement"
)

var (
	// ErrDuplicateUUID is returned when two modules in one image share a
	// uuid.
	ErrDuplicateUUID = errors.New("duplicate module uuid in image")

	// ErrUUIDMismatch is returned when the configuration's uuid cross-check
	// disagrees with the manifest embedded in the binary.
	ErrUUIDMismatch = errors.New("config uuid does not match module binary")

	// ErrNoSigningKey is returned when assembly is attempted without a key.
	ErrNoSigningKey = errors.New("signing key is required")
)

// BuildOptions tunes image assembly.
type BuildOptions struct {
	// Supported is the ABI version set the builder accepts. Empty means
	// the default set.
	Supported abi.VersionSet

	// Logger receives per-module assembly progress. Nil disables it.
	Logger *log.Logger
}

// BuildResult describes a finished image.
type BuildResult struct {
	Library     string
	Manifests   []*abi.Manifest
	Digest      types.Digest
	Fingerprint types.Digest
	Signature   types.Signature
}

// Build assembles and signs a library image from a packaging configuration.
// It reads each module binary, validates the version tag, merges the placement
// configuration, enforces uuid uniqueness and placement non-overlap,
// computes file offsets and content hashes, and signs the result. Any
// violation fails the build; no partial image is returned.
func Build(cfg *libconfig.Config, key ed25519.PrivateKey, opts BuildOptions) ([]byte, *BuildResult, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, nil, ErrNoSigningKey
	}
	supported := opts.Supported
	if len(supported) == 0 {
		supported = abi.DefaultVersionSet()
	}
	if len(cfg.Modules) > MaxModules {
		return nil, nil, fmt.Errorf("%w: %d", ErrTooManyModules, len(cfg.Modules))
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("init compressor: %w", err)
	}
	defer enc.Close()

	var (
		manifests []*abi.Manifest
		payloads  [][]byte
		rules     []placement.Rule
		seen      = map[types.UUID]string{}
	)

	for _, mc := range cfg.Modules {
		path := cfg.BinaryPath(mc)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read module binary: %w", err)
		}

		bin, err := abi.ParseModuleBinary(data)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		if err := supported.Check(&bin.Tag); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}

		m := bin.Manifest
		if !mc.UUID.IsZero() && mc.UUID != m.UUID {
			return nil, nil, fmt.Errorf("%w: config %s, binary %s (%s)",
				ErrUUIDMismatch, mc.UUID, m.UUID, path)
		}
		if prev, ok := seen[m.UUID]; ok {
			return nil, nil, fmt.Errorf("%w: %s used by %s and %s",
				ErrDuplicateUUID, m.UUID, prev, m.Name)
		}
		seen[m.UUID] = m.Name

		m.BaseAddress = mc.BaseAddress
		m.RawSize = uint32(len(data))
		m.Hash = types.ComputeDigest(data)

		rules = append(rules, placement.Rule{
			Name: m.Name,
			UUID: m.UUID,
			Base: m.BaseAddress,
			Size: m.RawSize,
		})

		compressed := enc.EncodeAll(data, make([]byte, 0, len(data)))
		m.PayloadSize = uint32(len(compressed))
		payloads = append(payloads, compressed)
		manifests = append(manifests, &m)

		if opts.Logger != nil {
			opts.Logger.Debug("packed module",
				"name", m.Name, "uuid", m.UUID.String(),
				"base", fmt.Sprintf("0x%x", m.BaseAddress),
				"raw", m.RawSize, "compressed", m.PayloadSize)
		}
	}

	if err := placement.Validate(rules); err != nil {
		return nil, nil, err
	}

	// Finalize file offsets now that every compressed size is known.
	offset := uint32(payloadBase(len(manifests)))
	for _, m := range manifests {
		m.FileOffset = offset
		offset += m.PayloadSize
	}

	body := make([]byte, 0, int(offset)-HeaderSize)
	for _, m := range manifests {
		encoded, err := m.Encode()
		if err != nil {
			return nil, nil, err
		}
		body = append(body, encoded...)
	}
	for _, p := range payloads {
		body = append(body, p...)
	}

	pub := key.Public().(ed25519.PublicKey)
	header := &Header{
		FormatVersion: FormatVersion,
		ModuleCount:   uint16(len(manifests)),
		Library:       cfg.Library.Name,
		PublicKey:     pub,
		Fingerprint:   types.KeyFingerprint(pub),
		Digest:        types.ComputeDigest(body),
	}
	headerBytes, err := header.Encode()
	if err != nil {
		return nil, nil, err
	}

	sig, err := types.SignatureFromBytes(ed25519.Sign(key, headerBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("sign image: %w", err)
	}

	out := make([]byte, 0, len(headerBytes)+len(body)+types.SignatureSize)
	out = append(out, headerBytes...)
	out = append(out, body...)
	out = append(out, sig[:]...)

	return out, &BuildResult{
		Library:     cfg.Library.Name,
		Manifests:   manifests,
		Digest:      header.Digest,
		Fingerprint: header.Fingerprint,
		Signature:   sig,
	}, nil
}

// BuildFile assembles an image and writes it atomically: the file appears
// complete or not at all, so a failed build never leaves a partial image.
func BuildFile(cfg *libconfig.Config, key ed25519.PrivateKey, outPath string, opts BuildOptions) (*BuildResult, error) {
	data, result, err := Build(cfg, key, opts)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".lmdk-*")
	if err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write image: %w", err)
	}
	return result, nil
}
