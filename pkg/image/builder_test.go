package image

import (
	"crypto/ed25519"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/libconfig"
	"github.com/thesofproject/sof-lmdk/pkg/placement"
)

var (
	uuidA = types.MustParseUUID("11111111-2222-3333-4444-555555555555")
	uuidB = types.MustParseUUID("aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee")
)

// writeModuleBinary builds a synthetic module binary on disk and returns its
// path and raw bytes.
func writeModuleBinary(t *testing.T, dir, name string, uuid types.UUID, version abi.Version, codeSize int) (string, []byte) {
	t.Helper()

	m := abi.Manifest{
		Name:             name,
		UUID:             uuid,
		EntryPoint:       abi.MinBinarySize,
		Type:             abi.LoadTypeLoadable | abi.DomainLL,
		AffinityMask:     1,
		InstanceMaxCount: 1,
	}
	code := make([]byte, codeSize)
	for i := range code {
		code[i] = byte(i)
	}
	data, err := abi.BuildModuleBinary(abi.VersionTag{Version: version}, m, code)
	if err != nil {
		t.Fatalf("BuildModuleBinary(%s) failed: %v", name, err)
	}

	path := filepath.Join(dir, name+".bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile(%s) failed: %v", path, err)
	}
	return path, data
}

func testKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	return priv
}

func twoModuleConfig(t *testing.T, dir string, baseA, baseB uint32, codeSize int) (*libconfig.Config, []byte, []byte) {
	t.Helper()
	pathA, rawA := writeModuleBinary(t, dir, "MODA", uuidA, abi.CurrentVersion, codeSize)
	pathB, rawB := writeModuleBinary(t, dir, "MODB", uuidB, abi.CurrentVersion, codeSize)

	return &libconfig.Config{
		Library: libconfig.Library{Name: "demo_lib"},
		Modules: []libconfig.Module{
			{Binary: pathA, BaseAddress: baseA},
			{Binary: pathB, BaseAddress: baseB},
		},
	}, rawA, rawB
}

func TestBuildTwoModules(t *testing.T) {
	dir := t.TempDir()
	cfg, rawA, rawB := twoModuleConfig(t, dir, 0x1000, 0x2000, 256)
	key := testKey(t)

	data, result, err := Build(cfg, key, BuildOptions{})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if len(result.Manifests) != 2 {
		t.Fatalf("Manifests length = %d, want 2", len(result.Manifests))
	}

	mA, mB := result.Manifests[0], result.Manifests[1]

	if mA.BaseAddress != 0x1000 || mB.BaseAddress != 0x2000 {
		t.Errorf("base addresses = 0x%x, 0x%x", mA.BaseAddress, mB.BaseAddress)
	}
	if !mA.Hash.Equals(types.ComputeDigest(rawA)) {
		t.Error("module A content hash wrong")
	}
	if !mB.Hash.Equals(types.ComputeDigest(rawB)) {
		t.Error("module B content hash wrong")
	}
	if mA.RawSize != uint32(len(rawA)) || mB.RawSize != uint32(len(rawB)) {
		t.Error("raw sizes wrong")
	}

	// Offsets: A's payload starts right after the manifest table, B's
	// right after A's.
	wantA := uint32(payloadBase(2))
	if mA.FileOffset != wantA {
		t.Errorf("A FileOffset = %d, want %d", mA.FileOffset, wantA)
	}
	if mB.FileOffset != wantA+mA.PayloadSize {
		t.Errorf("B FileOffset = %d, want %d", mB.FileOffset, wantA+mA.PayloadSize)
	}

	// The signed artifact round-trips and verifies against the signer.
	img, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := img.Verify(key.Public().(ed25519.PublicKey)); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
	if img.Header.Library != "demo_lib" {
		t.Errorf("Library = %q, want demo_lib", img.Header.Library)
	}
}

func TestBuildOverlapFailsWithoutOutput(t *testing.T) {
	dir := t.TempDir()
	// 0x900 of code makes each binary larger than 0x800 bytes, so B at
	// 0x1800 lands inside A's range.
	cfg, _, _ := twoModuleConfig(t, dir, 0x1000, 0x1800, 0x900)

	out := filepath.Join(dir, "lib.img")
	_, err := BuildFile(cfg, testKey(t), out, BuildOptions{})
	if !errors.Is(err, placement.ErrOverlap) {
		t.Fatalf("BuildFile error = %v, want ErrOverlap", err)
	}

	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("overlapping build left an output image")
	}
}

func TestBuildDuplicateUUID(t *testing.T) {
	dir := t.TempDir()
	pathA, _ := writeModuleBinary(t, dir, "MODA", uuidA, abi.CurrentVersion, 64)
	pathB, _ := writeModuleBinary(t, dir, "MODB", uuidA, abi.CurrentVersion, 64)

	cfg := &libconfig.Config{
		Library: libconfig.Library{Name: "demo_lib"},
		Modules: []libconfig.Module{
			{Binary: pathA, BaseAddress: 0x1000},
			{Binary: pathB, BaseAddress: 0x2000},
		},
	}

	_, _, err := Build(cfg, testKey(t), BuildOptions{})
	if !errors.Is(err, ErrDuplicateUUID) {
		t.Fatalf("Build error = %v, want ErrDuplicateUUID", err)
	}
}

func TestBuildVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	old := abi.Version{Major: 1, Minor: 0}
	path, _ := writeModuleBinary(t, dir, "MODA", uuidA, old, 64)

	cfg := &libconfig.Config{
		Library: libconfig.Library{Name: "demo_lib"},
		Modules: []libconfig.Module{{Binary: path, BaseAddress: 0x1000}},
	}

	_, _, err := Build(cfg, testKey(t), BuildOptions{})
	if !errors.Is(err, abi.ErrVersionMismatch) {
		t.Fatalf("Build error = %v, want ErrVersionMismatch", err)
	}
}

func TestBuildUUIDCrossCheck(t *testing.T) {
	dir := t.TempDir()
	path, _ := writeModuleBinary(t, dir, "MODA", uuidA, abi.CurrentVersion, 64)

	cfg := &libconfig.Config{
		Library: libconfig.Library{Name: "demo_lib"},
		Modules: []libconfig.Module{{Binary: path, BaseAddress: 0x1000, UUID: uuidB}},
	}

	_, _, err := Build(cfg, testKey(t), BuildOptions{})
	if !errors.Is(err, ErrUUIDMismatch) {
		t.Fatalf("Build error = %v, want ErrUUIDMismatch", err)
	}
}

func TestBuildMissingBinary(t *testing.T) {
	cfg := &libconfig.Config{
		Library: libconfig.Library{Name: "demo_lib"},
		Modules: []libconfig.Module{{Binary: "/nonexistent/mod.bin", BaseAddress: 0x1000}},
	}
	if _, _, err := Build(cfg, testKey(t), BuildOptions{}); err == nil {
		t.Fatal("Build with missing binary succeeded")
	}
}

func TestBuildRequiresKey(t *testing.T) {
	cfg := &libconfig.Config{Library: libconfig.Library{Name: "lib"}}
	if _, _, err := Build(cfg, nil, BuildOptions{}); !errors.Is(err, ErrNoSigningKey) {
		t.Fatalf("Build error = %v, want ErrNoSigningKey", err)
	}
}
