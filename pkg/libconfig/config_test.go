package libconfig

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

const sampleConfig = `
[library]
name = "demo_lib"
version = "1.0.0"

[[module]]
binary = "passthrough.bin"
base_address = 0x1000
uuid = "1e967a16-e48a-ea11-89f1-000c29ce1635"

[[module]]
binary = "gain.bin"
base_address = 0x2000
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Library.Name != "demo_lib" {
		t.Errorf("Library.Name = %q, want %q", cfg.Library.Name, "demo_lib")
	}
	if len(cfg.Modules) != 2 {
		t.Fatalf("Modules length = %d, want 2", len(cfg.Modules))
	}
	if cfg.Modules[0].BaseAddress != 0x1000 {
		t.Errorf("Modules[0].BaseAddress = 0x%x, want 0x1000", cfg.Modules[0].BaseAddress)
	}
	want := types.MustParseUUID("1e967a16-e48a-ea11-89f1-000c29ce1635")
	if cfg.Modules[0].UUID != want {
		t.Errorf("Modules[0].UUID = %s, want %s", cfg.Modules[0].UUID, want)
	}
	if !cfg.Modules[1].UUID.IsZero() {
		t.Errorf("Modules[1].UUID = %s, want zero", cfg.Modules[1].UUID)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			"no library name",
			"[library]\nversion = \"1\"\n[[module]]\nbinary = \"a.bin\"\nbase_address = 0x1000\n",
			ErrNoLibraryName,
		},
		{
			"no modules",
			"[library]\nname = \"lib\"\n",
			ErrNoModules,
		},
		{
			"no binary",
			"[library]\nname = \"lib\"\n[[module]]\nbase_address = 0x1000\n",
			ErrNoBinary,
		},
		{
			"no base address",
			"[library]\nname = \"lib\"\n[[module]]\nbinary = \"a.bin\"\n",
			ErrZeroBase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("malformed toml", func(t *testing.T) {
		if _, err := Parse([]byte("[library\nname =")); err == nil {
			t.Error("Parse() expected error for malformed TOML")
		}
	})

	t.Run("bad uuid", func(t *testing.T) {
		input := "[library]\nname = \"lib\"\n[[module]]\nbinary = \"a.bin\"\nbase_address = 0x1000\nuuid = \"not-a-uuid\"\n"
		if _, err := Parse([]byte(input)); err == nil {
			t.Error("Parse() expected error for bad uuid")
		}
	})
}

func TestLoadResolvesBinaryPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.toml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	got := cfg.BinaryPath(cfg.Modules[0])
	want := filepath.Join(dir, "passthrough.bin")
	if got != want {
		t.Errorf("BinaryPath = %q, want %q", got, want)
	}

	abs := Module{Binary: filepath.Join(dir, "abs.bin")}
	if cfg.BinaryPath(abs) != abs.Binary {
		t.Errorf("BinaryPath did not preserve absolute path")
	}
}
