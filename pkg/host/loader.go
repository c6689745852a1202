package host

import (
	"fmt"
	"sync/atomic"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/image"
	"github.com/thesofproject/sof-lmdk/pkg/module"
)

// LoadModule walks one module from a library image through the full loading
// lifecycle and returns a ready handle. config is the IPC-delivered
// initial configuration passed through to the entry point untouched.
//
// The sequence is strict: the image is verified, the module binary's version
// tag is checked against the host's supported set, and only then is the
// entry point called. A version gate failure therefore means the module's
// code never ran. The entry point is called exactly once per instance; a
// failure at any step discards the instance and nothing of it survives.
func (h *Host) LoadModule(img *image.Image, uuid types.UUID, config []byte) (*Handle, error) {
	if err := img.Verify(h.trusted); err != nil {
		return nil, fmt.Errorf("verify image: %w", err)
	}

	manifest, err := img.Module(uuid)
	if err != nil {
		return nil, err
	}
	payload, err := img.Payload(uuid)
	if err != nil {
		return nil, err
	}
	bin, err := abi.ParseModuleBinary(payload)
	if err != nil {
		return nil, fmt.Errorf("module %s: %w", manifest.Name, err)
	}

	// Version gate. Runs before the entry point so incompatible code is
	// never executed.
	if err := h.supported.Check(&bin.Tag); err != nil {
		return nil, fmt.Errorf("module %s: %w", manifest.Name, err)
	}

	entry, ok := h.registry.Lookup(uuid)
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnknownModule, manifest.Name, uuid)
	}

	if err := h.acquireSlot(uuid, manifest.InstanceMaxCount); err != nil {
		return nil, fmt.Errorf("%w: %s allows %d", err, manifest.Name, manifest.InstanceMaxCount)
	}

	id := h.nextID.Add(1)
	logger := h.logger.With("module", manifest.Name, "instance", id)
	logger.Debug("image verified", "library", img.Header.Library,
		"version", bin.Tag.Version, "build", bin.Tag.BuildID)

	agent := &systemAgent{
		logger:  logger,
		id:      id,
		version: h.supported[0],
	}

	// Exactly one entry-point call per instance.
	var guard entryGuard
	table, err := guard.call(entry, config, agent)
	if err != nil {
		h.releaseSlot(uuid)
		return nil, fmt.Errorf("module %s entry: %w", manifest.Name, err)
	}
	if table == nil {
		h.releaseSlot(uuid)
		return nil, fmt.Errorf("%w: %s", ErrNilTable, manifest.Name)
	}

	streamCompat := manifest.Type&abi.StreamCompat != 0
	if err := validateTable(table, streamCompat); err != nil {
		h.releaseSlot(uuid)
		return nil, fmt.Errorf("module %s: %w", manifest.Name, err)
	}
	logger.Debug("function table bound", "stream_compat", streamCompat)

	inst := module.NewInstance(uuid, id)
	if err := table.Init(inst); err != nil {
		h.releaseSlot(uuid)
		return nil, fmt.Errorf("module %s init: %w", manifest.Name, err)
	}
	logger.Info("module instance ready")

	return &Handle{
		host:         h,
		manifest:     manifest,
		table:        table,
		inst:         inst,
		streamCompat: streamCompat,
		logger:       logger,
		state:        StateReady,
	}, nil
}

// entryGuard enforces the once-per-instance entry protocol. The loader's
// control flow already calls once; the guard turns a future regression into
// a protocol error instead of a silent double entry.
type entryGuard struct {
	called atomic.Bool
}

func (g *entryGuard) call(entry module.EntryPoint, config []byte, agent module.SystemAgent) (*module.Interface, error) {
	if !g.called.CompareAndSwap(false, true) {
		return nil, ErrEntryReplayed
	}
	return entry(config, nil, agent)
}

// validateTable enforces the table's shape: Init is mandatory, and exactly
// the processing slot selected by the manifest's stream-compat flag must be
// populated. The variants are mutually exclusive; the host never probes the
// table to decide which one to call.
func validateTable(table *module.Interface, streamCompat bool) error {
	if table.Init == nil {
		return ErrMissingInit
	}
	if streamCompat {
		if table.ProcessStream == nil {
			return fmt.Errorf("%w: stream-compat flag set but no ProcessStream", ErrTableMismatch)
		}
		if table.Process != nil {
			return fmt.Errorf("%w: stream-compat flag set but Process also populated", ErrTableMismatch)
		}
	} else {
		if table.Process == nil {
			return fmt.Errorf("%w: no Process", ErrTableMismatch)
		}
		if table.ProcessStream != nil {
			return fmt.Errorf("%w: ProcessStream populated without stream-compat flag", ErrTableMismatch)
		}
	}
	return nil
}
