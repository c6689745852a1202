package host

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/module"
)

// Handle is the host's grip on one ready module instance. All operations go
// through it; the module's function table and instance handle never escape.
// Handles are safe for concurrent use, with calls into the module serialized
// per instance.
type Handle struct {
	host         *Host
	manifest     *abi.Manifest
	table        *module.Interface
	inst         *module.Instance
	streamCompat bool
	logger       *log.Logger

	mu       sync.Mutex
	state    State
	degraded bool
}

// State returns the instance's lifecycle state.
func (hd *Handle) State() State {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.state
}

// Manifest returns the manifest the instance was loaded from.
func (hd *Handle) Manifest() *abi.Manifest {
	return hd.manifest
}

// InstanceID returns the host-assigned instance number.
func (hd *Handle) InstanceID() uint32 {
	return hd.inst.ID()
}

// Degraded reports whether the last processing call failed. Reset clears it.
func (hd *Handle) Degraded() bool {
	hd.mu.Lock()
	defer hd.mu.Unlock()
	return hd.degraded
}

func (hd *Handle) ensureReady() error {
	switch hd.state {
	case StateReleased:
		return ErrReleased
	case StateReady:
		return nil
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, hd.state)
	}
}

// Process runs one processing call. For stream-compat modules the single
// source buffer is processed in place and, when a sink is supplied, the
// result is copied out; otherwise sources and sinks pass straight through
// to the module.
//
// A processing failure leaves the instance degraded: further Process calls
// are refused until Reset succeeds.
func (hd *Handle) Process(sources, sinks []*module.Buffer) error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return err
	}
	if hd.degraded {
		return ErrDegraded
	}

	var err error
	if hd.streamCompat {
		if len(sources) != 1 {
			return fmt.Errorf("%w: got %d", ErrStreamShape, len(sources))
		}
		err = hd.table.ProcessStream(hd.inst, sources[0])
		if err == nil && len(sinks) > 0 {
			sinks[0].Format = sources[0].Format
			copy(sinks[0].Data, sources[0].Data)
		}
	} else {
		err = hd.table.Process(hd.inst, sources, sinks)
	}

	if err != nil {
		hd.degraded = true
		hd.logger.Error("processing failed, instance degraded", "err", err)
		return fmt.Errorf("process: %w", err)
	}
	return nil
}

// SetProcessingMode switches the module between normal and bypass. Modules
// without the operation are skipped.
func (hd *Handle) SetProcessingMode(mode module.ProcessingMode) error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return err
	}
	if hd.table.SetProcessingMode == nil {
		hd.logger.Debug("set processing mode unsupported, skipped", "mode", mode)
		return nil
	}
	if err := hd.table.SetProcessingMode(hd.inst, mode); err != nil {
		return fmt.Errorf("set processing mode: %w", err)
	}
	return nil
}

// ProcessingMode reports the module's current processing mode.
func (hd *Handle) ProcessingMode() (module.ProcessingMode, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return module.ProcessingModeNormal, err
	}
	if hd.table.GetProcessingMode == nil {
		return module.ProcessingModeNormal, ErrNotSupported
	}
	return hd.table.GetProcessingMode(hd.inst), nil
}

// SetConfiguration applies a configuration fragment. Modules without the
// operation are skipped; a module rejection passes through with the prior
// configuration intact.
func (hd *Handle) SetConfiguration(configID uint32, fragment []byte) error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return err
	}
	if hd.table.SetConfiguration == nil {
		hd.logger.Debug("set configuration unsupported, skipped", "config_id", configID)
		return nil
	}
	if err := hd.table.SetConfiguration(hd.inst, configID, fragment); err != nil {
		return fmt.Errorf("set configuration %d: %w", configID, err)
	}
	return nil
}

// Configuration returns the module's current configuration fragment.
func (hd *Handle) Configuration(configID uint32) ([]byte, error) {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return nil, err
	}
	if hd.table.GetConfiguration == nil {
		return nil, ErrNotSupported
	}
	return hd.table.GetConfiguration(hd.inst, configID)
}

// Reset returns the instance to its just-initialized state and clears the
// degraded flag. Resetting an already-clean instance is a no-op for the
// host.
func (hd *Handle) Reset() error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if err := hd.ensureReady(); err != nil {
		return err
	}
	if hd.table.Reset != nil {
		if err := hd.table.Reset(hd.inst); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	hd.degraded = false
	return nil
}

// Release frees the module's private data and retires the instance. The
// handle is permanently inert afterwards; releasing twice is harmless.
func (hd *Handle) Release() error {
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if hd.state == StateReleased {
		return nil
	}
	hd.state = StateReleased
	hd.host.releaseSlot(hd.inst.UUID())

	if hd.table.Free != nil {
		if err := hd.table.Free(hd.inst); err != nil {
			return fmt.Errorf("free: %w", err)
		}
	}
	hd.logger.Info("module instance released")
	return nil
}
