// Package module defines the module side of the loadable-module contract:
// the function table a module hands back from its entry point, the instance
// handle threaded through every operation, the system-agent capability the
// host grants at entry time, and the registry the host uses to resolve a
// manifest's entry point to executable code.
package module

import (
	"errors"
)

// ProcessingMode selects how a ready module treats its signal path.
type ProcessingMode uint32

const (
	// ProcessingModeNormal runs the module's full processing.
	ProcessingModeNormal ProcessingMode = iota

	// ProcessingModeBypass passes audio through untouched while the module
	// retains its configuration.
	ProcessingModeBypass
)

func (m ProcessingMode) String() string {
	switch m {
	case ProcessingModeNormal:
		return "normal"
	case ProcessingModeBypass:
		return "bypass"
	default:
		return "unknown"
	}
}

// SampleFormat identifies the PCM layout of a buffer.
type SampleFormat uint32

const (
	FormatS16LE SampleFormat = iota
	FormatS24LE
	FormatS32LE
)

// BytesPerSample returns the storage width of one sample.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatS16LE {
		return 2
	}
	return 4
}

// Buffer is one processing buffer handed to a module operation. The host
// owns the backing storage; the module reads sources and writes sinks within
// a single call.
type Buffer struct {
	Format SampleFormat
	Data   []byte
}

// ErrInvalidConfiguration is the error modules return from their
// configuration operations when a fragment is rejected. The prior
// configuration must be retained.
var ErrInvalidConfiguration = errors.New("invalid module configuration")

// Interface is the fixed-shape function table returned by a module's entry
// point. The host owns the table for the instance's entire lifetime and
// drives the module only through it; every slot receives the owning instance
// handle so the module can reach its private data without a global registry.
//
// Init is the only hard requirement: a table without it is a load-time
// fatal error. Every other nil slot means "unsupported, skip".
//
// Process and ProcessStream are mutually exclusive: a module wires exactly
// one of them, and the host selects which by the StreamCompat manifest flag,
// never by probing the table.
type Interface struct {
	// Init binds the instance's private state. Called exactly once, right
	// after the entry point returns; failure discards the instance.
	Init func(inst *Instance) error

	// Process consumes source buffers and fills sink buffers.
	Process func(inst *Instance, sources, sinks []*Buffer) error

	// ProcessStream is the deprecated single-stream processing variant,
	// scheduled under stricter constraints and planned for removal.
	ProcessStream func(inst *Instance, stream *Buffer) error

	// SetProcessingMode switches between normal and bypass processing.
	SetProcessingMode func(inst *Instance, mode ProcessingMode) error

	// GetProcessingMode reports the current processing mode.
	GetProcessingMode func(inst *Instance) ProcessingMode

	// SetConfiguration applies a configuration fragment. A rejected
	// fragment leaves the prior configuration in place.
	SetConfiguration func(inst *Instance, configID uint32, fragment []byte) error

	// GetConfiguration returns the current configuration fragment.
	GetConfiguration func(inst *Instance, configID uint32) ([]byte, error)

	// Reset returns the instance to the state equivalent to just after
	// Init, with steady-state buffers cleared.
	Reset func(inst *Instance) error

	// Free releases the module's private data before the host discards the
	// instance.
	Free func(inst *Instance) error
}

// EntryPoint is the single function invoked once per module instance. It
// receives the IPC-delivered configuration bytes, a reserved value the
// module must treat as opaque, and the host's system-agent capability, and
// returns the populated function table.
type EntryPoint func(config []byte, reserved any, agent SystemAgent) (*Interface, error)
