// Package host implements the loading side of the loadable-module contract:
// it takes a verified library image, gates each module on ABI version, calls
// the module's entry point exactly once per instance, binds the returned
// function table, and drives the module through a typed handle for the rest
// of its lifetime.
package host

import (
	"crypto/ed25519"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/module"
)

// State is a module instance's position in the loading lifecycle. States
// only ever advance (or jump to Failed); a released instance never comes
// back.
type State uint32

const (
	// StateUnloaded is the initial state before any image work.
	StateUnloaded State = iota

	// StateVerified means the image's digest and signature checked out.
	StateVerified

	// StateEntered means the entry point was called and returned a table.
	StateEntered

	// StateBound means the function table passed shape validation.
	StateBound

	// StateReady means Init succeeded; the instance accepts operations.
	StateReady

	// StateReleased means the instance was freed and is permanently inert.
	StateReleased

	// StateFailed is terminal; the instance never accepted an operation.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateVerified:
		return "verified"
	case StateEntered:
		return "entered"
	case StateBound:
		return "bound"
	case StateReady:
		return "ready"
	case StateReleased:
		return "released"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrNoRegistry is returned when a host is built without a registry.
	ErrNoRegistry = errors.New("host requires an entry-point registry")

	// ErrUnknownModule is returned when no entry point is registered for a
	// module's uuid.
	ErrUnknownModule = errors.New("no entry point registered for module")

	// ErrMissingInit is returned when an entry point hands back a table
	// without Init.
	ErrMissingInit = errors.New("module table has no Init")

	// ErrTableMismatch is returned when the table's processing slot does
	// not agree with the manifest's stream-compat flag.
	ErrTableMismatch = errors.New("module table does not match manifest flags")

	// ErrNilTable is returned when an entry point succeeds but returns no
	// table.
	ErrNilTable = errors.New("entry point returned no function table")

	// ErrTooManyInstances is returned when a load would exceed the
	// manifest's instance limit.
	ErrTooManyInstances = errors.New("module instance limit reached")

	// ErrEntryReplayed is returned when an entry point would be invoked a
	// second time for the same instance. The contract is exactly once.
	ErrEntryReplayed = errors.New("entry point already invoked for instance")

	// ErrNotReady is returned for operations on an instance that is not in
	// the ready state.
	ErrNotReady = errors.New("module instance not ready")

	// ErrDegraded is returned for processing on an instance whose last
	// processing call failed. Reset clears it.
	ErrDegraded = errors.New("module instance degraded, reset required")

	// ErrReleased is returned for operations on a released instance.
	ErrReleased = errors.New("module instance released")

	// ErrNotSupported is returned when a module left an optional query
	// slot unpopulated.
	ErrNotSupported = errors.New("operation not supported by module")

	// ErrStreamShape is returned when a stream-compat module is handed
	// anything but a single stream buffer.
	ErrStreamShape = errors.New("stream-compat module takes exactly one source buffer")
)

// Config carries the host's collaborators.
type Config struct {
	// Registry resolves module uuids to entry points. Required.
	Registry *module.Registry

	// Supported is the set of ABI versions this host accepts. Defaults to
	// the current version only.
	Supported abi.VersionSet

	// TrustedKey, when set, is the only key image signatures may verify
	// against. Nil trusts each image's embedded key.
	TrustedKey ed25519.PublicKey

	// Logger receives lifecycle events. Defaults to the package default
	// logger.
	Logger *log.Logger
}

// Host loads module instances out of library images.
type Host struct {
	registry  *module.Registry
	supported abi.VersionSet
	trusted   ed25519.PublicKey
	logger    *log.Logger

	nextID atomic.Uint32

	mu     sync.Mutex
	counts map[types.UUID]uint32
}

// New builds a host from cfg.
func New(cfg Config) (*Host, error) {
	if cfg.Registry == nil {
		return nil, ErrNoRegistry
	}
	supported := cfg.Supported
	if len(supported) == 0 {
		supported = abi.DefaultVersionSet()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Host{
		registry:  cfg.Registry,
		supported: supported,
		trusted:   cfg.TrustedKey,
		logger:    logger,
		counts:    make(map[types.UUID]uint32),
	}, nil
}

func (h *Host) acquireSlot(uuid types.UUID, limit uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts[uuid] >= limit {
		return ErrTooManyInstances
	}
	h.counts[uuid]++
	return nil
}

func (h *Host) releaseSlot(uuid types.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.counts[uuid] > 0 {
		h.counts[uuid]--
	}
}
