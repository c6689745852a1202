package module

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thesofproject/sof-lmdk/internal/types"
)

var (
	// ErrAlreadyRegistered is returned when a uuid is registered twice.
	ErrAlreadyRegistered = errors.New("entry point already registered for uuid")

	// ErrNilEntryPoint is returned when registering a nil entry point.
	ErrNilEntryPoint = errors.New("entry point must not be nil")
)

// Registry resolves module uuids to entry points. It is the hosted analog of
// the manifest's entry-point address: the image names the module, the
// registry supplies the code.
type Registry struct {
	mu      sync.RWMutex
	entries map[types.UUID]EntryPoint
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[types.UUID]EntryPoint)}
}

// Register binds an entry point to a module uuid.
func (r *Registry) Register(uuid types.UUID, ep EntryPoint) error {
	if ep == nil {
		return ErrNilEntryPoint
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[uuid]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, uuid)
	}
	r.entries[uuid] = ep
	return nil
}

// Lookup returns the entry point registered for uuid.
func (r *Registry) Lookup(uuid types.UUID) (EntryPoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.entries[uuid]
	return ep, ok
}

// Len returns the number of registered entry points.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
