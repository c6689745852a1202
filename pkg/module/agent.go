package module

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/thesofproject/sof-lmdk/pkg/abi"
)

// SystemAgent is the capability interface the host grants a module at
// entry-point time. The module holds a non-owning reference and may treat it
// as valid for the instance's entire lifetime; calls through it follow the
// host's concurrency contract.
type SystemAgent interface {
	// Logger returns the host logger scoped to this instance.
	Logger() *log.Logger

	// InstanceID returns the host-assigned instance number.
	InstanceID() uint32

	// HostVersion returns the ABI version the host was built against.
	HostVersion() abi.Version

	// Now returns the host's clock reading for deadline bookkeeping.
	Now() time.Time
}
