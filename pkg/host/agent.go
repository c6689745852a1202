package host

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/thesofproject/sof-lmdk/pkg/abi"
)

// systemAgent is the capability handed to a module at entry time. It is
// scoped to one instance and stays valid until the instance is released.
type systemAgent struct {
	logger  *log.Logger
	id      uint32
	version abi.Version
}

func (a *systemAgent) Logger() *log.Logger { return a.logger }

func (a *systemAgent) InstanceID() uint32 { return a.id }

func (a *systemAgent) HostVersion() abi.Version { return a.version }

func (a *systemAgent) Now() time.Time { return time.Now() }
