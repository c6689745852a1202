package module

import (
	"github.com/thesofproject/sof-lmdk/internal/types"
)

// Instance is the per-instance handle the host threads through every
// function-table call. It carries the module's private data as a
// type-erased value: the host stores and returns it but never interprets
// it, and the value never crosses instances.
type Instance struct {
	uuid types.UUID
	id   uint32

	private any
}

// NewInstance creates an instance handle. Only the host loader constructs
// instances; modules receive them.
func NewInstance(uuid types.UUID, id uint32) *Instance {
	return &Instance{uuid: uuid, id: id}
}

// UUID returns the module identity this instance belongs to.
func (i *Instance) UUID() types.UUID {
	return i.uuid
}

// ID returns the host-assigned instance number.
func (i *Instance) ID() uint32 {
	return i.id
}

// SetPrivateData stores the module's private state on the instance.
func (i *Instance) SetPrivateData(v any) {
	i.private = v
}

// PrivateData returns the value stored by SetPrivateData, unchanged.
func (i *Instance) PrivateData() any {
	return i.private
}
