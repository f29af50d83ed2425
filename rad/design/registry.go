// Package design builds a simulatable RAD cluster from port registrations,
// placement files, and clock files.
package design

import (
	"fmt"

	"github.com/radsim-arch/radsim/sim"
)

// PortRole tells whether a module port drives transactions into the fabric
// or receives them.
type PortRole int

// The roles a registered port can take.
const (
	RoleMaster PortRole = iota
	RoleSlave
)

func (r PortRole) String() string {
	switch r {
	case RoleMaster:
		return "master"
	case RoleSlave:
		return "slave"
	default:
		return "unknown"
	}
}

// A PortRecord is created when a module registers one of its ports. The
// builder consumes the records to wire adapters to routers.
type PortRecord struct {
	ModuleName   string
	Role         PortRole
	Port         sim.Port
	PayloadWidth int
	QueueDepth   int
}

// A Registry collects the port registrations of all application modules.
// Modules register at construction time, before the design is built.
type Registry struct {
	records map[string]*PortRecord
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*PortRecord),
	}
}

// RegisterMasterPort records a port that injects transactions into the
// fabric. Registering the same qualified name twice is a configuration
// fault.
func (r *Registry) RegisterMasterPort(
	name string,
	port sim.Port,
	payloadWidth, queueDepth int,
) {
	r.register(name, RoleMaster, port, payloadWidth, queueDepth)
}

// RegisterSlavePort records a port that receives transactions from the
// fabric.
func (r *Registry) RegisterSlavePort(
	name string,
	port sim.Port,
	payloadWidth, queueDepth int,
) {
	r.register(name, RoleSlave, port, payloadWidth, queueDepth)
}

func (r *Registry) register(
	name string,
	role PortRole,
	port sim.Port,
	payloadWidth, queueDepth int,
) {
	if name == "" {
		panic("port registered with an empty qualified name")
	}

	if _, dup := r.records[name]; dup {
		panic(fmt.Sprintf("port %s is already registered", name))
	}

	if port == nil {
		panic(fmt.Sprintf("port %s registered with a nil handle", name))
	}

	r.records[name] = &PortRecord{
		ModuleName:   name,
		Role:         role,
		Port:         port,
		PayloadWidth: payloadWidth,
		QueueDepth:   queueDepth,
	}
	r.order = append(r.order, name)
}

// Record returns the registration of a qualified name, or nil.
func (r *Registry) Record(name string) *PortRecord {
	return r.records[name]
}

// Names returns the registered qualified names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)

	return names
}
