package design

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/networking/mesh"
	"github.com/radsim-arch/radsim/noc/networking/switching/adapter"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

// A DesignContext is the product of a successful build. It owns the fabric
// of every RAD and answers the address queries of application modules. The
// topology is static for the life of a run.
type DesignContext struct {
	Engine    sim.Engine
	Collector telemetry.Collector
	Scheme    addressing.Scheme
	Meshes    []*mesh.Connector
	Bridge    *Bridge

	portAddr     map[string]addressing.DestID
	portByAddr   map[addressing.DestID]sim.RemotePort
	radByAddr    map[addressing.DestID]int
	moduleFreq   map[string]sim.Freq
	bridgeRemote []sim.RemotePort
}

// GetPortDestinationID returns the packed address of a registered module
// port. Modules query it to populate outgoing transactions.
func (ctx *DesignContext) GetPortDestinationID(
	name string,
) (addressing.DestID, error) {
	id, found := ctx.portAddr[name]
	if !found {
		return 0, fmt.Errorf("module %s is not part of the design", name)
	}

	return id, nil
}

// ModuleFreq returns the clock frequency assigned to a module, or 0 if the
// module is unknown.
func (ctx *DesignContext) ModuleFreq(name string) sim.Freq {
	return ctx.moduleFreq[name]
}

// resolverFor creates the destination resolver of one RAD's adapters. A
// local address resolves to the addressed module port. A remote address
// resolves to the local side of the cluster bridge.
func (ctx *DesignContext) resolverFor(radID int) adapter.DestinationResolver {
	return func(id addressing.DestID) (sim.RemotePort, error) {
		targetRAD, found := ctx.radByAddr[id]
		if !found {
			return "", fmt.Errorf(
				"rad %d: no module port at address %d", radID, uint64(id))
		}

		if targetRAD == radID {
			return ctx.portByAddr[id], nil
		}

		if ctx.bridgeRemote == nil {
			return "", fmt.Errorf(
				"rad %d: address %d is on rad %d but the cluster "+
					"has no bridge", radID, uint64(id), targetRAD)
		}

		return ctx.bridgeRemote[radID], nil
	}
}
