package mesh

import (
	"github.com/radsim-arch/radsim/sim"
)

// meshRoutingTable finds the next-hop port from the coordinate of the final
// destination, walking the X dimension before the Y dimension.
type meshRoutingTable struct {
	x, y                     int
	left, right, top, bottom sim.RemotePort
	local                    sim.RemotePort
	dstTable                 map[sim.RemotePort]*tile
}

// FindPort finds the next-hop port according to the coordinate of the final
// destination.
func (t *meshRoutingTable) FindPort(dst sim.RemotePort) sim.RemotePort {
	dstTile, found := t.dstTable[dst]
	if !found {
		return ""
	}

	dstX, dstY := dstTile.loc[0], dstTile.loc[1]

	switch {
	case dstX < t.x:
		return t.left
	case dstX > t.x:
		return t.right
	case dstY < t.y:
		return t.top
	case dstY > t.y:
		return t.bottom
	default:
		return t.local
	}
}

// DefineRoute does nothing. The destination table is shared across the mesh
// and filled in by the connector.
func (t *meshRoutingTable) DefineRoute(_, _ sim.RemotePort) {
	// Do nothing.
}

// DefineDefaultRoute sets the local port.
func (t *meshRoutingTable) DefineDefaultRoute(outputPort sim.RemotePort) {
	t.local = outputPort
}
