// Package mesh builds 2D mesh fabrics out of routers, adapters, and channels.
package mesh

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/noc/networking/switching/adapter"
	"github.com/radsim-arch/radsim/noc/networking/switching/router"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

type tile struct {
	loc         [2]int
	devicePorts []sim.Port

	rt      *meshRoutingTable
	router  *router.Comp
	adapter *adapter.Comp
}

// A Connector creates a mesh of routers. Each occupied tile carries one
// router and one adapter. Neighboring routers are linked by channels that
// model the wire latency of the mesh.
type Connector struct {
	engine sim.Engine
	freq   sim.Freq

	networkName   string
	numVCs        int
	bufferDepth   int
	flitByteSize  int
	sendTimeout   uint64
	adapterFIFO   int
	pendingCap    int
	linkNumStages int
	linkCyclePer  int
	vcAllocPolicy string
	vcAllocIters  int
	routeDelay    int
	vcAllocDelay  int
	swAllocDelay  int
	creditDelay   int
	resolver      adapter.DestinationResolver
	collector     telemetry.Collector

	tiles    map[[2]int]*tile
	tileList []*tile
	dstTable map[sim.RemotePort]*tile

	width, height int
	established   bool
}

// NewConnector creates a mesh connector with default parameters.
func NewConnector() *Connector {
	return &Connector{
		freq:          1 * sim.GHz,
		numVCs:        2,
		bufferDepth:   4,
		flitByteSize:  32,
		adapterFIFO:   16,
		pendingCap:    64,
		linkNumStages: 1,
		linkCyclePer:  1,
		vcAllocPolicy: "islip",
		vcAllocIters:  1,
		routeDelay:    1,
		vcAllocDelay:  1,
		swAllocDelay:  1,
		creditDelay:   1,
		tiles:         make(map[[2]int]*tile),
		dstTable:      make(map[sim.RemotePort]*tile),
	}
}

// WithEngine sets the engine that drives the mesh.
func (c *Connector) WithEngine(e sim.Engine) *Connector {
	c.engine = e
	return c
}

// WithFreq sets the frequency that the routers and channels run at.
func (c *Connector) WithFreq(f sim.Freq) *Connector {
	c.freq = f
	return c
}

// WithNumVCs sets the number of virtual channels on every link.
func (c *Connector) WithNumVCs(n int) *Connector {
	c.numVCs = n
	return c
}

// WithBufferDepth sets the per-VC input buffer depth of every router.
func (c *Connector) WithBufferDepth(n int) *Connector {
	c.bufferDepth = n
	return c
}

// WithFlitByteSize sets the payload bytes per flit.
func (c *Connector) WithFlitByteSize(n int) *Connector {
	c.flitByteSize = n
	return c
}

// WithSendTimeout sets the injection timeout of the adapters, in cycles.
func (c *Connector) WithSendTimeout(cycles uint64) *Connector {
	c.sendTimeout = cycles
	return c
}

// WithAdapterFIFODepth sets the network-side buffer depth of the adapters.
func (c *Connector) WithAdapterFIFODepth(n int) *Connector {
	c.adapterFIFO = n
	return c
}

// WithPendingDeliveryCap sets the number of transactions each adapter may
// hold in assembly or awaiting delivery.
func (c *Connector) WithPendingDeliveryCap(n int) *Connector {
	c.pendingCap = n
	return c
}

// WithLinkParameters sets the pipeline shape of the channels between
// neighboring routers.
func (c *Connector) WithLinkParameters(numStages, cyclePerStage int) *Connector {
	c.linkNumStages = numStages
	c.linkCyclePer = cyclePerStage
	return c
}

// WithVCAllocator sets the allocation policy of the routers.
func (c *Connector) WithVCAllocator(policy string, iterations int) *Connector {
	c.vcAllocPolicy = policy
	c.vcAllocIters = iterations
	return c
}

// WithStageDelays sets the per-stage delays of the routers, in cycles.
func (c *Connector) WithStageDelays(
	routeDelay, vcAllocDelay, swAllocDelay, creditDelay int,
) *Connector {
	c.routeDelay = routeDelay
	c.vcAllocDelay = vcAllocDelay
	c.swAllocDelay = swAllocDelay
	c.creditDelay = creditDelay

	return c
}

// WithDestinationResolver sets the resolver shared by all adapters.
func (c *Connector) WithDestinationResolver(
	r adapter.DestinationResolver,
) *Connector {
	c.resolver = r
	return c
}

// WithTelemetryCollector sets the collector that observes the mesh.
func (c *Connector) WithTelemetryCollector(t telemetry.Collector) *Connector {
	c.collector = t
	return c
}

// CreateNetwork names the mesh to create.
func (c *Connector) CreateNetwork(name string) {
	sim.NameMustBeValid(name)
	c.networkName = name
}

// AddTile puts a group of module ports at a coordinate of the mesh. The
// ports share the adapter of the tile.
func (c *Connector) AddTile(loc [2]int, ports []sim.Port) {
	if c.established {
		panic("cannot add tiles after the network is established")
	}

	t, found := c.tiles[loc]
	if !found {
		t = &tile{loc: loc}
		c.tiles[loc] = t
		c.tileList = append(c.tileList, t)
	}

	for _, port := range ports {
		t.devicePorts = append(t.devicePorts, port)
		c.dstTable[port.AsRemote()] = t
	}

	if loc[0]+1 > c.width {
		c.width = loc[0] + 1
	}
	if loc[1]+1 > c.height {
		c.height = loc[1] + 1
	}
}

// Tiles returns the coordinates occupied by at least one port.
func (c *Connector) Tiles() [][2]int {
	locs := make([][2]int, 0, len(c.tileList))
	for _, t := range c.tileList {
		locs = append(locs, t.loc)
	}

	return locs
}

// EstablishNetwork creates the routers, adapters, and channels of the mesh.
func (c *Connector) EstablishNetwork() {
	if c.established {
		panic("network is already established")
	}
	c.established = true

	c.fillGrid()

	for _, t := range c.tileList {
		c.buildTile(t)
	}

	for _, t := range c.tileList {
		c.connectAdapter(t)
		c.connectNeighbors(t)
	}
}

// Adapter returns the adapter of the tile at the given coordinate.
func (c *Connector) Adapter(loc [2]int) *adapter.Comp {
	t, found := c.tiles[loc]
	if !found {
		return nil
	}

	return t.adapter
}

// Router returns the router of the tile at the given coordinate.
func (c *Connector) Router(loc [2]int) *router.Comp {
	t, found := c.tiles[loc]
	if !found {
		return nil
	}

	return t.router
}

// fillGrid creates empty tiles so that every coordinate inside the bounding
// box carries a router. Dimension-order routing requires a full grid.
func (c *Connector) fillGrid() {
	for x := 0; x < c.width; x++ {
		for y := 0; y < c.height; y++ {
			loc := [2]int{x, y}
			if _, found := c.tiles[loc]; found {
				continue
			}

			t := &tile{loc: loc}
			c.tiles[loc] = t
			c.tileList = append(c.tileList, t)
		}
	}
}

func (c *Connector) buildTile(t *tile) {
	t.rt = &meshRoutingTable{
		x:        t.loc[0],
		y:        t.loc[1],
		dstTable: c.dstTable,
	}

	routerName := fmt.Sprintf("%s.Router[%d][%d]",
		c.networkName, t.loc[0], t.loc[1])
	t.router = router.MakeBuilder().
		WithEngine(c.engine).
		WithFreq(c.freq).
		WithRoutingTable(t.rt).
		WithNumVCs(c.numVCs).
		WithBufferDepth(c.bufferDepth).
		WithVCAllocator(c.vcAllocPolicy, c.vcAllocIters).
		WithStageDelays(c.routeDelay, c.vcAllocDelay,
			c.swAllocDelay, c.creditDelay).
		Build(routerName)

	if len(t.devicePorts) == 0 {
		return
	}

	adapterName := fmt.Sprintf("%s.Adapter[%d][%d]",
		c.networkName, t.loc[0], t.loc[1])
	t.adapter = adapter.MakeBuilder().
		WithEngine(c.engine).
		WithFreq(c.freq).
		WithNumVCs(c.numVCs).
		WithFlitByteSize(c.flitByteSize).
		WithInitCredits(c.bufferDepth).
		WithSendTimeout(c.sendTimeout).
		WithNetworkPortBufSize(c.adapterFIFO).
		WithPendingDeliveryCap(c.pendingCap).
		WithDestinationResolver(c.resolver).
		WithTelemetryCollector(c.collector).
		Build(adapterName)

	for _, port := range t.devicePorts {
		t.adapter.PlugIn(port)
	}
}

// connectAdapter links the adapter of a tile to the local port of its
// router.
func (c *Connector) connectAdapter(t *tile) {
	if t.adapter == nil {
		return
	}

	localPort := sim.NewPort(t.router,
		c.numVCs*c.bufferDepth, c.numVCs*c.bufferDepth,
		t.router.Name()+".LocalPort")
	t.router.AddPort("Local", localPort)

	router.MakePortAdder(t.router, c.bufferDepth).
		WithPorts(localPort, t.adapter.NetworkPort.AsRemote()).
		AddPort()
	t.rt.DefineDefaultRoute(localPort.AsRemote())

	t.adapter.SetRouterPort(localPort.AsRemote())

	c.link(t.adapter.NetworkPort, localPort,
		fmt.Sprintf("%s.LocalChan[%d][%d]",
			c.networkName, t.loc[0], t.loc[1]))
}

// connectNeighbors links a tile's router to its right and bottom neighbors.
// Each link is created once, from the lower coordinate side.
func (c *Connector) connectNeighbors(t *tile) {
	right, found := c.tiles[[2]int{t.loc[0] + 1, t.loc[1]}]
	if found {
		c.linkRouters(t, right, "Right", "Left",
			fmt.Sprintf("%s.ChanX[%d][%d]",
				c.networkName, t.loc[0], t.loc[1]))
	}

	bottom, found := c.tiles[[2]int{t.loc[0], t.loc[1] + 1}]
	if found {
		c.linkRouters(t, bottom, "Bottom", "Top",
			fmt.Sprintf("%s.ChanY[%d][%d]",
				c.networkName, t.loc[0], t.loc[1]))
	}
}

func (c *Connector) linkRouters(a, b *tile, aSide, bSide, chanName string) {
	aPort := sim.NewPort(a.router,
		c.numVCs*c.bufferDepth, c.numVCs*c.bufferDepth,
		fmt.Sprintf("%s.%sPort", a.router.Name(), aSide))
	a.router.AddPort(aSide, aPort)

	bPort := sim.NewPort(b.router,
		c.numVCs*c.bufferDepth, c.numVCs*c.bufferDepth,
		fmt.Sprintf("%s.%sPort", b.router.Name(), bSide))
	b.router.AddPort(bSide, bPort)

	router.MakePortAdder(a.router, c.bufferDepth).
		WithPorts(aPort, bPort.AsRemote()).
		AddPort()
	router.MakePortAdder(b.router, c.bufferDepth).
		WithPorts(bPort, aPort.AsRemote()).
		AddPort()

	c.setSidePort(a.rt, aSide, aPort.AsRemote())
	c.setSidePort(b.rt, bSide, bPort.AsRemote())

	c.link(aPort, bPort, chanName)
}

func (c *Connector) setSidePort(
	rt *meshRoutingTable,
	side string,
	port sim.RemotePort,
) {
	switch side {
	case "Left":
		rt.left = port
	case "Right":
		rt.right = port
	case "Top":
		rt.top = port
	case "Bottom":
		rt.bottom = port
	default:
		panic("unknown side " + side)
	}
}

func (c *Connector) link(p1, p2 sim.Port, name string) {
	channel := messaging.MakeChannelBuilder().
		WithEngine(c.engine).
		WithFreq(c.freq).
		WithPipelineParameters(
			c.numVCs, c.linkNumStages, c.linkCyclePer).
		Build(name)

	channel.PlugIn(p1)
	channel.PlugIn(p2)
}
