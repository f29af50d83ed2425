package adapter

import (
	"container/list"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

// Builder can help building adapters.
type Builder struct {
	engine             sim.Engine
	freq               sim.Freq
	numVCs             int
	flitByteSize       int
	initCredits        int
	sendTimeout        uint64
	networkBufSize     int
	pendingDeliveryCap int
	resolver           DestinationResolver
	collector          telemetry.Collector
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:               1 * sim.GHz,
		numVCs:             2,
		flitByteSize:       32,
		initCredits:        4,
		networkBufSize:     16,
		pendingDeliveryCap: 64,
	}
}

// WithEngine sets the engine of the adapter to build.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the adapter to build.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithNumVCs sets the number of virtual channels the adapter injects on.
func (b Builder) WithNumVCs(n int) Builder {
	b.numVCs = n
	return b
}

// WithFlitByteSize sets the number of payload bytes each flit carries.
func (b Builder) WithFlitByteSize(n int) Builder {
	b.flitByteSize = n
	return b
}

// WithInitCredits sets the number of credits each virtual channel starts
// with, which must equal the depth of the router's input buffers.
func (b Builder) WithInitCredits(n int) Builder {
	b.initCredits = n
	return b
}

// WithSendTimeout sets the number of cycles after which a partially injected
// transaction is abandoned. Zero disables the timeout.
func (b Builder) WithSendTimeout(cycles uint64) Builder {
	b.sendTimeout = cycles
	return b
}

// WithNetworkPortBufSize sets the buffer size of the network port.
func (b Builder) WithNetworkPortBufSize(n int) Builder {
	b.networkBufSize = n
	return b
}

// WithPendingDeliveryCap sets the number of transactions the adapter may
// hold in assembly or awaiting delivery before it stops accepting flits.
func (b Builder) WithPendingDeliveryCap(n int) Builder {
	b.pendingDeliveryCap = n
	return b
}

// WithDestinationResolver sets the function that maps destination
// identifiers to module ports.
func (b Builder) WithDestinationResolver(r DestinationResolver) Builder {
	b.resolver = r
	return b
}

// WithTelemetryCollector sets the collector that observes the flits of the
// adapter.
func (b Builder) WithTelemetryCollector(c telemetry.Collector) Builder {
	b.collector = c
	return b
}

// Build creates a new adapter.
func (b Builder) Build(name string) *Comp {
	c := &Comp{}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.numVCs = b.numVCs
	c.flitByteSize = b.flitByteSize
	c.sendTimeout = b.sendTimeout
	c.resolver = b.resolver
	c.collector = b.collector
	c.pendingDeliveryCap = b.pendingDeliveryCap

	if c.collector == nil {
		c.collector = telemetry.NewNopCollector()
	}

	c.devicePorts = make(map[sim.RemotePort]sim.Port)
	c.flitsToSend = make([][]*messaging.Flit, b.numVCs)
	c.credits = make([]int, b.numVCs)
	for i := 0; i < b.numVCs; i++ {
		c.credits[i] = b.initCredits
	}

	c.inFlight = make(map[string]*outgoingTransaction)
	c.assemblingMsgTable = make(map[string]*list.Element)
	c.assemblingMsgs = list.New()

	c.NetworkPort = sim.NewPort(c,
		b.networkBufSize, b.networkBufSize,
		name+".NetworkPort")
	c.AddPort("NetworkPort", c.NetworkPort)

	return c
}

// SetRouterPort tells the adapter which router port its network port is
// linked to. The topology builder calls this while wiring the fabric.
func (c *Comp) SetRouterPort(port sim.RemotePort) {
	c.routerPort = port
}

// RouterPort returns the router port the adapter's network port is linked
// to.
func (c *Comp) RouterPort() sim.RemotePort {
	return c.routerPort
}
