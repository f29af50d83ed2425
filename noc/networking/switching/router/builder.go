package router

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/networking/arbitration"
	"github.com/radsim-arch/radsim/noc/networking/routing"
	"github.com/radsim-arch/radsim/sim"
)

// Builder can help building routers.
type Builder struct {
	engine       sim.Engine
	freq         sim.Freq
	routingTable routing.Table
	swArbiter    arbitration.Arbiter

	numVCs            int
	bufferDepth       int
	vcAllocPolicy     string
	vcAllocIterations int
	routeDelay        int
	vcAllocDelay      int
	swAllocDelay      int
	creditDelay       int
}

// MakeBuilder creates a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		numVCs:            2,
		bufferDepth:       4,
		vcAllocPolicy:     "islip",
		vcAllocIterations: 1,
		routeDelay:        1,
		vcAllocDelay:      1,
		swAllocDelay:      1,
		creditDelay:       1,
	}
}

// WithEngine sets the engine that the router to build uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency that the router to build works at.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithRoutingTable sets the routing table to be used by the router to build.
func (b Builder) WithRoutingTable(rt routing.Table) Builder {
	b.routingTable = rt
	return b
}

// WithSwitchArbiter sets the arbiter that assigns the crossbar timeslots.
func (b Builder) WithSwitchArbiter(arbiter arbitration.Arbiter) Builder {
	b.swArbiter = arbiter
	return b
}

// WithNumVCs sets the number of virtual channels per port.
func (b Builder) WithNumVCs(n int) Builder {
	b.numVCs = n
	return b
}

// WithBufferDepth sets the depth of each input VC FIFO. The depth also
// determines the initial credit count of the upstream sender.
func (b Builder) WithBufferDepth(n int) Builder {
	b.bufferDepth = n
	return b
}

// WithVCAllocator selects the VC allocation policy by name and the iteration
// cap of iterative policies.
func (b Builder) WithVCAllocator(policy string, iterations int) Builder {
	b.vcAllocPolicy = policy
	b.vcAllocIterations = iterations

	return b
}

// WithStageDelays sets the per-stage delays in cycles. Each delay must be
// non-negative.
func (b Builder) WithStageDelays(
	routeDelay, vcAllocDelay, swAllocDelay, creditDelay int,
) Builder {
	b.routeDelay = routeDelay
	b.vcAllocDelay = vcAllocDelay
	b.swAllocDelay = swAllocDelay
	b.creditDelay = creditDelay

	return b
}

// Build creates a new router.
func (b Builder) Build(name string) *Comp {
	b.mustBeValid()

	r := &Comp{
		routingTable:      b.routingTable,
		swArbiter:         b.swArbiter,
		vcAllocPolicy:     b.vcAllocPolicy,
		vcAllocIterations: b.vcAllocIterations,
		numVCs:            b.numVCs,
		routeDelay:        b.routeDelay,
		vcAllocDelay:      b.vcAllocDelay,
		swAllocDelay:      b.swAllocDelay,
		creditDelay:       b.creditDelay,
	}
	r.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, r)
	r.portToComplexMapping = make(map[sim.RemotePort]*portComplex)
	r.bufToVC = make(map[sim.Buffer]*vcState)

	if r.swArbiter == nil {
		r.swArbiter = arbitration.NewXBarArbiter()
	}

	return r
}

func (b Builder) mustBeValid() {
	if b.engine == nil {
		panic("router requires an engine")
	}

	if b.freq == 0 {
		panic("router frequency cannot be 0")
	}

	if b.routingTable == nil {
		panic("router requires a routing table to operate")
	}

	if b.numVCs < 1 {
		panic("router requires at least one virtual channel")
	}

	if b.routeDelay < 0 || b.vcAllocDelay < 0 ||
		b.swAllocDelay < 0 || b.creditDelay < 0 {
		panic("stage delays must be non-negative")
	}
}

// PortAdder can add a port to a router.
type PortAdder struct {
	router *Comp

	localPort   sim.Port
	remotePort  sim.RemotePort
	bufferDepth int
	initCredits int
}

// MakePortAdder creates a PortAdder that can add ports to the provided
// router.
func MakePortAdder(router *Comp, bufferDepth int) PortAdder {
	return PortAdder{
		router:      router,
		bufferDepth: bufferDepth,
		initCredits: bufferDepth,
	}
}

// WithPorts defines the ports to connect. The local port is part of the
// router. The remote port is on an adapter or on another router.
func (a PortAdder) WithPorts(local sim.Port, remote sim.RemotePort) PortAdder {
	a.localPort = local
	a.remotePort = remote

	return a
}

// WithInitCredits overrides the initial per-VC credit count toward the
// downstream buffer. The default equals the local buffer depth, which is
// correct when both ends of the link are configured symmetrically.
func (a PortAdder) WithInitCredits(n int) PortAdder {
	a.initCredits = n
	return a
}

// AddPort adds the port to the router.
func (a PortAdder) AddPort() {
	r := a.router
	complexID := len(r.ports)
	complexName := fmt.Sprintf("%s.PortComplex%d", r.Name(), complexID)

	pc := &portComplex{
		localPort:  a.localPort,
		remotePort: a.remotePort,
		sendOutBuf: sim.NewBuffer(complexName+".SendOutBuf", r.numVCs),
		creditOutBuf: sim.NewBuffer(
			complexName+".CreditOutBuf", r.numVCs*a.bufferDepth),
		credits:   make([]int, r.numVCs),
		outVCBusy: make([]bool, r.numVCs),
	}

	for vcID := 0; vcID < r.numVCs; vcID++ {
		vc := &vcState{
			id: vcID,
			buf: sim.NewBuffer(
				fmt.Sprintf("%s.VC%d.Buf", complexName, vcID),
				a.bufferDepth),
			owner: pc,
			outVC: -1,
		}
		pc.vcs = append(pc.vcs, vc)
	}

	for vcID := 0; vcID < r.numVCs; vcID++ {
		pc.credits[vcID] = a.initCredits
	}

	r.addPort(pc)
}
