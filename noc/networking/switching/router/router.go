// Package router provides the per-hop switching element of the NoC fabric.
package router

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/noc/networking/arbitration"
	"github.com/radsim-arch/radsim/noc/networking/routing"
	"github.com/radsim-arch/radsim/sim"
)

type vcStage int

const (
	stageIdle vcStage = iota
	stageRouting
	stageVCAlloc
	stageSwitchAlloc
)

// vcState tracks one input virtual channel. The head flit of the FIFO walks
// through the routing, VC-allocation, and switch-allocation stages; body
// flits of the same packet inherit the head's output assignment.
type vcState struct {
	id    int
	buf   sim.Buffer
	owner *portComplex

	stage     vcStage
	countdown int

	currentMsgID string
	outPort      *portComplex
	outVC        int
}

// A portComplex is the infrastructure related to a port. The input side holds
// one FIFO per virtual channel. The output side tracks per-VC credits toward
// the downstream buffer and stages granted flits for the link.
type portComplex struct {
	localPort  sim.Port
	remotePort sim.RemotePort

	vcs []*vcState

	sendOutBuf   sim.Buffer
	creditOutBuf sim.Buffer
	credits      []int
	outVCBusy    []bool
}

// Comp is a router that forwards flits hop by hop under virtual-channel
// allocation, switch allocation, and credit-based backpressure.
type Comp struct {
	*sim.TickingComponent

	ports                []sim.Port
	portToComplexMapping map[sim.RemotePort]*portComplex
	bufToVC              map[sim.Buffer]*vcState
	routingTable         routing.Table
	swArbiter            arbitration.Arbiter
	vcAllocator          arbitration.Allocator

	vcAllocPolicy     string
	vcAllocIterations int

	numVCs       int
	routeDelay   int
	vcAllocDelay int
	swAllocDelay int
	creditDelay  int
}

type creditEvent struct {
	*sim.EventBase

	pc *portComplex
	vc int
}

// addPort adds a new port on the router.
func (c *Comp) addPort(pc *portComplex) {
	c.ports = append(c.ports, pc.localPort)
	c.portToComplexMapping[pc.localPort.AsRemote()] = pc

	for _, vc := range pc.vcs {
		c.bufToVC[vc.buf] = vc
		c.swArbiter.AddBuffer(vc.buf)
	}

	// The allocator dimensions depend on the final port count.
	c.vcAllocator = nil
}

// GetRoutingTable returns the routing table used by the router.
func (c *Comp) GetRoutingTable() routing.Table {
	return c.routingTable
}

// NumVCs returns the number of virtual channels per port.
func (c *Comp) NumVCs() int {
	return c.numVCs
}

// Handle processes credit return events in addition to the regular ticks.
func (c *Comp) Handle(e sim.Event) error {
	switch evt := e.(type) {
	case *creditEvent:
		c.Lock()
		evt.pc.creditOutBuf.Push(
			messaging.NewCredit(
				evt.pc.localPort.AsRemote(), evt.pc.remotePort, evt.vc))
		c.Unlock()
		c.TickLater()

		return nil
	default:
		return c.TickingComponent.Handle(e)
	}
}

// Tick updates the router's state. Stages run in reverse order so that every
// decision reads the state the previous cycle staged.
func (c *Comp) Tick() bool {
	c.Lock()
	defer c.Unlock()

	madeProgress := false

	madeProgress = c.sendOut() || madeProgress
	madeProgress = c.allocateSwitch() || madeProgress
	madeProgress = c.allocateVCs() || madeProgress
	madeProgress = c.route() || madeProgress
	madeProgress = c.agePipelines() || madeProgress
	madeProgress = c.acceptIncoming() || madeProgress

	return madeProgress
}

// sendOut drains the credit and flit staging buffers of every port onto the
// links.
func (c *Comp) sendOut() bool {
	madeProgress := false

	for _, port := range c.ports {
		pc := c.portToComplexMapping[port.AsRemote()]

		madeProgress = c.sendCredits(pc) || madeProgress
		madeProgress = c.sendFlits(pc) || madeProgress
	}

	return madeProgress
}

func (c *Comp) sendCredits(pc *portComplex) bool {
	madeProgress := false

	for {
		item := pc.creditOutBuf.Peek()
		if item == nil {
			break
		}

		credit := item.(*messaging.Credit)

		err := pc.localPort.Send(credit)
		if err != nil {
			break
		}

		pc.creditOutBuf.Pop()
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) sendFlits(pc *portComplex) bool {
	madeProgress := false

	item := pc.sendOutBuf.Peek()
	for item != nil {
		flit := item.(*messaging.Flit)
		flit.Meta().Src = pc.localPort.AsRemote()
		flit.Meta().Dst = pc.remotePort

		err := pc.localPort.Send(flit)
		if err != nil {
			break
		}

		pc.sendOutBuf.Pop()
		madeProgress = true
		item = pc.sendOutBuf.Peek()
	}

	return madeProgress
}

// allocateSwitch assigns the crossbar timeslots of this cycle. A flit
// traverses only when it holds an allocated output VC, wins its input and
// output port timeslot, and the downstream buffer reports a positive credit
// count.
func (c *Comp) allocateSwitch() bool {
	madeProgress := false

	inputUsed := make(map[*portComplex]bool)
	outputUsed := make(map[*portComplex]bool)

	for _, buf := range c.swArbiter.Arbitrate() {
		vc := c.bufToVC[buf]

		if vc.stage != stageSwitchAlloc || vc.countdown > 0 {
			continue
		}

		if inputUsed[vc.owner] || outputUsed[vc.outPort] {
			continue
		}

		if vc.outPort.credits[vc.outVC] <= 0 {
			continue
		}

		if !vc.outPort.sendOutBuf.CanPush() {
			continue
		}

		c.traverse(vc)
		inputUsed[vc.owner] = true
		outputUsed[vc.outPort] = true
		madeProgress = true
	}

	return madeProgress
}

// traverse moves the head flit of an input VC across the crossbar into the
// output staging buffer and schedules the credit return for the freed input
// slot.
func (c *Comp) traverse(vc *vcState) {
	flit := vc.buf.Pop().(*messaging.Flit)

	flit.VC = vc.outVC
	flit.HopCount++

	vc.outPort.credits[vc.outVC]--
	vc.outPort.sendOutBuf.Push(flit)

	c.scheduleCreditReturn(vc.owner, vc.id)

	if flit.Last {
		vc.outPort.outVCBusy[vc.outVC] = false
		vc.reset()
	} else {
		// Body flits of the same packet bypass routing and VC allocation.
		vc.stage = stageSwitchAlloc
		vc.countdown = 0
	}
}

func (c *Comp) scheduleCreditReturn(pc *portComplex, vcID int) {
	time := c.Freq.NCyclesLater(c.creditDelay, c.Engine.CurrentTime())

	evt := &creditEvent{
		EventBase: sim.NewEventBase(time, c),
		pc:        pc,
		vc:        vcID,
	}

	c.Engine.Schedule(evt)
}

// allocateVCs lets the input VCs that finished routing claim the
// same-numbered virtual channel at their chosen output ports. A packet keeps
// its lane across the hop, so packets of one flow cannot overtake each
// other downstream.
func (c *Comp) allocateVCs() bool {
	if c.vcAllocator == nil {
		c.buildVCAllocator()
	}

	requests, requesters := c.collectVCRequests()
	if len(requests) == 0 {
		return false
	}

	madeProgress := false

	for _, grant := range c.vcAllocator.Allocate(requests) {
		vc := requesters[grant.Requester]
		outPortIndex := grant.Resource / c.numVCs
		outVC := grant.Resource % c.numVCs

		outPC := c.portToComplexMapping[c.ports[outPortIndex].AsRemote()]

		vc.outVC = outVC
		outPC.outVCBusy[outVC] = true
		vc.stage = stageSwitchAlloc
		vc.countdown = c.swAllocDelay
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) buildVCAllocator() {
	numRequesters := len(c.ports) * c.numVCs
	numResources := len(c.ports) * c.numVCs

	allocator, err := arbitration.NewAllocator(
		c.vcAllocPolicy, numRequesters, numResources, c.vcAllocIterations)
	if err != nil {
		panic(fmt.Sprintf("%s: %s", c.Name(), err))
	}

	c.vcAllocator = allocator
}

func (c *Comp) collectVCRequests() (
	[]arbitration.Request, map[int]*vcState,
) {
	var requests []arbitration.Request
	requesters := make(map[int]*vcState)

	for portIndex, port := range c.ports {
		pc := c.portToComplexMapping[port.AsRemote()]

		for _, vc := range pc.vcs {
			if vc.stage != stageVCAlloc || vc.countdown > 0 {
				continue
			}

			if vc.outPort.outVCBusy[vc.id] {
				continue
			}

			outPortIndex := c.portIndex(vc.outPort)
			requesterID := portIndex*c.numVCs + vc.id
			requesters[requesterID] = vc

			requests = append(requests, arbitration.Request{
				Requester: requesterID,
				Resource:  outPortIndex*c.numVCs + vc.id,
			})
		}
	}

	return requests, requesters
}

func (c *Comp) portIndex(pc *portComplex) int {
	for i, port := range c.ports {
		if port == pc.localPort {
			return i
		}
	}

	panic("port not on router")
}

// route computes the output port for every input VC whose head flit has no
// output assignment yet.
func (c *Comp) route() bool {
	madeProgress := false

	for _, port := range c.ports {
		pc := c.portToComplexMapping[port.AsRemote()]

		for _, vc := range pc.vcs {
			madeProgress = c.routeVC(vc) || madeProgress
		}
	}

	return madeProgress
}

func (c *Comp) routeVC(vc *vcState) bool {
	item := vc.buf.Peek()
	if item == nil {
		return false
	}

	flit := item.(*messaging.Flit)

	switch vc.stage {
	case stageIdle:
		if vc.currentMsgID == flit.Msg.Meta().ID {
			// A body flit whose packet already holds an output VC.
			vc.stage = stageSwitchAlloc
			vc.countdown = 0
			return true
		}

		vc.stage = stageRouting
		vc.countdown = c.routeDelay
		vc.currentMsgID = flit.Msg.Meta().ID

		return true
	case stageRouting:
		if vc.countdown > 0 {
			return false
		}

		vc.outPort = c.assignOutputPort(flit)
		vc.stage = stageVCAlloc
		vc.countdown = c.vcAllocDelay

		return true
	default:
		return false
	}
}

func (c *Comp) assignOutputPort(f *messaging.Flit) *portComplex {
	outPort := c.routingTable.FindPort(f.Msg.Meta().Dst)
	if outPort == "" {
		panic(fmt.Sprintf("%s: no output port for %s",
			c.Name(), f.Msg.Meta().Dst))
	}

	pc := c.portToComplexMapping[outPort]
	if pc == nil {
		panic(fmt.Sprintf("%s: no port complex for %s", c.Name(), outPort))
	}

	return pc
}

// agePipelines advances the per-stage delay counters.
func (c *Comp) agePipelines() bool {
	madeProgress := false

	for _, port := range c.ports {
		pc := c.portToComplexMapping[port.AsRemote()]

		for _, vc := range pc.vcs {
			if vc.stage == stageIdle || vc.countdown == 0 {
				continue
			}

			vc.countdown--
			madeProgress = true
		}
	}

	return madeProgress
}

// acceptIncoming stages arriving flits into their input VC FIFOs and applies
// arriving credits to the output-side counters.
func (c *Comp) acceptIncoming() bool {
	madeProgress := false

	for _, port := range c.ports {
		pc := c.portToComplexMapping[port.AsRemote()]

		for {
			item := port.PeekIncoming()
			if item == nil {
				break
			}

			switch msg := item.(type) {
			case *messaging.Credit:
				pc.credits[msg.VC]++
			case *messaging.Flit:
				vc := pc.vcs[msg.VC]
				if !vc.buf.CanPush() {
					// The upstream sender held no credit for this slot.
					panic(fmt.Sprintf(
						"%s: input VC %d of %s overflows",
						c.Name(), msg.VC, port.Name()))
				}

				vc.buf.Push(msg)
			default:
				panic(fmt.Sprintf("%s: unknown message type", c.Name()))
			}

			port.RetrieveIncoming()
			madeProgress = true
		}
	}

	return madeProgress
}

func (v *vcState) reset() {
	v.stage = stageIdle
	v.countdown = 0
	v.currentMsgID = ""
	v.outPort = nil
	v.outVC = -1
}
