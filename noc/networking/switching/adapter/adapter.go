// Package adapter bridges the streaming handshake of application modules to
// the flit-switched fabric.
package adapter

import (
	"container/list"
	"fmt"
	"log"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

// A DestinationResolver translates a packed destination identifier into the
// module port it addresses. The design builder supplies one per adapter.
type DestinationResolver func(id addressing.DestID) (sim.RemotePort, error)

type outgoingTransaction struct {
	msg        *messaging.Transaction
	vc         int
	startCycle uint64
	numFlits   int
	injected   int
}

type msgToAssemble struct {
	msg             sim.Msg
	numFlitRequired int
	numFlitArrived  int
	nextSeqID       int
}

// Comp is the AXI adapter. The master side fragments the transactions of its
// device ports into flits. The slave side reassembles arriving flits and
// delivers them to the addressed device port. A flit only moves when the
// sender holds a credit for the receiving buffer, which models the
// valid-and-ready handshake cycle by cycle.
type Comp struct {
	*sim.TickingComponent

	DevicePorts []sim.Port
	NetworkPort sim.Port

	routerPort   sim.RemotePort
	devicePorts  map[sim.RemotePort]sim.Port
	resolver     DestinationResolver
	collector    telemetry.Collector
	numVCs       int
	flitByteSize int
	sendTimeout  uint64

	nextVC      int
	flitsToSend [][]*messaging.Flit
	credits     []int
	creditsOut  []*messaging.Credit
	inFlight    map[string]*outgoingTransaction

	assemblingMsgTable map[string]*list.Element
	assemblingMsgs     *list.List
	assembledMsgs      []sim.Msg
	pendingDeliveryCap int
}

// PlugIn connects a module-side port to the adapter.
func (c *Comp) PlugIn(port sim.Port) {
	port.SetConnection(c)
	c.DevicePorts = append(c.DevicePorts, port)
	c.devicePorts[port.AsRemote()] = port
}

// Unplug removes the association of a port and the adapter.
func (c *Comp) Unplug(_ sim.Port) {
	panic("not implemented")
}

// NotifyAvailable triggers the adapter to continue to tick.
func (c *Comp) NotifyAvailable(_ sim.Port) {
	c.TickLater()
}

// NotifySend is called by a port to notify that a message is waiting to be
// sent.
func (c *Comp) NotifySend() {
	c.TickLater()
}

// Tick updates the adapter state.
func (c *Comp) Tick() bool {
	c.Lock()
	defer c.Unlock()

	madeProgress := false

	madeProgress = c.sendFlitsOut() || madeProgress
	madeProgress = c.abandonTimedOut() || madeProgress
	madeProgress = c.prepareTransactions() || madeProgress
	madeProgress = c.tryDeliver() || madeProgress
	madeProgress = c.assemble() || madeProgress
	madeProgress = c.recv() || madeProgress

	return madeProgress
}

// sendFlitsOut moves credits and flits onto the link toward the router. A
// virtual channel may transmit only while it holds a credit for the router's
// input buffer.
func (c *Comp) sendFlitsOut() bool {
	madeProgress := c.returnCredits()

	for i := 0; i < c.numVCs; i++ {
		vc := (c.nextVC + i) % c.numVCs

		if len(c.flitsToSend[vc]) == 0 {
			continue
		}

		if c.credits[vc] <= 0 {
			continue
		}

		flit := c.flitsToSend[vc][0]
		flit.Meta().Src = c.NetworkPort.AsRemote()
		flit.Meta().Dst = c.routerPort

		err := c.NetworkPort.Send(flit)
		if err != nil {
			continue
		}

		c.credits[vc]--
		c.flitsToSend[vc] = c.flitsToSend[vc][1:]
		c.collector.RecordFlitSent(c.CurrentTime(), flit)

		// Flush flits of abandoned transactions have no entry left.
		if txn, tracked := c.inFlight[flit.Msg.Meta().ID]; tracked {
			txn.injected++
			if txn.injected == txn.numFlits {
				delete(c.inFlight, flit.Msg.Meta().ID)
			}
		}

		c.nextVC = (vc + 1) % c.numVCs
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) returnCredits() bool {
	madeProgress := false

	for len(c.creditsOut) > 0 {
		credit := c.creditsOut[0]

		err := c.NetworkPort.Send(credit)
		if err != nil {
			break
		}

		c.creditsOut = c.creditsOut[1:]
		madeProgress = true
	}

	return madeProgress
}

// abandonTimedOut reports transactions whose injection exceeded the send
// timeout and abandons their remaining flits. The simulation continues.
func (c *Comp) abandonTimedOut() bool {
	if c.sendTimeout == 0 {
		return false
	}

	madeProgress := false
	nowCycle := c.CurrentCycle()

	for id, txn := range c.inFlight {
		if nowCycle-txn.startCycle <= c.sendTimeout {
			continue
		}

		c.dropPendingFlits(txn)
		if txn.injected > 0 {
			c.enqueueFlushFlit(txn)
		}
		c.collector.RecordIncompleteTransfer(
			c.CurrentTime(), txn.msg, txn.injected*c.flitByteSize)
		log.Printf("adapter %s: transaction %s to %s timed out "+
			"after %d cycles, %d of %d flits injected",
			c.Name(), id, txn.msg.Meta().Dst,
			c.sendTimeout, txn.injected, txn.numFlits)

		delete(c.inFlight, id)
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) dropPendingFlits(txn *outgoingTransaction) {
	queue := c.flitsToSend[txn.vc]
	kept := queue[:0]

	for _, flit := range queue {
		if flit.Msg.Meta().ID == txn.msg.Meta().ID {
			continue
		}

		kept = append(kept, flit)
	}

	c.flitsToSend[txn.vc] = kept
}

// enqueueFlushFlit closes a truncated packet with a last-marked flit. The
// routers downstream release the packet's virtual channels when it passes,
// and the receiving adapter discards the partial assembly. It goes to the
// head of the VC queue, before any younger packet's flits.
func (c *Comp) enqueueFlushFlit(txn *outgoingTransaction) {
	flit := messaging.FlitBuilder{}.
		WithSrc(c.NetworkPort.AsRemote()).
		WithDst(c.routerPort).
		WithSeqID(txn.injected).
		WithNumFlitInMsg(txn.injected + 1).
		WithVC(txn.vc).
		WithMsg(txn.msg).
		Build()

	c.flitsToSend[txn.vc] = append(
		[]*messaging.Flit{flit}, c.flitsToSend[txn.vc]...)
}

// prepareTransactions pulls transactions from the device ports, resolves
// their destination identifiers, and fragments them into flits.
func (c *Comp) prepareTransactions() bool {
	madeProgress := false

	for _, port := range c.DevicePorts {
		msg := port.PeekOutgoing()
		if msg == nil {
			continue
		}

		txn, ok := msg.(*messaging.Transaction)
		if !ok {
			c.collector.RecordProtocolFault(
				c.CurrentTime(), port.AsRemote(),
				fmt.Sprintf("message %s is not a transaction",
					msg.Meta().ID))
			port.RetrieveOutgoing()
			madeProgress = true

			continue
		}

		if len(txn.Payload) == 0 {
			c.collector.RecordProtocolFault(
				c.CurrentTime(), port.AsRemote(),
				fmt.Sprintf("transaction %s carries no payload",
					txn.Meta().ID))
		}

		dst, err := c.resolver(txn.DestID)
		if err != nil {
			panic(fmt.Sprintf("adapter %s: %s", c.Name(), err))
		}
		txn.Meta().Dst = dst

		port.RetrieveOutgoing()
		c.fragment(txn)
		madeProgress = true
	}

	return madeProgress
}

// fragment splits a transaction into flits on the virtual channel of its
// destination. Flits of one transaction leave the adapter in sequence order;
// transactions on different VCs may interleave on the link.
func (c *Comp) fragment(txn *messaging.Transaction) {
	numFlits := (len(txn.Payload) + c.flitByteSize - 1) / c.flitByteSize
	if numFlits == 0 {
		numFlits = 1
	}

	vc := c.pickVC(txn)

	for seq := 0; seq < numFlits; seq++ {
		begin := seq * c.flitByteSize
		end := begin + c.flitByteSize
		if end > len(txn.Payload) {
			end = len(txn.Payload)
		}

		flit := messaging.FlitBuilder{}.
			WithSrc(c.NetworkPort.AsRemote()).
			WithDst(c.routerPort).
			WithSeqID(seq).
			WithNumFlitInMsg(numFlits).
			WithVC(vc).
			WithPayload(txn.Payload[begin:end]).
			WithMsg(txn).
			Build()

		c.flitsToSend[vc] = append(c.flitsToSend[vc], flit)
	}

	c.inFlight[txn.Meta().ID] = &outgoingTransaction{
		msg:        txn,
		vc:         vc,
		startCycle: c.CurrentCycle(),
		numFlits:   numFlits,
	}
}

// pickVC gives every destination a fixed virtual channel. Packets of one
// flow share a lane end to end and cannot overtake each other.
func (c *Comp) pickVC(txn *messaging.Transaction) int {
	return int(uint64(txn.DestID) % uint64(c.numVCs))
}

// recv consumes flits and credits arriving from the router.
func (c *Comp) recv() bool {
	madeProgress := false

	for {
		if len(c.assemblingMsgTable)+len(c.assembledMsgs) >=
			c.pendingDeliveryCap {
			break
		}

		received := c.NetworkPort.PeekIncoming()
		if received == nil {
			break
		}

		switch msg := received.(type) {
		case *messaging.Credit:
			c.credits[msg.VC]++
		case *messaging.Flit:
			c.acceptFlit(msg)
		default:
			panic(fmt.Sprintf("adapter %s: unknown message type", c.Name()))
		}

		c.NetworkPort.RetrieveIncoming()
		madeProgress = true
	}

	return madeProgress
}

func (c *Comp) acceptFlit(flit *messaging.Flit) {
	msg := flit.Msg

	assemblingElem := c.assemblingMsgTable[msg.Meta().ID]
	if assemblingElem == nil {
		assemblingElem = c.assemblingMsgs.PushBack(&msgToAssemble{
			msg:             msg,
			numFlitRequired: flit.NumFlitInMsg,
		})
		c.assemblingMsgTable[msg.Meta().ID] = assemblingElem
	}

	assembling := assemblingElem.Value.(*msgToAssemble)

	if flit.SeqID != assembling.nextSeqID {
		panic(fmt.Sprintf(
			"adapter %s: flit %d of msg %s arrived out of order",
			c.Name(), flit.SeqID, msg.Meta().ID))
	}
	assembling.nextSeqID++
	assembling.numFlitArrived++

	c.collector.RecordFlitReceived(c.CurrentTime(), flit)

	// A last-marked flit before the full count is the flush of a packet the
	// sender abandoned. The delivered part is discarded.
	if flit.Last && assembling.numFlitArrived < assembling.numFlitRequired {
		c.assemblingMsgs.Remove(assemblingElem)
		delete(c.assemblingMsgTable, msg.Meta().ID)
	}

	// The freed buffer slot becomes a credit for the router.
	c.creditsOut = append(c.creditsOut, messaging.NewCredit(
		c.NetworkPort.AsRemote(), c.routerPort, flit.VC))
}

// assemble completes transactions whose flits have all arrived.
func (c *Comp) assemble() bool {
	madeProgress := false

	e := c.assemblingMsgs.Front()
	for e != nil {
		assembling := e.Value.(*msgToAssemble)

		next := e.Next()

		if assembling.numFlitArrived < assembling.numFlitRequired {
			e = next
			continue
		}

		c.assembledMsgs = append(c.assembledMsgs, assembling.msg)
		c.assemblingMsgs.Remove(e)
		delete(c.assemblingMsgTable, assembling.msg.Meta().ID)

		e = next
		madeProgress = true
	}

	return madeProgress
}

// tryDeliver hands assembled transactions to their destination module port.
func (c *Comp) tryDeliver() bool {
	madeProgress := false

	for len(c.assembledMsgs) > 0 {
		msg := c.assembledMsgs[0]

		port, found := c.devicePorts[msg.Meta().Dst]
		if !found {
			panic(fmt.Sprintf(
				"adapter %s: destination port %s is not plugged in",
				c.Name(), msg.Meta().Dst))
		}

		err := port.Deliver(msg)
		if err != nil {
			return madeProgress
		}

		c.assembledMsgs = c.assembledMsgs[1:]
		madeProgress = true
	}

	return madeProgress
}
