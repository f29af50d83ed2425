package design

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
)

// A Bridge carries transactions between the meshes of different RADs. It
// keeps one port plugged into a gateway adapter on each RAD. A transaction
// whose RAD field names a different chip is resolved to the local gateway,
// crosses the bridge, and is re-injected on the target RAD's mesh.
type Bridge struct {
	*sim.TickingComponent

	scheme addressing.Scheme
	sides  []*bridgeSide
}

type bridgeSide struct {
	radID int
	port  sim.Port
}

// NewBridge creates a bridge with one port per RAD.
func NewBridge(
	name string,
	engine sim.Engine,
	freq sim.Freq,
	scheme addressing.Scheme,
	numRADs int,
	bufSize int,
) *Bridge {
	b := &Bridge{scheme: scheme}
	b.TickingComponent = sim.NewTickingComponent(name, engine, freq, b)

	for radID := 0; radID < numRADs; radID++ {
		port := sim.NewPort(b, bufSize, bufSize,
			fmt.Sprintf("%s.RAD[%d]", name, radID))
		b.AddPort(fmt.Sprintf("RAD[%d]", radID), port)
		b.sides = append(b.sides, &bridgeSide{radID: radID, port: port})
	}

	return b
}

// SidePort returns the port the bridge exposes on one RAD.
func (b *Bridge) SidePort(radID int) sim.Port {
	return b.sides[radID].port
}

// Tick forwards transactions between RADs.
func (b *Bridge) Tick() bool {
	madeProgress := false

	for _, side := range b.sides {
		madeProgress = b.forward(side) || madeProgress
	}

	return madeProgress
}

func (b *Bridge) forward(side *bridgeSide) bool {
	msg := side.port.PeekIncoming()
	if msg == nil {
		return false
	}

	txn, ok := msg.(*messaging.Transaction)
	if !ok {
		panic(fmt.Sprintf("bridge %s: unexpected message type", b.Name()))
	}

	_, _, radID := b.scheme.Decode(txn.DestID)
	if int(radID) >= len(b.sides) {
		panic(fmt.Sprintf("bridge %s: transaction %s addresses RAD %d "+
			"outside the cluster", b.Name(), txn.Meta().ID, radID))
	}

	out := b.sides[radID]
	if out == side {
		panic(fmt.Sprintf("bridge %s: transaction %s crossed the bridge "+
			"toward its own RAD %d", b.Name(), txn.Meta().ID, radID))
	}

	forwarded := messaging.TransactionBuilder{}.
		WithSrc(out.port.AsRemote()).
		WithDestID(txn.DestID).
		WithTUser(txn.TUser).
		WithPayload(txn.Payload).
		Build()

	err := out.port.Send(forwarded)
	if err != nil {
		return false
	}

	side.port.RetrieveIncoming()

	return true
}
