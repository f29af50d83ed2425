package messaging

import (
	"fmt"

	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
)

// A Transaction is the packet an application module hands to its adapter. The
// adapter fragments it into flits on the way in and reassembles it on the way
// out. DestID addresses the receiving module port; TUser carries an opaque
// source tag that travels with every flit of the transaction.
type Transaction struct {
	sim.MsgMeta

	DestID  addressing.DestID
	TUser   uint64
	Payload []byte
}

// Meta returns the meta data of the transaction.
func (t *Transaction) Meta() *sim.MsgMeta {
	return &t.MsgMeta
}

// Clone returns a cloned Transaction with a different ID.
func (t *Transaction) Clone() sim.Msg {
	cloneMsg := *t
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// TransactionBuilder can build transactions.
type TransactionBuilder struct {
	src     sim.RemotePort
	destID  addressing.DestID
	tuser   uint64
	payload []byte
}

// WithSrc sets the sending module port.
func (b TransactionBuilder) WithSrc(src sim.RemotePort) TransactionBuilder {
	b.src = src
	return b
}

// WithDestID sets the packed destination identifier.
func (b TransactionBuilder) WithDestID(
	id addressing.DestID,
) TransactionBuilder {
	b.destID = id
	return b
}

// WithTUser sets the source tag carried by every flit of the transaction.
func (b TransactionBuilder) WithTUser(tag uint64) TransactionBuilder {
	b.tuser = tag
	return b
}

// WithPayload sets the payload bytes to transfer.
func (b TransactionBuilder) WithPayload(p []byte) TransactionBuilder {
	b.payload = p
	return b
}

// Build creates a new transaction. The destination port name starts as a
// placeholder derived from the destination identifier. The adapter rewrites
// it with the resolved module port before the transaction enters the fabric.
func (b TransactionBuilder) Build() *Transaction {
	t := &Transaction{}
	t.ID = sim.GetIDGenerator().Generate()
	t.Src = b.src
	t.Dst = PlaceholderDst(b.destID)
	t.DestID = b.destID
	t.TUser = b.tuser
	t.Payload = b.payload
	t.TrafficBytes = len(b.payload)
	t.TrafficClass = "transaction"

	return t
}

// PlaceholderDst names a destination identifier before it is resolved to a
// module port.
func PlaceholderDst(id addressing.DestID) sim.RemotePort {
	return sim.RemotePort(fmt.Sprintf("Dest[%d]", uint64(id)))
}
