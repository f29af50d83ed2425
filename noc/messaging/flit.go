// Package messaging defines the messages that move through the NoC fabric.
package messaging

import (
	"fmt"

	"github.com/radsim-arch/radsim/sim"
)

// Flit is the smallest transferring unit on a network. A flit is created when
// an adapter fragments a transaction and is destroyed when the destination
// adapter consumes it. It is exclusively held by whichever buffer currently
// stages it.
type Flit struct {
	sim.MsgMeta

	SeqID        int
	NumFlitInMsg int
	Last         bool
	VC           int
	Payload      []byte
	HopCount     int
	Msg          sim.Msg
	OutputBuf    sim.Buffer // The buffer to route to within a router
}

// Meta returns the meta data associated with the Flit.
func (f *Flit) Meta() *sim.MsgMeta {
	return &f.MsgMeta
}

// Clone returns cloned Flit with different ID
func (f *Flit) Clone() sim.Msg {
	cloneMsg := *f
	cloneMsg.ID = fmt.Sprintf("flit-%d-msg-%s-%s",
		cloneMsg.SeqID, cloneMsg.Msg.Meta().ID,
		sim.GetIDGenerator().Generate())

	return &cloneMsg
}

// FlitBuilder can build flits
type FlitBuilder struct {
	src, dst            sim.RemotePort
	msg                 sim.Msg
	seqID, numFlitInMsg int
	vc                  int
	payload             []byte
}

// WithSrc sets the src of the request to send
func (b FlitBuilder) WithSrc(src sim.RemotePort) FlitBuilder {
	b.src = src
	return b
}

// WithDst sets the dst of the request to send
func (b FlitBuilder) WithDst(dst sim.RemotePort) FlitBuilder {
	b.dst = dst
	return b
}

// WithSeqID sets the SeqID of the Flit.
func (b FlitBuilder) WithSeqID(i int) FlitBuilder {
	b.seqID = i
	return b
}

// WithNumFlitInMsg sets the NumFlitInMsg for of flit to build.
func (b FlitBuilder) WithNumFlitInMsg(n int) FlitBuilder {
	b.numFlitInMsg = n
	return b
}

// WithVC sets the virtual channel the flit is injected on.
func (b FlitBuilder) WithVC(vc int) FlitBuilder {
	b.vc = vc
	return b
}

// WithPayload sets the payload slice the flit carries.
func (b FlitBuilder) WithPayload(p []byte) FlitBuilder {
	b.payload = p
	return b
}

// WithMsg sets the msg of the flit to build.
func (b FlitBuilder) WithMsg(msg sim.Msg) FlitBuilder {
	b.msg = msg
	return b
}

// Build creates a new flit.
func (b FlitBuilder) Build() *Flit {
	f := &Flit{}
	f.ID = fmt.Sprintf("flit-%d-msg-%s-%s",
		b.seqID, b.msg.Meta().ID,
		sim.GetIDGenerator().Generate())
	f.Src = b.src
	f.Dst = b.dst
	f.Msg = b.msg
	f.SeqID = b.seqID
	f.NumFlitInMsg = b.numFlitInMsg
	f.Last = b.seqID == b.numFlitInMsg-1
	f.VC = b.vc
	f.Payload = b.payload
	f.TrafficBytes = len(b.payload)
	f.TrafficClass = "flit"

	return f
}
