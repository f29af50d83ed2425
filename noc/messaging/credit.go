package messaging

import "github.com/radsim-arch/radsim/sim"

// A Credit tells the upstream sender that one flit slot of the given virtual
// channel has been freed. Credits are the sole backpressure mechanism on a
// link: flits never drop, they stall until the sender holds a credit.
type Credit struct {
	sim.MsgMeta

	VC int
}

// Meta returns the meta data associated with the Credit.
func (c *Credit) Meta() *sim.MsgMeta {
	return &c.MsgMeta
}

// Clone returns cloned Credit with different ID
func (c *Credit) Clone() sim.Msg {
	cloneMsg := *c
	cloneMsg.ID = sim.GetIDGenerator().Generate()

	return &cloneMsg
}

// NewCredit creates a credit message for one flit slot of a virtual channel.
func NewCredit(src, dst sim.RemotePort, vc int) *Credit {
	c := &Credit{VC: vc}
	c.ID = sim.GetIDGenerator().Generate()
	c.Src = src
	c.Dst = dst
	c.TrafficClass = "credit"

	return c
}
