package messaging

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gomock "go.uber.org/mock/gomock"

	"github.com/radsim-arch/radsim/sim"
)

type testMsg struct {
	sim.MsgMeta
}

func (m *testMsg) Meta() *sim.MsgMeta {
	return &m.MsgMeta
}

func (m *testMsg) Clone() sim.Msg {
	return m
}

func newTestMsg(src, dst sim.RemotePort) *testMsg {
	msg := &testMsg{}
	msg.ID = sim.GetIDGenerator().Generate()
	msg.Src = src
	msg.Dst = dst

	return msg
}

var _ = Describe("Channel", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *MockEngine
		src, dst *MockPort
		c        *Channel
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		engine = NewMockEngine(mockCtrl)
		src = NewMockPort(mockCtrl)
		dst = NewMockPort(mockCtrl)

		src.EXPECT().SetConnection(gomock.Any())
		dst.EXPECT().SetConnection(gomock.Any())
		src.EXPECT().Name().Return("Src").AnyTimes()
		dst.EXPECT().Name().Return("Dst").AnyTimes()
		src.EXPECT().AsRemote().Return(sim.RemotePort("Src")).AnyTimes()
		dst.EXPECT().AsRemote().Return(sim.RemotePort("Dst")).AnyTimes()

		c = MakeChannelBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithPipelineParameters(1, 1, 1).
			Build("Channel")

		c.PlugIn(src)
		c.PlugIn(dst)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should make no progress when idle", func() {
		src.EXPECT().PeekOutgoing().Return(nil)
		dst.EXPECT().PeekOutgoing().Return(nil)

		madeProgress := c.Tick()

		Expect(madeProgress).To(BeFalse())
	})

	It("should accept an outgoing message into the pipeline", func() {
		msg := newTestMsg(src.AsRemote(), dst.AsRemote())

		src.EXPECT().PeekOutgoing().Return(msg)
		src.EXPECT().RetrieveOutgoing().Return(msg)
		src.EXPECT().PeekOutgoing().Return(nil)
		dst.EXPECT().PeekOutgoing().Return(nil)

		madeProgress := c.Tick()

		Expect(madeProgress).To(BeTrue())
	})

	It("should deliver a message after the pipeline latency", func() {
		msg := newTestMsg(src.AsRemote(), dst.AsRemote())

		src.EXPECT().PeekOutgoing().Return(msg)
		src.EXPECT().RetrieveOutgoing().Return(msg)
		src.EXPECT().PeekOutgoing().Return(nil).AnyTimes()
		dst.EXPECT().PeekOutgoing().Return(nil).AnyTimes()

		c.Tick()
		c.Tick()

		dst.EXPECT().Deliver(msg).Return(nil)

		madeProgress := c.Tick()

		Expect(madeProgress).To(BeTrue())
	})

	It("should hold the message when the destination is busy", func() {
		msg := newTestMsg(src.AsRemote(), dst.AsRemote())

		src.EXPECT().PeekOutgoing().Return(msg)
		src.EXPECT().RetrieveOutgoing().Return(msg)
		src.EXPECT().PeekOutgoing().Return(nil).AnyTimes()
		dst.EXPECT().PeekOutgoing().Return(nil).AnyTimes()

		c.Tick()
		c.Tick()

		dst.EXPECT().Deliver(msg).Return(sim.NewSendError())

		madeProgress := c.Tick()
		Expect(madeProgress).To(BeFalse())

		dst.EXPECT().Deliver(msg).Return(nil)

		madeProgress = c.Tick()
		Expect(madeProgress).To(BeTrue())
	})

	It("should reject a third port", func() {
		third := NewMockPort(mockCtrl)
		third.EXPECT().Name().Return("Third").AnyTimes()

		Expect(func() { c.PlugIn(third) }).To(Panic())
	})
})
