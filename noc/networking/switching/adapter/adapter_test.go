package adapter

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
)

var _ = Describe("Adapter", func() {
	var (
		mockCtrl    *gomock.Controller
		engine      *MockEngine
		networkPort *MockPort
		devicePort  *MockPort
		routerPort  sim.RemotePort
		a           *Comp
		now         sim.VTimeInSec
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		now = 0

		engine = NewMockEngine(mockCtrl)
		engine.EXPECT().
			CurrentTime().
			DoAndReturn(func() sim.VTimeInSec { return now }).
			AnyTimes()

		a = MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithNumVCs(2).
			WithFlitByteSize(32).
			WithInitCredits(1).
			WithDestinationResolver(
				func(id addressing.DestID) (sim.RemotePort, error) {
					return "RemoteModule.Port", nil
				}).
			Build("Adapter")

		networkPort = NewMockPort(mockCtrl)
		networkPort.EXPECT().
			AsRemote().
			Return(sim.RemotePort("Adapter.NetworkPort")).
			AnyTimes()
		a.NetworkPort = networkPort

		routerPort = "Router.Local"
		a.SetRouterPort(routerPort)

		devicePort = NewMockPort(mockCtrl)
		devicePort.EXPECT().SetConnection(gomock.Any())
		devicePort.EXPECT().
			AsRemote().
			Return(sim.RemotePort("ModuleA.Port")).
			AnyTimes()
		a.PlugIn(devicePort)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should fragment a transaction into flits", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc(devicePort.AsRemote()).
			WithDestID(5).
			WithPayload(make([]byte, 70)).
			Build()

		devicePort.EXPECT().PeekOutgoing().Return(txn)
		devicePort.EXPECT().RetrieveOutgoing().Return(txn)
		networkPort.EXPECT().PeekIncoming().Return(nil)

		madeProgress := a.Tick()

		Expect(madeProgress).To(BeTrue())
		Expect(txn.Meta().Dst).To(Equal(sim.RemotePort("RemoteModule.Port")))
		Expect(a.flitsToSend[1]).To(HaveLen(3))
		Expect(a.flitsToSend[1][0].SeqID).To(Equal(0))
		Expect(a.flitsToSend[1][0].NumFlitInMsg).To(Equal(3))
		Expect(a.flitsToSend[1][0].Payload).To(HaveLen(32))
		Expect(a.flitsToSend[1][2].SeqID).To(Equal(2))
		Expect(a.flitsToSend[1][2].Payload).To(HaveLen(6))
		Expect(a.inFlight).To(HaveLen(1))
	})

	It("should keep one destination on one virtual channel", func() {
		evenTxn := func() *messaging.Transaction {
			return messaging.TransactionBuilder{}.
				WithSrc(devicePort.AsRemote()).
				WithDestID(4).
				WithPayload(make([]byte, 32)).
				Build()
		}
		oddTxn := messaging.TransactionBuilder{}.
			WithSrc(devicePort.AsRemote()).
			WithDestID(5).
			WithPayload(make([]byte, 32)).
			Build()

		first := evenTxn()
		second := evenTxn()
		first.Meta().Dst = "RemoteModule.Port"
		second.Meta().Dst = "RemoteModule.Port"
		oddTxn.Meta().Dst = "RemoteModule.Port"

		a.fragment(first)
		a.fragment(oddTxn)
		a.fragment(second)

		Expect(a.flitsToSend[0]).To(HaveLen(2))
		Expect(a.flitsToSend[0][0].Msg).To(BeIdenticalTo(first))
		Expect(a.flitsToSend[0][1].Msg).To(BeIdenticalTo(second))
		Expect(a.flitsToSend[1]).To(HaveLen(1))
		Expect(a.flitsToSend[1][0].Msg).To(BeIdenticalTo(oddTxn))
	})

	It("should only send flits while holding credits", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc(devicePort.AsRemote()).
			WithDestID(5).
			WithPayload(make([]byte, 64)).
			Build()
		txn.Meta().Dst = "RemoteModule.Port"
		a.fragment(txn)

		var sent []*messaging.Flit

		By("spending the only credit on the first flit")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		networkPort.EXPECT().
			Send(gomock.Any()).
			Do(func(msg sim.Msg) {
				sent = append(sent, msg.(*messaging.Flit))
			}).
			Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0].SeqID).To(Equal(0))
		Expect(sent[0].Meta().Dst).To(Equal(routerPort))
		Expect(a.credits[1]).To(Equal(0))

		By("stalling with no credit left")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeFalse())

		By("consuming a returned credit")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().
			PeekIncoming().
			Return(messaging.NewCredit(routerPort,
				a.NetworkPort.AsRemote(), 1))
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.credits[1]).To(Equal(1))

		By("sending the last flit with the new credit")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		networkPort.EXPECT().
			Send(gomock.Any()).
			Do(func(msg sim.Msg) {
				sent = append(sent, msg.(*messaging.Flit))
			}).
			Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(sent).To(HaveLen(2))
		Expect(sent[1].SeqID).To(Equal(1))
		Expect(a.inFlight).To(BeEmpty())
	})

	It("should reassemble flits and deliver the transaction", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc("RemoteModule.Port").
			WithDestID(3).
			WithPayload(make([]byte, 64)).
			Build()
		txn.Meta().Dst = devicePort.AsRemote()

		flits := make([]*messaging.Flit, 2)
		for i := range flits {
			flits[i] = messaging.FlitBuilder{}.
				WithSrc("Router.Local").
				WithDst(a.NetworkPort.AsRemote()).
				WithSeqID(i).
				WithNumFlitInMsg(2).
				WithVC(1).
				WithMsg(txn).
				Build()
		}

		By("accepting the flits")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(flits[0])
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(flits[1])
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.creditsOut).To(HaveLen(2))

		By("returning credits and completing the assembly")
		var credits []*messaging.Credit
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		networkPort.EXPECT().
			Send(gomock.Any()).
			Do(func(msg sim.Msg) {
				credits = append(credits, msg.(*messaging.Credit))
			}).
			Return(nil).
			Times(2)

		Expect(a.Tick()).To(BeTrue())
		Expect(credits[0].VC).To(Equal(1))
		Expect(credits[0].Meta().Dst).To(Equal(routerPort))
		Expect(a.assembledMsgs).To(HaveLen(1))

		By("delivering to the addressed device port")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		devicePort.EXPECT().Deliver(txn).Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.assembledMsgs).To(BeEmpty())
	})

	It("should retry delivery when the device port is busy", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc("RemoteModule.Port").
			WithDestID(3).
			WithPayload(make([]byte, 8)).
			Build()
		txn.Meta().Dst = devicePort.AsRemote()
		a.assembledMsgs = append(a.assembledMsgs, txn)

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		devicePort.EXPECT().Deliver(txn).Return(sim.NewSendError())

		Expect(a.Tick()).To(BeFalse())
		Expect(a.assembledMsgs).To(HaveLen(1))

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		devicePort.EXPECT().Deliver(txn).Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.assembledMsgs).To(BeEmpty())
	})

	It("should drop non-transaction messages from a device port", func() {
		bogus := messaging.NewCredit(
			devicePort.AsRemote(), "Somewhere.Port", 0)

		devicePort.EXPECT().PeekOutgoing().Return(bogus)
		devicePort.EXPECT().RetrieveOutgoing().Return(bogus)
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.flitsToSend[0]).To(BeEmpty())
		Expect(a.flitsToSend[1]).To(BeEmpty())
	})

	It("should stop accepting flits at the pending delivery cap", func() {
		devicePort.EXPECT().SetConnection(gomock.Any())
		capped := MakeBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithNumVCs(2).
			WithFlitByteSize(32).
			WithInitCredits(1).
			WithPendingDeliveryCap(1).
			WithDestinationResolver(
				func(id addressing.DestID) (sim.RemotePort, error) {
					return "RemoteModule.Port", nil
				}).
			Build("CappedAdapter")
		capped.NetworkPort = networkPort
		capped.SetRouterPort(routerPort)
		capped.PlugIn(devicePort)

		txn := messaging.TransactionBuilder{}.
			WithSrc("RemoteModule.Port").
			WithDestID(3).
			WithPayload(make([]byte, 64)).
			Build()
		txn.Meta().Dst = devicePort.AsRemote()
		head := messaging.FlitBuilder{}.
			WithSrc("Router.Local").
			WithDst(capped.NetworkPort.AsRemote()).
			WithSeqID(0).
			WithNumFlitInMsg(2).
			WithVC(0).
			WithMsg(txn).
			Build()

		// One assembly fills the cap; the network port is not peeked again.
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(head)
		networkPort.EXPECT().RetrieveIncoming()

		Expect(capped.Tick()).To(BeTrue())
		Expect(capped.assemblingMsgTable).To(HaveLen(1))
	})

	It("should panic when a flit arrives out of order", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc("RemoteModule.Port").
			WithDestID(3).
			WithPayload(make([]byte, 64)).
			Build()
		flit := messaging.FlitBuilder{}.
			WithSeqID(1).
			WithNumFlitInMsg(2).
			WithVC(0).
			WithMsg(txn).
			Build()

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(flit)

		Expect(func() { a.Tick() }).To(Panic())
	})

	It("should abandon a transaction that exceeds the send timeout", func() {
		a.sendTimeout = 10
		a.credits[0] = 0
		a.credits[1] = 0

		txn := messaging.TransactionBuilder{}.
			WithSrc(devicePort.AsRemote()).
			WithDestID(5).
			WithPayload(make([]byte, 64)).
			Build()
		txn.Meta().Dst = "RemoteModule.Port"
		a.fragment(txn)
		Expect(a.inFlight).To(HaveLen(1))

		now = 20e-9

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.inFlight).To(BeEmpty())
		Expect(a.flitsToSend[1]).To(BeEmpty())
	})

	It("should flush a partially injected transaction on timeout", func() {
		a.sendTimeout = 10

		txn := messaging.TransactionBuilder{}.
			WithSrc(devicePort.AsRemote()).
			WithDestID(4).
			WithPayload(make([]byte, 64)).
			Build()
		txn.Meta().Dst = "RemoteModule.Port"
		a.fragment(txn)

		By("injecting the first flit with the only credit")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		networkPort.EXPECT().Send(gomock.Any()).Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.inFlight[txn.Meta().ID].injected).To(Equal(1))

		By("replacing the rest with a last-marked flush flit")
		now = 20e-9

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.inFlight).To(BeEmpty())
		Expect(a.flitsToSend[0]).To(HaveLen(1))

		flush := a.flitsToSend[0][0]
		Expect(flush.SeqID).To(Equal(1))
		Expect(flush.Last).To(BeTrue())
		Expect(flush.Msg).To(BeIdenticalTo(txn))

		By("consuming a returned credit")
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().
			PeekIncoming().
			Return(messaging.NewCredit(routerPort,
				a.NetworkPort.AsRemote(), 0))
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())

		By("sending the flush flit with the new credit")
		var sent []*messaging.Flit
		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(nil)
		networkPort.EXPECT().
			Send(gomock.Any()).
			Do(func(msg sim.Msg) {
				sent = append(sent, msg.(*messaging.Flit))
			}).
			Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(sent).To(HaveLen(1))
		Expect(sent[0]).To(BeIdenticalTo(flush))
		Expect(a.flitsToSend[0]).To(BeEmpty())
	})

	It("should discard a partial assembly closed by a flush flit", func() {
		txn := messaging.TransactionBuilder{}.
			WithSrc("RemoteModule.Port").
			WithDestID(3).
			WithPayload(make([]byte, 96)).
			Build()
		txn.Meta().Dst = devicePort.AsRemote()

		head := messaging.FlitBuilder{}.
			WithSrc("Router.Local").
			WithDst(a.NetworkPort.AsRemote()).
			WithSeqID(0).
			WithNumFlitInMsg(3).
			WithVC(0).
			WithMsg(txn).
			Build()
		flush := messaging.FlitBuilder{}.
			WithSrc("Router.Local").
			WithDst(a.NetworkPort.AsRemote()).
			WithSeqID(1).
			WithNumFlitInMsg(2).
			WithVC(0).
			WithMsg(txn).
			Build()
		Expect(flush.Last).To(BeTrue())

		devicePort.EXPECT().PeekOutgoing().Return(nil)
		networkPort.EXPECT().PeekIncoming().Return(head)
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(flush)
		networkPort.EXPECT().RetrieveIncoming()
		networkPort.EXPECT().PeekIncoming().Return(nil)

		Expect(a.Tick()).To(BeTrue())
		Expect(a.assemblingMsgTable).To(BeEmpty())
		Expect(a.assembledMsgs).To(BeEmpty())
		Expect(a.creditsOut).To(HaveLen(2))
	})
})
