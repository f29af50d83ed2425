package mesh

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/radsim-arch/radsim/sim"
)

var _ = Describe("Connector", func() {
	var (
		engine    sim.Engine
		connector *Connector
		portA     sim.Port
		portB     sim.Port
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		connector = NewConnector().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithNumVCs(2).
			WithBufferDepth(4)
		connector.CreateNetwork("Mesh")

		portA = sim.NewPort(nil, 1, 1, "ModuleA.Port")
		portB = sim.NewPort(nil, 1, 1, "ModuleB.Port")
	})

	It("should report the occupied tiles", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.AddTile([2]int{1, 1}, []sim.Port{portB})

		Expect(connector.Tiles()).To(ConsistOf(
			[2]int{0, 0}, [2]int{1, 1}))
	})

	It("should fill the bounding box with routers", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.AddTile([2]int{1, 1}, []sim.Port{portB})

		connector.EstablishNetwork()

		Expect(connector.Router([2]int{0, 0})).NotTo(BeNil())
		Expect(connector.Router([2]int{1, 0})).NotTo(BeNil())
		Expect(connector.Router([2]int{0, 1})).NotTo(BeNil())
		Expect(connector.Router([2]int{1, 1})).NotTo(BeNil())
		Expect(connector.Router([2]int{2, 0})).To(BeNil())
	})

	It("should only build adapters where ports are placed", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.AddTile([2]int{1, 1}, []sim.Port{portB})

		connector.EstablishNetwork()

		Expect(connector.Adapter([2]int{0, 0})).NotTo(BeNil())
		Expect(connector.Adapter([2]int{1, 1})).NotTo(BeNil())
		Expect(connector.Adapter([2]int{1, 0})).To(BeNil())
		Expect(connector.Adapter([2]int{0, 1})).To(BeNil())
	})

	It("should share one adapter among the ports of a tile", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.AddTile([2]int{0, 0}, []sim.Port{portB})

		connector.EstablishNetwork()

		a := connector.Adapter([2]int{0, 0})
		Expect(a.DevicePorts).To(HaveLen(2))
	})

	It("should carry the adapter buffering parameters", func() {
		connector.
			WithAdapterFIFODepth(8).
			WithPendingDeliveryCap(3)

		Expect(connector.adapterFIFO).To(Equal(8))
		Expect(connector.pendingCap).To(Equal(3))
	})

	It("should wire dimension-order routes between neighbors", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.AddTile([2]int{1, 1}, []sim.Port{portB})

		connector.EstablishNetwork()

		rt := connector.tiles[[2]int{0, 0}].rt
		next := rt.FindPort(portB.AsRemote())
		Expect(next).To(Equal(
			sim.RemotePort("Mesh.Router[0][0].RightPort")))

		rt = connector.tiles[[2]int{1, 0}].rt
		next = rt.FindPort(portB.AsRemote())
		Expect(next).To(Equal(
			sim.RemotePort("Mesh.Router[1][0].BottomPort")))

		rt = connector.tiles[[2]int{1, 1}].rt
		next = rt.FindPort(portB.AsRemote())
		Expect(next).To(Equal(
			sim.RemotePort("Mesh.Router[1][1].LocalPort")))
	})

	It("should tell the adapter its router port", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})

		connector.EstablishNetwork()

		a := connector.Adapter([2]int{0, 0})
		Expect(a.RouterPort()).To(Equal(
			sim.RemotePort("Mesh.Router[0][0].LocalPort")))
	})

	It("should refuse tiles after the network is established", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.EstablishNetwork()

		Expect(func() {
			connector.AddTile([2]int{1, 0}, []sim.Port{portB})
		}).To(Panic())
	})

	It("should refuse to establish the network twice", func() {
		connector.AddTile([2]int{0, 0}, []sim.Port{portA})
		connector.EstablishNetwork()

		Expect(func() { connector.EstablishNetwork() }).To(Panic())
	})
})
