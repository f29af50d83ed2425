package design

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/networking/mesh"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

// RADInput carries the declarative inputs of one RAD: which modules sit
// where, and which clock group each module belongs to.
type RADInput struct {
	Name       string
	Placements []Placement
	Clocks     []ClockAssignment
}

// Builder assembles a design context from port registrations and placement
// inputs. Build runs once, before simulated time advances.
type Builder struct {
	engine    sim.Engine
	registry  *Registry
	config    *Config
	collector telemetry.Collector
	rads      []RADInput
}

// MakeBuilder creates a design builder.
func MakeBuilder() Builder {
	return Builder{}
}

// WithEngine sets the engine that drives the cluster.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithRegistry sets the port registrations of the application modules.
func (b Builder) WithRegistry(r *Registry) Builder {
	b.registry = r
	return b
}

// WithConfig sets the resolved cluster configuration.
func (b Builder) WithConfig(c *Config) Builder {
	b.config = c
	return b
}

// WithTelemetryCollector sets the collector that observes the cluster.
func (b Builder) WithTelemetryCollector(c telemetry.Collector) Builder {
	b.collector = c
	return b
}

// WithRAD adds the placement and clock inputs of one RAD. The order of the
// calls assigns the RAD ids.
func (b Builder) WithRAD(
	name string,
	placements []Placement,
	clocks []ClockAssignment,
) Builder {
	b.rads = append(b.rads, RADInput{
		Name:       name,
		Placements: placements,
		Clocks:     clocks,
	})

	return b
}

// Build instantiates the router graph of every RAD and binds each
// registered port to its adapter. Configuration faults abort the build.
func (b Builder) Build() (*DesignContext, error) {
	if err := b.mustBeComplete(); err != nil {
		return nil, err
	}

	cfg := b.config
	numNodes := cfg.NoC.DimX * cfg.NoC.DimY

	ctx := &DesignContext{
		Engine:     b.engine,
		Collector:  b.collector,
		Scheme:     addressing.NewScheme(cfg.Cluster.NumRADs, numNodes),
		portAddr:   make(map[string]addressing.DestID),
		portByAddr: make(map[addressing.DestID]sim.RemotePort),
		radByAddr:  make(map[addressing.DestID]int),
		moduleFreq: make(map[string]sim.Freq),
	}

	if ctx.Collector == nil {
		ctx.Collector = telemetry.NewNopCollector()
	}

	placedIn := make(map[string]int)

	for radID, rad := range b.rads {
		if err := b.buildRAD(ctx, radID, rad, placedIn); err != nil {
			return nil, err
		}
	}

	if err := b.checkAllPlaced(placedIn); err != nil {
		return nil, err
	}

	if len(b.rads) > 1 {
		b.attachBridge(ctx)
	}

	for _, m := range ctx.Meshes {
		m.EstablishNetwork()
	}

	return ctx, nil
}

func (b Builder) mustBeComplete() error {
	if b.engine == nil {
		return fmt.Errorf("design requires an engine")
	}

	if b.registry == nil {
		return fmt.Errorf("design requires a port registry")
	}

	if b.config == nil {
		return fmt.Errorf("design requires a configuration")
	}

	if len(b.rads) == 0 {
		return fmt.Errorf("design requires at least one RAD")
	}

	if len(b.rads) > b.config.Cluster.NumRADs {
		return fmt.Errorf("%d RADs given but the cluster is configured "+
			"for %d", len(b.rads), b.config.Cluster.NumRADs)
	}

	return nil
}

func (b Builder) buildRAD(
	ctx *DesignContext,
	radID int,
	rad RADInput,
	placedIn map[string]int,
) error {
	cfg := b.config
	clockOf := clockIndex(rad.Clocks)

	connector := mesh.NewConnector().
		WithEngine(b.engine).
		WithFreq(sim.Freq(cfg.NoCFreq())).
		WithNumVCs(cfg.NoC.NumVCs).
		WithBufferDepth(cfg.NoC.BufferDepth).
		WithFlitByteSize(cfg.NoC.FlitByteSize).
		WithSendTimeout(cfg.Adapters.SendTimeoutCycles).
		WithAdapterFIFODepth(cfg.Adapters.FIFODepth).
		WithPendingDeliveryCap(cfg.Adapters.PendingDeliveryCap).
		WithVCAllocator(cfg.NoC.VCAllocPolicy, cfg.NoC.AllocIterations).
		WithStageDelays(cfg.NoC.RouteDelay, cfg.NoC.VCAllocDelay,
			cfg.NoC.SWAllocDelay, cfg.NoC.CreditDelay).
		WithLinkParameters(cfg.NoC.LinkStages, cfg.NoC.LinkCyclePerStage).
		WithDestinationResolver(ctx.resolverFor(radID)).
		WithTelemetryCollector(ctx.Collector)
	connector.CreateNetwork(fmt.Sprintf("RAD[%d]", radID))
	ctx.Meshes = append(ctx.Meshes, connector)

	occupied := make(map[[2]int]string)

	for _, p := range rad.Placements {
		if err := b.placeModule(
			ctx, radID, rad, p, connector, occupied,
			placedIn, clockOf,
		); err != nil {
			return err
		}
	}

	return nil
}

func (b Builder) placeModule(
	ctx *DesignContext,
	radID int,
	rad RADInput,
	p Placement,
	connector *mesh.Connector,
	occupied map[[2]int]string,
	placedIn map[string]int,
	clockOf map[string]int,
) error {
	cfg := b.config

	fault := func(format string, args ...interface{}) error {
		prefix := fmt.Sprintf("rad %d (%s), module %s, port %s: ",
			radID, rad.Name, p.ModuleName, p.Role)
		return fmt.Errorf(prefix+format, args...)
	}

	record := b.registry.Record(p.ModuleName)
	if record == nil {
		return fault("placement references an unregistered module")
	}

	if record.Role != p.Role {
		return fault("placement kind %s does not match registration %s",
			p.Role, record.Role)
	}

	if prevRAD, dup := placedIn[p.ModuleName]; dup {
		return fault("module is already placed on rad %d", prevRAD)
	}

	if p.X >= cfg.NoC.DimX || p.Y >= cfg.NoC.DimY {
		return fault("coordinate (%d, %d) is outside the %dx%d mesh",
			p.X, p.Y, cfg.NoC.DimX, cfg.NoC.DimY)
	}

	loc := [2]int{p.X, p.Y}
	if other, taken := occupied[loc]; taken {
		return fault("coordinate (%d, %d) is already claimed by %s",
			p.X, p.Y, other)
	}
	occupied[loc] = p.ModuleName

	node := uint64(p.Y*cfg.NoC.DimX + p.X)
	addr, err := ctx.Scheme.Encode(0, node, uint64(radID))
	if err != nil {
		return fault("%s", err)
	}

	freq, err := moduleClock(cfg, rad, clockOf, p.ModuleName)
	if err != nil {
		return fault("%s", err)
	}

	connector.AddTile(loc, []sim.Port{record.Port})

	placedIn[p.ModuleName] = radID
	ctx.portAddr[p.ModuleName] = addr
	ctx.portByAddr[addr] = record.Port.AsRemote()
	ctx.radByAddr[addr] = radID
	ctx.moduleFreq[p.ModuleName] = freq

	return nil
}

// checkAllPlaced rejects designs where a registered module has no
// placement. Transactions addressed to such a module could never reach it,
// so the fault surfaces at build time rather than mid-run.
func (b Builder) checkAllPlaced(placedIn map[string]int) error {
	for _, name := range b.registry.Names() {
		if _, placed := placedIn[name]; !placed {
			return fmt.Errorf(
				"module %s is registered but not placed on any rad; "+
					"its port is unreachable", name)
		}
	}

	return nil
}

// attachBridge puts one bridge port on the gateway tile of every RAD.
func (b Builder) attachBridge(ctx *DesignContext) {
	cfg := b.config

	ctx.Bridge = NewBridge("ClusterBridge",
		b.engine, sim.Freq(cfg.NoCFreq()),
		ctx.Scheme, len(b.rads),
		cfg.Adapters.FIFODepth)

	for radID, connector := range ctx.Meshes {
		side := ctx.Bridge.SidePort(radID)
		connector.AddTile([2]int{0, 0}, []sim.Port{side})
		ctx.bridgeRemote = append(ctx.bridgeRemote, side.AsRemote())
	}
}

func clockIndex(clocks []ClockAssignment) map[string]int {
	index := make(map[string]int)
	for _, c := range clocks {
		index[c.ModuleName] = c.ClockGroup
	}

	return index
}

// moduleClock picks the frequency of a module from its clock group. Modules
// without an assignment, and designs without per-group periods, run at the
// fabric clock.
func moduleClock(
	cfg *Config,
	rad RADInput,
	clockOf map[string]int,
	module string,
) (sim.Freq, error) {
	group, assigned := clockOf[module]
	if !assigned {
		return sim.Freq(cfg.NoCFreq()), nil
	}

	periods := radClockPeriods(cfg, rad.Name)
	if len(periods) == 0 {
		return sim.Freq(cfg.NoCFreq()), nil
	}

	if group >= len(periods) {
		return 0, fmt.Errorf(
			"clock group %d exceeds the %d configured periods",
			group, len(periods))
	}

	return sim.Freq(1e9 / periods[group]), nil
}

func radClockPeriods(cfg *Config, radName string) []float64 {
	for _, d := range cfg.Designs {
		if d.Name == radName {
			return d.ClockPeriodsNS
		}
	}

	return nil
}
