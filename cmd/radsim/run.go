package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/radsim-arch/radsim/analysis"
	"github.com/radsim-arch/radsim/datarecording"
	"github.com/radsim-arch/radsim/monitoring"
	"github.com/radsim-arch/radsim/noc/acceptance"
	"github.com/radsim-arch/radsim/rad/design"
	"github.com/radsim-arch/radsim/sim"
	"github.com/radsim-arch/radsim/telemetry"
)

var runFlags struct {
	configPath  string
	numTxns     uint64
	payloadSize int
	seed        int64
	csvPrefix   string
	sqlitePath  string
	perfPeriod  float64
	parallel    bool
	monitorOn   bool
	monitorPort int
	openBrowser bool
	verbose     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a random traffic experiment on a simulated cluster.",
	Long: `Run builds the cluster described by the configuration file, ` +
		`places one traffic agent on every mesh tile, and sends randomly ` +
		`addressed transactions until all of them are delivered.`,
	Run: func(_ *cobra.Command, _ []string) {
		err := runExperiment()
		if err != nil {
			log.Fatalf("experiment failed: %s", err)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.configPath, "config", "",
		"cluster configuration file (defaults apply when empty)")
	runCmd.Flags().Uint64Var(&runFlags.numTxns, "num-txns", 100,
		"number of transactions to send")
	runCmd.Flags().IntVar(&runFlags.payloadSize, "payload-bytes", 256,
		"payload size of each transaction")
	runCmd.Flags().Int64Var(&runFlags.seed, "seed", 0,
		"random seed of the traffic pattern")
	runCmd.Flags().StringVar(&runFlags.csvPrefix, "csv", "",
		"prefix for telemetry CSV export at teardown")
	runCmd.Flags().StringVar(&runFlags.sqlitePath, "sqlite", "",
		"path for telemetry SQLite export at teardown")
	runCmd.Flags().Float64Var(&runFlags.perfPeriod, "perf-period", 0,
		"port and buffer sampling period in seconds, 0 samples once "+
			"per run, requires --sqlite")
	runCmd.Flags().BoolVar(&runFlags.parallel, "parallel", false,
		"use the parallel event engine")
	runCmd.Flags().BoolVar(&runFlags.monitorOn, "monitor", false,
		"start the monitoring HTTP server")
	runCmd.Flags().IntVar(&runFlags.monitorPort, "monitor-port", 0,
		"port of the monitoring server")
	runCmd.Flags().BoolVar(&runFlags.openBrowser, "open-browser", false,
		"open the monitoring server in the default browser")
	runCmd.Flags().BoolVar(&runFlags.verbose, "verbose", false,
		"log every event the engine triggers")

	rootCmd.AddCommand(runCmd)
}

func runExperiment() error {
	rand.Seed(runFlags.seed)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var engine sim.Engine = sim.NewSerialEngine()
	if runFlags.parallel {
		engine = sim.NewParallelEngine()
	}

	if runFlags.verbose {
		engine.AcceptHook(sim.NewEventLogger(
			log.New(os.Stderr, "", 0), engine))
	}

	freq := sim.Freq(cfg.NoCFreq())
	collector := telemetry.NewCollector(freq)

	test := acceptance.NewTest()
	registry := design.NewRegistry()
	agents := placeAgents(cfg, engine, freq, test, registry)

	ctx, err := buildDesign(cfg, engine, registry, collector)
	if err != nil {
		return err
	}

	assignAddresses(ctx, test, agents)
	test.GenerateTransactions(runFlags.numTxns, runFlags.payloadSize)

	recorder := setUpExports(collector)
	setUpPerfAnalysis(recorder, engine, ctx, agents)
	monitor := setUpMonitor(engine, collector, agents)

	bar := monitor.CreateProgressBar("Transactions", runFlags.numTxns)
	bar.IncrementInProgress(runFlags.numTxns)

	for _, a := range agents {
		a.TickLater()
	}

	err = engine.Run()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	engine.Finished()

	bar.MoveInProgressToFinished(uint64(test.ReceivedCount()))
	monitor.CompleteProgressBar(bar)

	test.MustHaveReceivedAllTxns()
	test.ReportBandwidthAchieved(engine.CurrentTime())

	// The SQLite dump snapshots the collector, so it runs after the run.
	if recorder != nil {
		collector.ExportSQLite(recorder)
	}

	printReport(cfg, collector, engine.CurrentTime())

	return nil
}

func loadConfig() (*design.Config, error) {
	if runFlags.configPath == "" {
		return design.DefaultConfig(), nil
	}

	return design.LoadConfig(runFlags.configPath)
}

// placeAgents creates one traffic agent per mesh tile on every RAD and
// registers its port as a fabric master.
func placeAgents(
	cfg *design.Config,
	engine sim.Engine,
	freq sim.Freq,
	test *acceptance.Test,
	registry *design.Registry,
) []*acceptance.Agent {
	var agents []*acceptance.Agent

	for radID := 0; radID < cfg.Cluster.NumRADs; radID++ {
		for y := 0; y < cfg.NoC.DimY; y++ {
			for x := 0; x < cfg.NoC.DimX; x++ {
				name := fmt.Sprintf("Agent%d.T%d", radID,
					y*cfg.NoC.DimX+x)
				a := acceptance.NewAgent(engine, freq, name, 1, test)
				test.RegisterAgent(a)
				registry.RegisterMasterPort(name, a.AgentPorts[0],
					cfg.NoC.FlitByteSize, cfg.Adapters.FIFODepth)

				agents = append(agents, a)
			}
		}
	}

	return agents
}

func buildDesign(
	cfg *design.Config,
	engine sim.Engine,
	registry *design.Registry,
	collector telemetry.Collector,
) (*design.DesignContext, error) {
	b := design.MakeBuilder().
		WithEngine(engine).
		WithRegistry(registry).
		WithConfig(cfg).
		WithTelemetryCollector(collector)

	for radID := 0; radID < cfg.Cluster.NumRADs; radID++ {
		b = b.WithRAD(fmt.Sprintf("rad%d", radID),
			radPlacements(cfg, radID), nil)
	}

	return b.Build()
}

func radPlacements(cfg *design.Config, radID int) []design.Placement {
	var placements []design.Placement

	for y := 0; y < cfg.NoC.DimY; y++ {
		for x := 0; x < cfg.NoC.DimX; x++ {
			placements = append(placements, design.Placement{
				ModuleName: fmt.Sprintf("Agent%d.T%d", radID,
					y*cfg.NoC.DimX+x),
				NoCID: 0,
				X:     x,
				Y:     y,
				Role:  design.RoleMaster,
			})
		}
	}

	return placements
}

func assignAddresses(
	ctx *design.DesignContext,
	test *acceptance.Test,
	agents []*acceptance.Agent,
) {
	for _, a := range agents {
		addr, err := ctx.GetPortDestinationID(a.Name())
		if err != nil {
			panic(err)
		}

		test.AssignAddress(a.AgentPorts[0], addr)
	}
}

func setUpExports(collector *telemetry.CollectorImpl) datarecording.DataRecorder {
	if runFlags.csvPrefix != "" {
		collector.ExportCSVAtExit(runFlags.csvPrefix)
	}

	if runFlags.sqlitePath == "" {
		return nil
	}

	return datarecording.New(runFlags.sqlitePath)
}

// setUpPerfAnalysis samples the traffic through every agent and fabric port
// into the SQLite database. It does nothing when no database is requested.
func setUpPerfAnalysis(
	recorder datarecording.DataRecorder,
	engine sim.Engine,
	ctx *design.DesignContext,
	agents []*acceptance.Agent,
) {
	if recorder == nil {
		return
	}

	b := analysis.MakePerfAnalyzerBuilder().
		WithEngine(engine).
		WithDataRecorder(recorder)
	if runFlags.perfPeriod > 0 {
		b = b.WithPeriod(sim.VTimeInSec(runFlags.perfPeriod))
	}

	perf := b.Build()

	for _, a := range agents {
		perf.RegisterComponent(a)
	}

	for _, m := range ctx.Meshes {
		for _, loc := range m.Tiles() {
			perf.RegisterComponent(m.Router(loc))

			if adp := m.Adapter(loc); adp != nil {
				perf.RegisterComponent(adp)
			}
		}
	}
}

func setUpMonitor(
	engine sim.Engine,
	collector telemetry.Collector,
	agents []*acceptance.Agent,
) *monitoring.Monitor {
	monitor := monitoring.NewMonitor()
	monitor.RegisterEngine(engine)
	monitor.RegisterTelemetryCollector(collector)

	for _, a := range agents {
		monitor.RegisterComponent(a)
	}

	if runFlags.monitorOn {
		monitor = monitor.WithPortNumber(runFlags.monitorPort)
		if runFlags.openBrowser {
			monitor = monitor.WithBrowser()
		}

		monitor.StartServer()
	}

	return monitor
}

// printReport honors the telemetry verbosity of the cluster configuration:
// 0 is silent, 1 prints the bandwidth aggregate, 2 adds the flit trace.
func printReport(
	cfg *design.Config,
	c *telemetry.CollectorImpl,
	now sim.VTimeInSec,
) {
	if cfg.Cluster.TelemetryVerbosity < 1 {
		return
	}

	report := c.Aggregate(0, now)
	for _, row := range report.Rows {
		log.Println(row.String())
	}

	if cfg.Cluster.TelemetryVerbosity < 2 {
		return
	}

	err := c.WriteFlitTrace(os.Stderr)
	if err != nil {
		log.Printf("flit trace: %s", err)
	}
}
