// Package analysis samples port traffic and buffer occupancy during a run
// and writes the samples to a data recorder for offline inspection.
package analysis

import (
	"github.com/radsim-arch/radsim/datarecording"
	"github.com/radsim-arch/radsim/sim"
)

// A PerfAnalyzerEntry is a single sample in the performance database.
type PerfAnalyzerEntry struct {
	Start sim.VTimeInSec
	End   sim.VTimeInSec
	Where string
	What  string
	Value float64
	Unit  string
}

// PerfLogger records performance data entries.
type PerfLogger interface {
	AddDataEntry(entry PerfAnalyzerEntry)
}

// PerfAnalyzer reports performance metrics during simulation. It attaches
// sampling hooks to the ports and buffers of every registered component.
type PerfAnalyzer struct {
	usePeriod bool
	period    sim.VTimeInSec
	engine    sim.Engine
	recorder  datarecording.DataRecorder
}

// AddDataEntry inserts one sample into the performance table.
func (p *PerfAnalyzer) AddDataEntry(entry PerfAnalyzerEntry) {
	p.recorder.InsertData("perf", entry)
}

// RegisterComponent attaches analyzers to the ports of a component.
func (p *PerfAnalyzer) RegisterComponent(c sim.Component) {
	for _, port := range c.Ports() {
		p.RegisterPort(port)
	}
}

// RegisterPort attaches a traffic analyzer to a port.
func (p *PerfAnalyzer) RegisterPort(port sim.Port) {
	b := MakePortAnalyzerBuilder().
		WithTimeTeller(p.engine).
		WithPerfLogger(p).
		WithPort(port)

	if p.usePeriod {
		b = b.WithPeriod(p.period)
	}

	port.AcceptHook(b.Build())
}

// RegisterBuffer attaches an occupancy analyzer to a buffer.
func (p *PerfAnalyzer) RegisterBuffer(buf sim.Buffer) {
	b := MakeBufferAnalyzerBuilder().
		WithTimeTeller(p.engine).
		WithPerfLogger(p).
		WithBuffer(buf)

	if p.usePeriod {
		b = b.WithPeriod(p.period)
	}

	buf.AcceptHook(b.Build())
}

// PerfAnalyzerBuilder can build a PerfAnalyzer.
type PerfAnalyzerBuilder struct {
	usePeriod bool
	period    sim.VTimeInSec
	engine    sim.Engine
	recorder  datarecording.DataRecorder
}

// MakePerfAnalyzerBuilder creates a PerfAnalyzerBuilder.
func MakePerfAnalyzerBuilder() PerfAnalyzerBuilder {
	return PerfAnalyzerBuilder{}
}

// WithPeriod sets the sampling period. Without a period, one summary per
// port covers the whole run.
func (b PerfAnalyzerBuilder) WithPeriod(
	p sim.VTimeInSec,
) PerfAnalyzerBuilder {
	b.usePeriod = true
	b.period = p

	return b
}

// WithEngine sets the engine that tells the analyzer the current time.
func (b PerfAnalyzerBuilder) WithEngine(e sim.Engine) PerfAnalyzerBuilder {
	b.engine = e
	return b
}

// WithDataRecorder sets the recorder the samples are written to.
func (b PerfAnalyzerBuilder) WithDataRecorder(
	r datarecording.DataRecorder,
) PerfAnalyzerBuilder {
	b.recorder = r
	return b
}

// Build creates a PerfAnalyzer.
func (b PerfAnalyzerBuilder) Build() *PerfAnalyzer {
	if b.engine == nil {
		panic("PerfAnalyzer requires an engine")
	}

	if b.recorder == nil {
		panic("PerfAnalyzer requires a data recorder")
	}

	p := &PerfAnalyzer{
		usePeriod: b.usePeriod,
		period:    b.period,
		engine:    b.engine,
		recorder:  b.recorder,
	}

	p.recorder.CreateTable("perf", PerfAnalyzerEntry{})

	return p
}
