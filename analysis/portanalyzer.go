package analysis

import (
	"math"

	"github.com/tebeka/atexit"

	"github.com/radsim-arch/radsim/sim"
)

// PortAnalyzer collects the traffic through a port and reports the
// incoming and outgoing byte and message counts per period.
type PortAnalyzer struct {
	sim.TimeTeller
	PerfLogger

	usePeriod bool
	period    sim.VTimeInSec
	port      sim.Port

	lastTime       sim.VTimeInSec
	inTrafficByte  map[string]uint64
	inTrafficMsg   map[string]uint64
	outTrafficByte map[string]uint64
	outTrafficMsg  map[string]uint64
}

// Func records a message being sent out or received by the port.
func (h *PortAnalyzer) Func(ctx sim.HookCtx) {
	now := h.CurrentTime()
	msg, ok := ctx.Item.(sim.Msg)
	if !ok {
		return
	}

	if h.usePeriod {
		lastPeriodEndTime := h.periodEndTime(h.lastTime)
		if now > lastPeriodEndTime {
			h.summarize()
		}
	}

	isIncoming := ctx.Pos == sim.HookPosPortMsgRecvd

	remoteName := string(msg.Meta().Src)
	if !isIncoming {
		remoteName = string(msg.Meta().Dst)
	}

	h.lastTime = now

	if isIncoming {
		h.inTrafficByte[remoteName] += uint64(msg.Meta().TrafficBytes)
		h.inTrafficMsg[remoteName]++
	} else {
		h.outTrafficByte[remoteName] += uint64(msg.Meta().TrafficBytes)
		h.outTrafficMsg[remoteName]++
	}
}

func (h *PortAnalyzer) summarize() {
	now := h.CurrentTime()

	startTime := sim.VTimeInSec(0)
	endTime := now

	if h.usePeriod {
		startTime = h.periodStartTime(h.lastTime)
		endTime = h.periodEndTime(h.lastTime)

		if endTime > now {
			endTime = now
		}
	}

	for remote, byteCount := range h.inTrafficByte {
		h.AddDataEntry(PerfAnalyzerEntry{
			Start: startTime,
			End:   endTime,
			Where: h.port.Name(),
			What:  "IncomingByte." + remote,
			Value: float64(byteCount),
			Unit:  "Byte",
		})
	}

	for remote, msgCount := range h.inTrafficMsg {
		h.AddDataEntry(PerfAnalyzerEntry{
			Start: startTime,
			End:   endTime,
			Where: h.port.Name(),
			What:  "IncomingMsg." + remote,
			Value: float64(msgCount),
			Unit:  "Msg",
		})
	}

	for remote, byteCount := range h.outTrafficByte {
		h.AddDataEntry(PerfAnalyzerEntry{
			Start: startTime,
			End:   endTime,
			Where: h.port.Name(),
			What:  "OutgoingByte." + remote,
			Value: float64(byteCount),
			Unit:  "Byte",
		})
	}

	for remote, msgCount := range h.outTrafficMsg {
		h.AddDataEntry(PerfAnalyzerEntry{
			Start: startTime,
			End:   endTime,
			Where: h.port.Name(),
			What:  "OutgoingMsg." + remote,
			Value: float64(msgCount),
			Unit:  "Msg",
		})
	}

	h.inTrafficByte = make(map[string]uint64)
	h.inTrafficMsg = make(map[string]uint64)
	h.outTrafficByte = make(map[string]uint64)
	h.outTrafficMsg = make(map[string]uint64)
}

func (h *PortAnalyzer) periodStartTime(t sim.VTimeInSec) sim.VTimeInSec {
	return sim.VTimeInSec(math.Floor(float64(t/h.period))) * h.period
}

func (h *PortAnalyzer) periodEndTime(t sim.VTimeInSec) sim.VTimeInSec {
	return h.periodStartTime(t) + h.period
}

// PortAnalyzerBuilder can build a PortAnalyzer.
type PortAnalyzerBuilder struct {
	usePeriod  bool
	period     sim.VTimeInSec
	timeTeller sim.TimeTeller
	perfLogger PerfLogger
	port       sim.Port
}

// MakePortAnalyzerBuilder creates a PortAnalyzerBuilder.
func MakePortAnalyzerBuilder() PortAnalyzerBuilder {
	return PortAnalyzerBuilder{}
}

// WithPeriod sets the period of the PortAnalyzer.
func (b PortAnalyzerBuilder) WithPeriod(
	p sim.VTimeInSec,
) PortAnalyzerBuilder {
	b.usePeriod = true
	b.period = p

	return b
}

// WithTimeTeller sets the TimeTeller of the PortAnalyzer.
func (b PortAnalyzerBuilder) WithTimeTeller(
	tt sim.TimeTeller,
) PortAnalyzerBuilder {
	b.timeTeller = tt
	return b
}

// WithPerfLogger sets the logger the summaries are written to.
func (b PortAnalyzerBuilder) WithPerfLogger(l PerfLogger) PortAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithPort sets the port to analyze.
func (b PortAnalyzerBuilder) WithPort(p sim.Port) PortAnalyzerBuilder {
	b.port = p
	return b
}

// Build creates a PortAnalyzer.
func (b PortAnalyzerBuilder) Build() *PortAnalyzer {
	if b.timeTeller == nil {
		panic("PortAnalyzer requires a TimeTeller")
	}

	if b.perfLogger == nil {
		panic("PortAnalyzer requires a PerfLogger")
	}

	if b.port == nil {
		panic("PortAnalyzer requires a port")
	}

	a := &PortAnalyzer{
		TimeTeller: b.timeTeller,
		PerfLogger: b.perfLogger,
		usePeriod:  b.usePeriod,
		period:     b.period,
		port:       b.port,

		inTrafficByte:  make(map[string]uint64),
		inTrafficMsg:   make(map[string]uint64),
		outTrafficByte: make(map[string]uint64),
		outTrafficMsg:  make(map[string]uint64),
	}

	atexit.Register(func() { a.summarize() })

	return a
}
