package analysis

import (
	"math"

	"github.com/tebeka/atexit"

	"github.com/radsim-arch/radsim/sim"
)

// BufferAnalyzer tracks the occupancy of a buffer over time and reports the
// time-weighted average level per period.
type BufferAnalyzer struct {
	sim.TimeTeller
	PerfLogger

	buf       sim.Buffer
	usePeriod bool
	period    sim.VTimeInSec

	lastTime           sim.VTimeInSec
	lastBufLevel       int
	bufLevelToDuration map[int]sim.VTimeInSec
}

// Func records buffer push and pop events.
func (b *BufferAnalyzer) Func(ctx sim.HookCtx) {
	now := b.CurrentTime()
	buf := ctx.Domain.(sim.Buffer)

	if b.usePeriod {
		lastPeriodEndTime := b.periodEndTime(b.lastTime)

		if now > lastPeriodEndTime {
			b.summarizePeriod(now, lastPeriodEndTime)
		}
	}

	duration := now - b.lastTime
	b.bufLevelToDuration[b.lastBufLevel] += duration

	b.lastTime = now
	b.lastBufLevel = buf.Size()
}

func (b *BufferAnalyzer) summarizePeriod(
	now sim.VTimeInSec,
	lastPeriodEndTime sim.VTimeInSec,
) {
	lastPeriodDuration := lastPeriodEndTime - b.lastTime
	b.bufLevelToDuration[b.lastBufLevel] += lastPeriodDuration

	b.summarize()

	remainingTime := now - lastPeriodEndTime
	for remainingTime > b.period {
		b.AddDataEntry(PerfAnalyzerEntry{
			Start: lastPeriodEndTime,
			End:   lastPeriodEndTime + b.period,
			Where: b.buf.Name(),
			What:  "Level",
			Value: float64(b.lastBufLevel),
			Unit:  "Element",
		})

		remainingTime -= b.period
		lastPeriodEndTime += b.period
	}

	b.lastTime = lastPeriodEndTime
}

func (b *BufferAnalyzer) summarize() {
	sumLevel := sim.VTimeInSec(0)
	sumDuration := sim.VTimeInSec(0)

	for level, duration := range b.bufLevelToDuration {
		sumLevel += sim.VTimeInSec(level) * duration
		sumDuration += duration
	}

	if sumDuration == 0 {
		return
	}

	avgLevel := float64(sumLevel / sumDuration)
	if avgLevel == 0 {
		b.bufLevelToDuration = make(map[int]sim.VTimeInSec)
		return
	}

	startTime := b.periodStartTime(b.lastTime)
	endTime := b.periodEndTime(b.lastTime)

	b.AddDataEntry(PerfAnalyzerEntry{
		Start: startTime,
		End:   endTime,
		Where: b.buf.Name(),
		What:  "Level",
		Value: avgLevel,
		Unit:  "Element",
	})

	b.bufLevelToDuration = make(map[int]sim.VTimeInSec)
}

func (b *BufferAnalyzer) periodStartTime(t sim.VTimeInSec) sim.VTimeInSec {
	return sim.VTimeInSec(math.Floor(float64(t/b.period))) * b.period
}

func (b *BufferAnalyzer) periodEndTime(t sim.VTimeInSec) sim.VTimeInSec {
	return b.periodStartTime(t) + b.period
}

// BufferAnalyzerBuilder can build a BufferAnalyzer.
type BufferAnalyzerBuilder struct {
	usePeriod  bool
	period     sim.VTimeInSec
	timeTeller sim.TimeTeller
	perfLogger PerfLogger
	buffer     sim.Buffer
}

// MakeBufferAnalyzerBuilder creates a BufferAnalyzerBuilder.
func MakeBufferAnalyzerBuilder() BufferAnalyzerBuilder {
	return BufferAnalyzerBuilder{}
}

// WithPeriod sets the period of the BufferAnalyzer.
func (b BufferAnalyzerBuilder) WithPeriod(
	p sim.VTimeInSec,
) BufferAnalyzerBuilder {
	b.usePeriod = true
	b.period = p

	return b
}

// WithTimeTeller sets the TimeTeller of the BufferAnalyzer.
func (b BufferAnalyzerBuilder) WithTimeTeller(
	tt sim.TimeTeller,
) BufferAnalyzerBuilder {
	b.timeTeller = tt
	return b
}

// WithPerfLogger sets the logger the summaries are written to.
func (b BufferAnalyzerBuilder) WithPerfLogger(
	l PerfLogger,
) BufferAnalyzerBuilder {
	b.perfLogger = l
	return b
}

// WithBuffer sets the buffer to analyze.
func (b BufferAnalyzerBuilder) WithBuffer(buf sim.Buffer) BufferAnalyzerBuilder {
	b.buffer = buf
	return b
}

// Build creates a BufferAnalyzer.
func (b BufferAnalyzerBuilder) Build() *BufferAnalyzer {
	if b.timeTeller == nil {
		panic("BufferAnalyzer requires a TimeTeller")
	}

	if b.perfLogger == nil {
		panic("BufferAnalyzer requires a PerfLogger")
	}

	if b.buffer == nil {
		panic("BufferAnalyzer requires a buffer")
	}

	a := &BufferAnalyzer{
		TimeTeller: b.timeTeller,
		PerfLogger: b.perfLogger,
		usePeriod:  b.usePeriod,
		period:     b.period,
		buf:        b.buffer,

		bufLevelToDuration: make(map[int]sim.VTimeInSec),
	}

	atexit.Register(func() {
		duration := a.CurrentTime() - a.lastTime
		a.bufLevelToDuration[a.lastBufLevel] += duration
		a.summarize()
	})

	return a
}
