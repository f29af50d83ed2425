// Package arbitration provides the arbiters and allocators that resolve
// contention inside routers.
package arbitration

import "github.com/radsim-arch/radsim/sim"

// An Arbiter decides the order in which a set of buffers drain. Routers use
// one to assign the crossbar timeslots of each cycle.
type Arbiter interface {
	// AddBuffer adds a buffer that the arbiter manages.
	AddBuffer(buf sim.Buffer)

	// Arbitrate returns the managed buffers in the order they are granted
	// access this cycle. Buffers with nothing staged are skipped.
	Arbitrate() []sim.Buffer
}

// NewXBarArbiter creates an arbiter that rotates priority across the managed
// buffers, advancing the priority pointer by one each arbitration round so
// that no buffer starves.
func NewXBarArbiter() Arbiter {
	return &xbarArbiter{}
}

type xbarArbiter struct {
	buffers   []sim.Buffer
	nextIndex int
}

func (a *xbarArbiter) AddBuffer(buf sim.Buffer) {
	a.buffers = append(a.buffers, buf)
}

func (a *xbarArbiter) Arbitrate() []sim.Buffer {
	if len(a.buffers) == 0 {
		return nil
	}

	granted := make([]sim.Buffer, 0, len(a.buffers))

	for i := 0; i < len(a.buffers); i++ {
		index := (a.nextIndex + i) % len(a.buffers)
		buf := a.buffers[index]

		if buf.Size() == 0 {
			continue
		}

		granted = append(granted, buf)
	}

	a.nextIndex = (a.nextIndex + 1) % len(a.buffers)

	return granted
}
