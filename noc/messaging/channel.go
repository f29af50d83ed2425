package messaging

import (
	"github.com/radsim-arch/radsim/pipelining"
	"github.com/radsim-arch/radsim/sim"
)

type msgPipeTask struct {
	msg sim.Msg
}

func (t msgPipeTask) TaskID() string {
	return t.msg.Meta().ID
}

type channelEnd struct {
	port            sim.Port
	pipeline        pipelining.Pipeline
	postPipelineBuf sim.Buffer
}

// A Channel is a bidirectional link between two ports with a configurable
// pipeline latency in each direction. Mesh links between neighboring routers
// are Channels.
type Channel struct {
	*sim.TickingComponent

	left, right *channelEnd

	width         int
	numStages     int
	cyclePerStage int
}

// PlugIn connects a port to the channel. A channel accepts exactly two ports.
func (c *Channel) PlugIn(port sim.Port) {
	c.Lock()
	defer c.Unlock()

	end := &channelEnd{port: port}
	end.postPipelineBuf = sim.NewBuffer(
		port.Name()+".ChannelPostPipelineBuf", c.width)
	end.pipeline = pipelining.MakeBuilder().
		WithPipelineWidth(c.width).
		WithNumStage(c.numStages).
		WithCyclePerStage(c.cyclePerStage).
		WithPostPipelineBuffer(end.postPipelineBuf).
		Build(port.Name() + ".ChannelPipeline")

	switch {
	case c.left == nil:
		c.left = end
	case c.right == nil:
		c.right = end
	default:
		panic("channel already connects two ports")
	}

	port.SetConnection(c)
}

// Unplug removes the association of a port and the channel.
func (c *Channel) Unplug(_ sim.Port) {
	panic("not implemented")
}

// NotifyAvailable is called by a port to notify that the port can receive
// messages again.
func (c *Channel) NotifyAvailable(_ sim.Port) {
	c.TickNow()
}

// NotifySend is called by a port to notify that a message is waiting to be
// transferred.
func (c *Channel) NotifySend() {
	c.TickNow()
}

// Tick moves messages through both directions of the channel.
func (c *Channel) Tick() bool {
	madeProgress := false

	madeProgress = c.moveEnd(c.left, c.right) || madeProgress
	madeProgress = c.moveEnd(c.right, c.left) || madeProgress

	return madeProgress
}

func (c *Channel) moveEnd(from, to *channelEnd) bool {
	if from == nil || to == nil {
		return false
	}

	madeProgress := false

	madeProgress = c.deliver(from, to) || madeProgress
	madeProgress = from.pipeline.Tick() || madeProgress
	madeProgress = c.accept(from) || madeProgress

	return madeProgress
}

func (c *Channel) deliver(from, to *channelEnd) bool {
	madeProgress := false

	for {
		item := from.postPipelineBuf.Peek()
		if item == nil {
			break
		}

		task := item.(msgPipeTask)
		err := to.port.Deliver(task.msg)
		if err != nil {
			break
		}

		from.postPipelineBuf.Pop()
		madeProgress = true

		if c.NumHooks() > 0 {
			c.InvokeHook(sim.HookCtx{
				Domain: c,
				Pos:    sim.HookPosConnDeliver,
				Item:   task.msg,
			})
		}
	}

	return madeProgress
}

func (c *Channel) accept(from *channelEnd) bool {
	madeProgress := false

	for i := 0; i < c.width; i++ {
		msg := from.port.PeekOutgoing()
		if msg == nil {
			break
		}

		if !from.pipeline.CanAccept() {
			break
		}

		from.pipeline.Accept(msgPipeTask{msg: msg})
		from.port.RetrieveOutgoing()
		madeProgress = true
	}

	return madeProgress
}

// ChannelBuilder can build channels.
type ChannelBuilder struct {
	engine        sim.Engine
	freq          sim.Freq
	width         int
	numStages     int
	cyclePerStage int
}

// MakeChannelBuilder creates a ChannelBuilder with default parameters.
func MakeChannelBuilder() ChannelBuilder {
	return ChannelBuilder{
		width:         1,
		numStages:     1,
		cyclePerStage: 1,
	}
}

// WithEngine sets the engine of the channel to build.
func (b ChannelBuilder) WithEngine(engine sim.Engine) ChannelBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the channel to build.
func (b ChannelBuilder) WithFreq(freq sim.Freq) ChannelBuilder {
	b.freq = freq
	return b
}

// WithPipelineParameters sets the width and the latency of the channel. A
// message takes numStages*cyclePerStage cycles to traverse one direction.
func (b ChannelBuilder) WithPipelineParameters(
	width, numStages, cyclePerStage int,
) ChannelBuilder {
	b.width = width
	b.numStages = numStages
	b.cyclePerStage = cyclePerStage

	return b
}

// Build creates a new channel.
func (b ChannelBuilder) Build(name string) *Channel {
	if b.engine == nil {
		panic("channel requires an engine")
	}

	if b.freq == 0 {
		panic("channel frequency cannot be 0")
	}

	c := &Channel{
		width:         b.width,
		numStages:     b.numStages,
		cyclePerStage: b.cyclePerStage,
	}
	c.TickingComponent = sim.NewSecondaryTickingComponent(
		name, b.engine, b.freq, c)

	return c
}
