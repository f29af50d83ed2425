// Package acceptance provides traffic agents and checkers for whole-fabric
// tests and experiments.
package acceptance

import (
	"fmt"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/sim"
)

// Agent is an application module stand-in. It injects transactions into the
// fabric and checks the transactions it receives.
type Agent struct {
	*sim.TickingComponent
	test       *Test
	AgentPorts []sim.Port
	TxnsToSend []*messaging.Transaction
	sendBytes  uint64
	recvBytes  uint64
}

// NewAgent creates a new agent.
func NewAgent(
	engine sim.Engine,
	freq sim.Freq,
	name string,
	numPorts int,
	test *Test,
) *Agent {
	a := &Agent{}
	a.test = test
	a.TickingComponent = sim.NewTickingComponent(name, engine, freq, a)

	for i := 0; i < numPorts; i++ {
		p := sim.NewPort(a, 1, 1, fmt.Sprintf("%s.Port%d", name, i))
		a.AgentPorts = append(a.AgentPorts, p)
		a.AddPort(fmt.Sprintf("Port%d", i), p)
	}

	return a
}

// Tick tries to receive transactions and send transactions out.
func (a *Agent) Tick() bool {
	madeProgress := false
	madeProgress = a.send() || madeProgress
	madeProgress = a.recv() || madeProgress

	return madeProgress
}

func (a *Agent) send() bool {
	if len(a.TxnsToSend) == 0 {
		return false
	}

	txn := a.TxnsToSend[0]
	srcPort := a.findPortByName(txn.Meta().Src)

	err := srcPort.Send(txn)
	if err == nil {
		a.TxnsToSend = a.TxnsToSend[1:]
		a.sendBytes += uint64(txn.Meta().TrafficBytes)

		return true
	}

	return false
}

func (a *Agent) findPortByName(src sim.RemotePort) sim.Port {
	for _, port := range a.AgentPorts {
		if port.AsRemote() == src {
			return port
		}
	}

	panic(fmt.Sprintf("src port not found for %s", src))
}

func (a *Agent) recv() bool {
	madeProgress := false

	for _, port := range a.AgentPorts {
		msg := port.RetrieveIncoming()

		if msg != nil {
			a.test.receiveMsg(msg, port)
			a.recvBytes += uint64(msg.Meta().TrafficBytes)

			madeProgress = true
		}
	}

	return madeProgress
}
