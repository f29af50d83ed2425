package acceptance

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/noc/networking/switching/adapter"
	"github.com/radsim-arch/radsim/rad/addressing"
	"github.com/radsim-arch/radsim/sim"
)

// Test drives a set of agents and checks that every transaction arrives at
// its destination, exactly once, with its payload intact.
type Test struct {
	agents []*Agent

	addrByPort map[sim.RemotePort]addressing.DestID
	portByAddr map[addressing.DestID]sim.RemotePort

	sentTxns      []*messaging.Transaction
	sentBySeq     map[uint64]*messaging.Transaction
	receivedSeqs  map[uint64]bool
	receivedOrder []uint64
}

// NewTest creates a new test.
func NewTest() *Test {
	return &Test{
		addrByPort:   make(map[sim.RemotePort]addressing.DestID),
		portByAddr:   make(map[addressing.DestID]sim.RemotePort),
		sentBySeq:    make(map[uint64]*messaging.Transaction),
		receivedSeqs: make(map[uint64]bool),
	}
}

// RegisterAgent adds an agent to the test.
func (t *Test) RegisterAgent(agent *Agent) {
	t.agents = append(t.agents, agent)
}

// AssignAddress gives one agent port a destination identifier.
func (t *Test) AssignAddress(port sim.Port, id addressing.DestID) {
	t.addrByPort[port.AsRemote()] = id
	t.portByAddr[id] = port.AsRemote()
}

// Resolver returns the destination resolver the fabric adapters should use.
func (t *Test) Resolver() adapter.DestinationResolver {
	return func(id addressing.DestID) (sim.RemotePort, error) {
		port, found := t.portByAddr[id]
		if !found {
			return "", fmt.Errorf("no port at address %d", uint64(id))
		}

		return port, nil
	}
}

// GenerateTransactions creates n transactions between random pairs of agent
// ports. Payload bytes follow a deterministic pattern so that the receiver
// can verify them.
func (t *Test) GenerateTransactions(n uint64, payloadBytes int) {
	for i := uint64(0); i < n; i++ {
		srcAgent := t.agents[rand.Intn(len(t.agents))]
		srcPort := srcAgent.AgentPorts[rand.Intn(len(srcAgent.AgentPorts))]

		dstAgent := srcAgent
		for dstAgent == srcAgent {
			dstAgent = t.agents[rand.Intn(len(t.agents))]
		}
		dstPort := dstAgent.AgentPorts[rand.Intn(len(dstAgent.AgentPorts))]

		t.addTransaction(i, srcAgent, srcPort, dstPort, payloadBytes)
	}
}

func (t *Test) addTransaction(
	seq uint64,
	srcAgent *Agent,
	srcPort, dstPort sim.Port,
	payloadBytes int,
) {
	payload := make([]byte, payloadBytes)
	for j := range payload {
		payload[j] = byte(seq + uint64(j))
	}

	dstAddr, found := t.addrByPort[dstPort.AsRemote()]
	if !found {
		panic(fmt.Sprintf("port %s has no address", dstPort.Name()))
	}

	txn := messaging.TransactionBuilder{}.
		WithSrc(srcPort.AsRemote()).
		WithDestID(dstAddr).
		WithTUser(seq).
		WithPayload(payload).
		Build()

	srcAgent.TxnsToSend = append(srcAgent.TxnsToSend, txn)
	t.sentTxns = append(t.sentTxns, txn)
	t.sentBySeq[seq] = txn
}

// receiveMsg marks that a transaction is received.
func (t *Test) receiveMsg(msg sim.Msg, recvPort sim.Port) {
	txn, ok := msg.(*messaging.Transaction)
	if !ok {
		panic("agent received a non-transaction message")
	}

	if txn.Meta().Dst != recvPort.AsRemote() {
		panic("transaction delivered to a wrong destination")
	}

	if t.receivedSeqs[txn.TUser] {
		panic("transaction is double delivered")
	}
	t.receivedSeqs[txn.TUser] = true
	t.receivedOrder = append(t.receivedOrder, txn.TUser)

	sent, found := t.sentBySeq[txn.TUser]
	if !found {
		panic("received a transaction that was never sent")
	}

	if !bytes.Equal(sent.Payload, txn.Payload) {
		panic(fmt.Sprintf(
			"transaction %s payload corrupted in transit", txn.Meta().ID))
	}
}

// ReceivedOrder returns the sequence numbers of the received transactions in
// arrival order.
func (t *Test) ReceivedOrder() []uint64 {
	return t.receivedOrder
}

// ReceivedCount returns the number of transactions received so far.
func (t *Test) ReceivedCount() int {
	return len(t.receivedSeqs)
}

// MustHaveReceivedAllTxns asserts that every sent transaction arrived.
func (t *Test) MustHaveReceivedAllTxns() {
	if len(t.sentTxns) == len(t.receivedSeqs) {
		return
	}

	for _, sent := range t.sentTxns {
		if !t.receivedSeqs[sent.TUser] {
			log.Printf("txn %s expected, but not received\n",
				sent.Meta().ID)
		}
	}

	panic("some transactions are dropped")
}

// ReportBandwidthAchieved dumps the bandwidth observed by each agent.
func (t *Test) ReportBandwidthAchieved(now sim.VTimeInSec) {
	for _, a := range t.agents {
		log.Printf(
			"agent %s, send bandwidth %.2f GB/s, recv bandwidth %.2f GB/s",
			a.Name(),
			float64(a.sendBytes)/float64(now)/1e9,
			float64(a.recvBytes)/float64(now)/1e9)
	}
}
