// Package telemetry accumulates flit- and transaction-level measurements
// without perturbing the timing of the simulated fabric.
package telemetry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/radsim-arch/radsim/noc/messaging"
	"github.com/radsim-arch/radsim/sim"
)

// A Collector observes the adapter boundaries of the fabric. All record
// methods are passive: they never fail and never block the caller.
type Collector interface {
	RecordFlitSent(now sim.VTimeInSec, flit *messaging.Flit)
	RecordFlitReceived(now sim.VTimeInSec, flit *messaging.Flit)
	RecordIncompleteTransfer(
		now sim.VTimeInSec, msg sim.Msg, bytesDelivered int)
	RecordProtocolFault(now sim.VTimeInSec, port sim.RemotePort, desc string)

	Aggregate(windowStart, windowEnd sim.VTimeInSec) BandwidthReport
}

// A FlitRecord keeps the lifetime of one flit. A flit that is still in flight
// when the run ends has a negative ReceivedAt.
type FlitRecord struct {
	FlitID     string
	MsgID      string
	Src        string
	Dst        string
	VC         int
	Bytes      int
	SentAt     sim.VTimeInSec
	ReceivedAt sim.VTimeInSec
	HopCount   int
}

// A TransactionRecord aggregates the flits of one transaction.
type TransactionRecord struct {
	MsgID          string
	Src            string
	Dst            string
	TotalBytes     int
	DeliveredBytes int
	NumFlits       int
	FlitsSent      int
	FlitsReceived  int
	Start          sim.VTimeInSec
	End            sim.VTimeInSec
	Abandoned      bool
}

// Complete reports whether every flit of the transaction arrived.
func (r *TransactionRecord) Complete() bool {
	return !r.Abandoned && r.NumFlits > 0 && r.FlitsReceived == r.NumFlits
}

// A ProtocolFault records a handshake violation. Faults are reported, not
// fatal: the fabric stays inspectable for debugging.
type ProtocolFault struct {
	At   sim.VTimeInSec
	Port string
	Desc string
}

// A BandwidthRow reports the traffic between one pair of module endpoints.
type BandwidthRow struct {
	Src           string
	Dst           string
	Bytes         int
	ElapsedCycles uint64
	BitsPerSecond float64
	Incomplete    bool
}

// A BandwidthReport aggregates delivered traffic over an observation window.
type BandwidthReport struct {
	WindowStart sim.VTimeInSec
	WindowEnd   sim.VTimeInSec
	Rows        []BandwidthRow
}

// NewCollector creates a collector. The frequency is the clock the reported
// cycle counts refer to.
func NewCollector(freq sim.Freq) *CollectorImpl {
	return &CollectorImpl{
		freq:         freq,
		flits:        make(map[string]*FlitRecord),
		transactions: make(map[string]*TransactionRecord),
	}
}

// CollectorImpl is the default Collector implementation.
type CollectorImpl struct {
	sync.Mutex

	freq sim.Freq

	flits        map[string]*FlitRecord
	flitOrder    []string
	transactions map[string]*TransactionRecord
	txnOrder     []string
	faults       []ProtocolFault
}

// RecordFlitSent timestamps a flit leaving its source adapter.
func (c *CollectorImpl) RecordFlitSent(
	now sim.VTimeInSec,
	flit *messaging.Flit,
) {
	c.Lock()
	defer c.Unlock()

	meta := flit.Msg.Meta()

	c.flits[flit.Meta().ID] = &FlitRecord{
		FlitID:     flit.Meta().ID,
		MsgID:      meta.ID,
		Src:        string(meta.Src),
		Dst:        string(meta.Dst),
		VC:         flit.VC,
		Bytes:      len(flit.Payload),
		SentAt:     now,
		ReceivedAt: -1,
	}
	c.flitOrder = append(c.flitOrder, flit.Meta().ID)

	txn := c.transactionRecord(flit)
	if txn.FlitsSent == 0 {
		txn.Start = now
	}
	txn.FlitsSent++
}

// RecordFlitReceived timestamps a flit consumed by its destination adapter.
func (c *CollectorImpl) RecordFlitReceived(
	now sim.VTimeInSec,
	flit *messaging.Flit,
) {
	c.Lock()
	defer c.Unlock()

	record, found := c.flits[flit.Meta().ID]
	if !found {
		// A flit that was never timestamped at the source degrades the
		// report instead of crashing the run.
		record = &FlitRecord{
			FlitID: flit.Meta().ID,
			MsgID:  flit.Msg.Meta().ID,
			Src:    string(flit.Msg.Meta().Src),
			Dst:    string(flit.Msg.Meta().Dst),
			VC:     flit.VC,
			Bytes:  len(flit.Payload),
			SentAt: -1,
		}
		c.flits[flit.Meta().ID] = record
		c.flitOrder = append(c.flitOrder, flit.Meta().ID)
	}

	record.ReceivedAt = now
	record.HopCount = flit.HopCount

	txn := c.transactionRecord(flit)
	txn.FlitsReceived++
	txn.DeliveredBytes += len(flit.Payload)
	if txn.FlitsReceived == txn.NumFlits {
		txn.End = now
	}
}

// RecordIncompleteTransfer marks a transaction as abandoned. This happens
// when an adapter-side send exceeds its configured timeout.
func (c *CollectorImpl) RecordIncompleteTransfer(
	now sim.VTimeInSec,
	msg sim.Msg,
	bytesDelivered int,
) {
	c.Lock()
	defer c.Unlock()

	txn, found := c.transactions[msg.Meta().ID]
	if !found {
		txn = &TransactionRecord{
			MsgID:      msg.Meta().ID,
			Src:        string(msg.Meta().Src),
			Dst:        string(msg.Meta().Dst),
			TotalBytes: msg.Meta().TrafficBytes,
		}
		c.transactions[msg.Meta().ID] = txn
		c.txnOrder = append(c.txnOrder, msg.Meta().ID)
	}

	txn.Abandoned = true
	txn.End = now
}

// RecordProtocolFault logs a handshake violation.
func (c *CollectorImpl) RecordProtocolFault(
	now sim.VTimeInSec,
	port sim.RemotePort,
	desc string,
) {
	c.Lock()
	defer c.Unlock()

	c.faults = append(c.faults, ProtocolFault{
		At:   now,
		Port: string(port),
		Desc: desc,
	})
}

// Faults returns the protocol faults recorded so far.
func (c *CollectorImpl) Faults() []ProtocolFault {
	c.Lock()
	defer c.Unlock()

	return append([]ProtocolFault{}, c.faults...)
}

// Transactions returns the transaction records in first-seen order.
func (c *CollectorImpl) Transactions() []*TransactionRecord {
	c.Lock()
	defer c.Unlock()

	list := make([]*TransactionRecord, 0, len(c.txnOrder))
	for _, id := range c.txnOrder {
		list = append(list, c.transactions[id])
	}

	return list
}

// Flits returns the per-flit records in first-seen order.
func (c *CollectorImpl) Flits() []*FlitRecord {
	c.Lock()
	defer c.Unlock()

	list := make([]*FlitRecord, 0, len(c.flitOrder))
	for _, id := range c.flitOrder {
		list = append(list, c.flits[id])
	}

	return list
}

// Aggregate computes the bandwidth achieved between every pair of module
// endpoints over the observation window. Bandwidth is total payload bytes
// delivered divided by the elapsed cycles, scaled by the clock period.
// Pairs with in-flight or abandoned transfers are marked incomplete rather
// than dropped.
func (c *CollectorImpl) Aggregate(
	windowStart, windowEnd sim.VTimeInSec,
) BandwidthReport {
	c.Lock()
	defer c.Unlock()

	type pairKey struct{ src, dst string }

	bytesByPair := make(map[pairKey]int)
	incompleteByPair := make(map[pairKey]bool)

	for _, id := range c.txnOrder {
		txn := c.transactions[id]
		key := pairKey{txn.Src, txn.Dst}

		if !txn.Complete() {
			incompleteByPair[key] = true
		}

		if txn.End < windowStart || txn.Start > windowEnd {
			continue
		}

		bytesByPair[key] += txn.DeliveredBytes
	}

	elapsedCycles := c.freq.Cycle(windowEnd) - c.freq.Cycle(windowStart)

	report := BandwidthReport{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
	}

	keys := make([]pairKey, 0, len(bytesByPair))
	for key := range bytesByPair {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].src != keys[j].src {
			return keys[i].src < keys[j].src
		}
		return keys[i].dst < keys[j].dst
	})

	for _, key := range keys {
		row := BandwidthRow{
			Src:           key.src,
			Dst:           key.dst,
			Bytes:         bytesByPair[key],
			ElapsedCycles: elapsedCycles,
			Incomplete:    incompleteByPair[key],
		}

		if elapsedCycles > 0 {
			period := float64(c.freq.Period())
			row.BitsPerSecond = float64(row.Bytes) * 8 /
				(float64(elapsedCycles) * period)
		}

		report.Rows = append(report.Rows, row)
	}

	return report
}

func (c *CollectorImpl) transactionRecord(
	flit *messaging.Flit,
) *TransactionRecord {
	meta := flit.Msg.Meta()

	txn, found := c.transactions[meta.ID]
	if !found {
		txn = &TransactionRecord{
			MsgID:      meta.ID,
			Src:        string(meta.Src),
			Dst:        string(meta.Dst),
			TotalBytes: meta.TrafficBytes,
			NumFlits:   flit.NumFlitInMsg,
		}
		c.transactions[meta.ID] = txn
		c.txnOrder = append(c.txnOrder, meta.ID)
	}

	if txn.NumFlits == 0 {
		txn.NumFlits = flit.NumFlitInMsg
	}

	return txn
}

// String summarizes a bandwidth row for logs.
func (r BandwidthRow) String() string {
	return fmt.Sprintf("%s -> %s: %d bytes, %d cycles, %.4g bit/s",
		r.Src, r.Dst, r.Bytes, r.ElapsedCycles, r.BitsPerSecond)
}

// NopCollector discards every record. Adapters use it when no telemetry is
// requested.
type NopCollector struct{}

// NewNopCollector returns a collector that records nothing.
func NewNopCollector() *NopCollector {
	return &NopCollector{}
}

// RecordFlitSent does nothing.
func (NopCollector) RecordFlitSent(_ sim.VTimeInSec, _ *messaging.Flit) {}

// RecordFlitReceived does nothing.
func (NopCollector) RecordFlitReceived(_ sim.VTimeInSec, _ *messaging.Flit) {}

// RecordIncompleteTransfer does nothing.
func (NopCollector) RecordIncompleteTransfer(
	_ sim.VTimeInSec, _ sim.Msg, _ int,
) {
}

// RecordProtocolFault does nothing.
func (NopCollector) RecordProtocolFault(
	_ sim.VTimeInSec, _ sim.RemotePort, _ string,
) {
}

// Aggregate returns an empty report.
func (NopCollector) Aggregate(_, _ sim.VTimeInSec) BandwidthReport {
	return BandwidthReport{}
}
