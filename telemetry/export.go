package telemetry

import (
	"fmt"
	"io"
	"os"

	"github.com/tebeka/atexit"

	"github.com/radsim-arch/radsim/datarecording"
)

// WriteTransactionSummary writes one row per transaction in a simple
// comma-delimited format for offline analysis.
func (c *CollectorImpl) WriteTransactionSummary(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"msg_id, src, dst, bytes, flits, start, end, elapsed_cycles, "+
			"bandwidth_bps, complete\n")
	if err != nil {
		return err
	}

	for _, txn := range c.Transactions() {
		elapsed := uint64(0)
		bandwidth := 0.0

		if txn.Complete() {
			elapsed = c.freq.Cycle(txn.End) - c.freq.Cycle(txn.Start)
			if elapsed > 0 {
				bandwidth = float64(txn.DeliveredBytes) * 8 /
					(float64(elapsed) * float64(c.freq.Period()))
			}
		}

		_, err := fmt.Fprintf(w,
			"%s, %s, %s, %d, %d, %.10f, %.10f, %d, %.6g, %t\n",
			txn.MsgID, txn.Src, txn.Dst,
			txn.DeliveredBytes, txn.FlitsReceived,
			txn.Start, txn.End, elapsed, bandwidth, txn.Complete())
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteFlitTrace writes one row per flit.
func (c *CollectorImpl) WriteFlitTrace(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"flit_id, msg_id, src, dst, vc, bytes, sent, received, hops\n")
	if err != nil {
		return err
	}

	for _, flit := range c.Flits() {
		_, err := fmt.Fprintf(w,
			"%s, %s, %s, %s, %d, %d, %.10f, %.10f, %d\n",
			flit.FlitID, flit.MsgID, flit.Src, flit.Dst,
			flit.VC, flit.Bytes, flit.SentAt, flit.ReceivedAt,
			flit.HopCount)
		if err != nil {
			return err
		}
	}

	return nil
}

// ExportCSVAtExit registers a teardown hook that writes the transaction
// summary and the flit trace next to the given path prefix.
func (c *CollectorImpl) ExportCSVAtExit(prefix string) {
	atexit.Register(func() {
		err := c.exportCSV(prefix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "telemetry export failed: %s\n", err)
		}
	})
}

func (c *CollectorImpl) exportCSV(prefix string) error {
	txnFile, err := os.Create(prefix + "_transactions.csv")
	if err != nil {
		return err
	}
	defer txnFile.Close()

	err = c.WriteTransactionSummary(txnFile)
	if err != nil {
		return err
	}

	flitFile, err := os.Create(prefix + "_flits.csv")
	if err != nil {
		return err
	}
	defer flitFile.Close()

	return c.WriteFlitTrace(flitFile)
}

type transactionEntry struct {
	MsgID          string
	Src            string
	Dst            string
	DeliveredBytes int
	FlitsReceived  int
	Start          float64
	End            float64
	Complete       bool
}

type flitEntry struct {
	FlitID   string
	MsgID    string
	Src      string
	Dst      string
	VC       int
	Bytes    int
	SentAt   float64
	Received float64
	HopCount int
}

// ExportSQLite dumps the collected records into a SQLite database through
// the data recorder.
func (c *CollectorImpl) ExportSQLite(recorder datarecording.DataRecorder) {
	recorder.CreateTable("transactions", transactionEntry{})
	recorder.CreateTable("flits", flitEntry{})

	for _, txn := range c.Transactions() {
		recorder.InsertData("transactions", transactionEntry{
			MsgID:          txn.MsgID,
			Src:            txn.Src,
			Dst:            txn.Dst,
			DeliveredBytes: txn.DeliveredBytes,
			FlitsReceived:  txn.FlitsReceived,
			Start:          float64(txn.Start),
			End:            float64(txn.End),
			Complete:       txn.Complete(),
		})
	}

	for _, flit := range c.Flits() {
		recorder.InsertData("flits", flitEntry{
			FlitID:   flit.FlitID,
			MsgID:    flit.MsgID,
			Src:      flit.Src,
			Dst:      flit.Dst,
			VC:       flit.VC,
			Bytes:    flit.Bytes,
			SentAt:   float64(flit.SentAt),
			Received: float64(flit.ReceivedAt),
			HopCount: flit.HopCount,
		})
	}

	recorder.Flush()
}
