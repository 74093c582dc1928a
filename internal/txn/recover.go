package txn

import (
	"fmt"

	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/wal"
)

// Replay rebuilds a delta overlay from a recovered WAL scan, per spec.md
// §4.6's "Recovery on open": group records into committed transactions,
// decode each one's records back into Ops (skipping the framing-only BEGIN/
// COMMIT/ROLLBACK records), and replay them in ascending txid order through
// the same Apply function Commit uses, so recovery produces exactly the
// overlay a live commit would have.
//
// It returns the rebuilt delta, the highest txid observed (the caller's
// next allocation should start past it), and an error if any record's
// payload fails to decode.
func Replay(records []wal.Record) (*delta.Delta, uint64, error) {
	committed := wal.ExtractCommittedTransactions(records)
	order := wal.OrderedTxIDs(committed)

	d := delta.New()
	var maxTxID uint64
	for _, txid := range order {
		if txid > maxTxID {
			maxTxID = txid
		}
		ops, err := decodeOps(committed[txid])
		if err != nil {
			return nil, 0, fmt.Errorf("txn: replay tx %d: %w", txid, err)
		}
		if err := Apply(d, ops); err != nil {
			return nil, 0, fmt.Errorf("txn: replay tx %d: %w", txid, err)
		}
	}
	return d, maxTxID, nil
}

func decodeOps(recs []wal.Record) ([]Op, error) {
	ops := make([]Op, 0, len(recs))
	for _, rec := range recs {
		switch rec.Type {
		case wal.RecBegin, wal.RecCommit, wal.RecRollback:
			continue
		}
		op, err := FromRecord(rec)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}
