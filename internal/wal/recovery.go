package wal

// ExtractCommittedTransactions groups a region's decoded records by
// transaction id and returns, per transaction, the ordered operation
// records (NodeOp/EdgeOp/PropOp/Catalog) for every transaction that has a
// matching Commit record. Transactions with no Commit (or with a
// Rollback) are dropped, so a crash between Begin and Commit is invisible
// to recovery — exactly the "replay only committed transactions" rule in
// spec.md §4.3.
func ExtractCommittedTransactions(records []Record) map[uint64][]Record {
	pending := make(map[uint64][]Record)
	committed := make(map[uint64][]Record)

	for _, rec := range records {
		switch rec.Type {
		case RecBegin:
			pending[rec.TxID] = nil
		case RecCommit:
			if ops, ok := pending[rec.TxID]; ok {
				committed[rec.TxID] = ops
			}
			delete(pending, rec.TxID)
		case RecRollback:
			delete(pending, rec.TxID)
		default:
			if _, ok := pending[rec.TxID]; ok {
				pending[rec.TxID] = append(pending[rec.TxID], rec)
			}
		}
	}
	return committed
}

// OrderedTxIDs returns the transaction ids of committed in ascending
// order, so recovery replay can apply transactions in commit order.
func OrderedTxIDs(committed map[uint64][]Record) []uint64 {
	ids := make([]uint64, 0, len(committed))
	for id := range committed {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}
