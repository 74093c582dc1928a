package raydb

import "github.com/raydb/raydb/internal/txn"

// Tx is one pending, uncommitted transaction. It wraps the single current-
// tx slot internal/txn.Manager enforces (spec.md §5's single-writer
// model): only one Tx can be open at a time, mirroring the teacher's
// api.Tx's own begin/active/commit lifecycle.
type Tx struct {
	db *DB
	t  *txn.Txn
}

// BeginTx starts a new transaction, failing with ErrTransactionActive while
// another transaction (from this process) is still open.
func (db *DB) BeginTx() (*Tx, error) {
	t, err := db.txMgr.BeginTx()
	if err != nil {
		return nil, newError("BeginTx", err)
	}
	return &Tx{db: db, t: t}, nil
}

// TryBeginTx is BeginTx's non-blocking sibling (SPEC_FULL.md §13): it
// returns ErrTransactionActive immediately instead of waiting.
func (db *DB) TryBeginTx() (*Tx, error) {
	t, err := db.txMgr.TryBeginTx()
	if err != nil {
		return nil, newError("TryBeginTx", err)
	}
	return &Tx{db: db, t: t}, nil
}

// ID returns the transaction's allocated transaction id.
func (tx *Tx) ID() uint64 { return tx.t.ID() }

// autoCommit wraps a single logical mutation in its own begin/commit,
// rolling back on any failure — the shared plumbing behind every
// single-shot convenience method in node.go and edge.go, the way the
// teacher's api.DB.InsertDoc auto-wraps one write in its own Tx.
func (db *DB) autoCommit(op string, fn func(t *txn.Txn) error) error {
	t, err := db.txMgr.BeginTx()
	if err != nil {
		return newError(op, err)
	}
	if err := fn(t); err != nil {
		t.Rollback()
		return newError(op, err)
	}
	if err := t.Commit(); err != nil {
		return newError(op, err)
	}
	return nil
}

// Commit implements spec.md §4.6's commit(tx): append the ordered op log
// to the WAL, fsync a header reflecting the new state, and fold the same
// ops into the live committed overlay.
func (tx *Tx) Commit() error {
	if err := tx.t.Commit(); err != nil {
		return newError("Commit", err)
	}
	return nil
}

// Rollback discards the transaction's pending ops. Nothing was ever
// durably written, so there is nothing to undo beyond freeing the slot.
func (tx *Tx) Rollback() error {
	if err := tx.t.Rollback(); err != nil {
		return newError("Rollback", err)
	}
	return nil
}

// CreateNode records a new node with an optional unique key. The caller
// supplies id (from the Manager's id allocator) since allocation and the
// op log entry are separate steps — see node.go's CreateNode convenience
// method.
func (tx *Tx) CreateNode(id NodeID, key string) error {
	if err := tx.t.CreateNode(id, key); err != nil {
		return newError("CreateNode", err)
	}
	return nil
}

// DeleteNode records a node deletion.
func (tx *Tx) DeleteNode(id NodeID) error {
	if err := tx.t.DeleteNode(id); err != nil {
		return newError("DeleteNode", err)
	}
	return nil
}

// AddNodeLabel / RemoveNodeLabel record label membership changes.
func (tx *Tx) AddNodeLabel(id NodeID, l LabelID) error {
	if err := tx.t.AddNodeLabel(id, l); err != nil {
		return newError("AddNodeLabel", err)
	}
	return nil
}
func (tx *Tx) RemoveNodeLabel(id NodeID, l LabelID) error {
	if err := tx.t.RemoveNodeLabel(id, l); err != nil {
		return newError("RemoveNodeLabel", err)
	}
	return nil
}

// AddEdge / DeleteEdge record edge mutations, applying the §4.5
// cancellation rule against this transaction's own local overlay for
// read-your-own-writes, same as any other op.
func (tx *Tx) AddEdge(e Edge) error {
	if err := tx.t.AddEdge(e); err != nil {
		return newError("AddEdge", err)
	}
	return nil
}
func (tx *Tx) DeleteEdge(e Edge) error {
	if err := tx.t.DeleteEdge(e); err != nil {
		return newError("DeleteEdge", err)
	}
	return nil
}

// SetNodeProp / DelNodeProp record node property edits.
func (tx *Tx) SetNodeProp(id NodeID, key PropKeyID, v PropValue) error {
	if err := tx.t.SetNodeProp(id, key, v); err != nil {
		return newError("SetNodeProp", err)
	}
	return nil
}
func (tx *Tx) DelNodeProp(id NodeID, key PropKeyID) error {
	if err := tx.t.DelNodeProp(id, key); err != nil {
		return newError("DelNodeProp", err)
	}
	return nil
}

// SetEdgeProp / DelEdgeProp record edge property edits.
func (tx *Tx) SetEdgeProp(e Edge, key PropKeyID, v PropValue) error {
	if err := tx.t.SetEdgeProp(e, key, v); err != nil {
		return newError("SetEdgeProp", err)
	}
	return nil
}
func (tx *Tx) DelEdgeProp(e Edge, key PropKeyID) error {
	if err := tx.t.DelEdgeProp(e, key); err != nil {
		return newError("DelEdgeProp", err)
	}
	return nil
}

// DefineLabel / DefineEtype / DefinePropkey record new catalog entries
// within this transaction. Unlike DB.DefineLabel's auto-committed
// convenience form, callers here own the Commit/Rollback and are
// responsible for not racing a concurrent DB.DefineLabel over the same
// name — mixing the two styles for the same name in-flight is unsupported.
func (tx *Tx) DefineLabel(id LabelID, name string) error {
	if err := tx.t.DefineLabel(id, name); err != nil {
		return newError("DefineLabel", err)
	}
	return nil
}
func (tx *Tx) DefineEtype(id ETypeID, name string) error {
	if err := tx.t.DefineEtype(id, name); err != nil {
		return newError("DefineEtype", err)
	}
	return nil
}
func (tx *Tx) DefinePropkey(id PropKeyID, name string) error {
	if err := tx.t.DefinePropkey(id, name); err != nil {
		return newError("DefinePropkey", err)
	}
	return nil
}
