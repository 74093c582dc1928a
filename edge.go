package raydb

import (
	"github.com/raydb/raydb/internal/keyiter"
	"github.com/raydb/raydb/internal/snapshot"
	"github.com/raydb/raydb/internal/txn"
)

// AddEdge / DeleteEdge record an edge mutation as a single auto-committed
// transaction, applying the §4.5 add/delete cancellation rule against the
// live overlay.
func (db *DB) AddEdge(e Edge) error {
	return db.autoCommit("AddEdge", func(t *txn.Txn) error {
		return t.AddEdge(e)
	})
}
func (db *DB) DeleteEdge(e Edge) error {
	return db.autoCommit("DeleteEdge", func(t *txn.Txn) error {
		return t.DeleteEdge(e)
	})
}

// SetEdgeProp / DelEdgeProp edit an edge property as a single
// auto-committed transaction.
func (db *DB) SetEdgeProp(e Edge, key PropKeyID, v PropValue) error {
	return db.autoCommit("SetEdgeProp", func(t *txn.Txn) error {
		return t.SetEdgeProp(e, key, v)
	})
}
func (db *DB) DelEdgeProp(e Edge, key PropKeyID) error {
	return db.autoCommit("DelEdgeProp", func(t *txn.Txn) error {
		return t.DelEdgeProp(e, key)
	})
}

// HasEdge reports whether (src,etype,dst) is visible through the merged
// snapshot+overlay view.
func (db *DB) HasEdge(e Edge) (bool, error) {
	snap, err := db.currentSnapshot()
	if err != nil {
		return false, newError("HasEdge", err)
	}
	return keyiter.HasEdge(snap, db.committed(), e), nil
}

// OutNeighbors / InNeighbors return n's merged out/in edges, optionally
// restricted to a single edge type (etype == nil means "all types").
// InNeighbors only sees snapshot-side edges when the database was opened
// with Options.IncludeInEdges, per spec.md §4.4's optional inverted CSR.
func (db *DB) OutNeighbors(n NodeID, etype *ETypeID) ([]Edge, error) {
	snap, err := db.currentSnapshot()
	if err != nil {
		return nil, newError("OutNeighbors", err)
	}
	return keyiter.OutNeighbors(snap, db.committed(), n, etype), nil
}
func (db *DB) InNeighbors(n NodeID, etype *ETypeID) ([]Edge, error) {
	snap, err := db.currentSnapshot()
	if err != nil {
		return nil, newError("InNeighbors", err)
	}
	return keyiter.InNeighbors(snap, db.committed(), n, etype), nil
}

// EdgeProp returns e's value for key, merging any pending overlay edit
// over the snapshot's value; Null if unset either way or if e does not
// exist.
func (db *DB) EdgeProp(e Edge, key PropKeyID) (PropValue, error) {
	d := db.committed()
	if d.IsDeleted(e.Src) || d.IsDeleted(e.Dst) {
		return Null, nil
	}
	if m, ok := d.EdgeProps[e]; ok {
		if v, ok := m[key]; ok {
			if v == nil {
				return Null, nil
			}
			return *v, nil
		}
	}
	snap, err := db.currentSnapshot()
	if err != nil {
		return Null, newError("EdgeProp", err)
	}
	if snap == nil {
		return Null, nil
	}
	pos, ok := edgeCSRPosition(snap, e)
	if !ok {
		return Null, nil
	}
	return snap.EdgeProp(pos, key), nil
}

// edgeCSRPosition resolves e's absolute position in the snapshot's
// OUT_* arrays by range-restricting to src's out-edge row (via
// OutEdgeRange) and scanning within it for (etype,dst), mirroring
// Snapshot.HasEdge's own search but returning the position rather than a
// bool, since EdgeProp/EdgePropKeys are keyed by CSR position, not by the
// logical (src,etype,dst) triple.
func edgeCSRPosition(snap *snapshot.Snapshot, e Edge) (int, bool) {
	srcPhys, ok := snap.NodeToPhys(e.Src)
	if !ok {
		return 0, false
	}
	dstPhys, ok := snap.NodeToPhys(e.Dst)
	if !ok {
		return 0, false
	}
	start, end := snap.OutEdgeRange(srcPhys)
	edges := snap.OutEdges(srcPhys)
	for i := start; i < end; i++ {
		oe := edges[i-start]
		if oe.EType == e.EType && oe.Dst == dstPhys {
			return i, true
		}
	}
	return 0, false
}
