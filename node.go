package raydb

import (
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/keyiter"
	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/txn"
)

// NodeOptions configures CreateNode: an optional unique key, initial
// labels, and initial properties, all recorded in the same transaction as
// the CREATE_NODE op itself (spec.md §4.6's "inline SET_NODE_PROP for
// fresh-node properties").
type NodeOptions struct {
	Key    string
	Labels []LabelID
	Props  map[PropKeyID]PropValue
}

// CreateNode allocates a new NodeID and commits it (with any requested
// key/labels/properties) as a single auto-committed transaction, the way
// the teacher's api.DB.InsertDoc wraps one write in its own Tx.
func (db *DB) CreateNode(opts NodeOptions) (NodeID, error) {
	id := db.txMgr.NextNodeID()
	tx, err := db.txMgr.BeginTx()
	if err != nil {
		return 0, newError("CreateNode", err)
	}
	if err := tx.CreateNode(id, opts.Key); err != nil {
		tx.Rollback()
		return 0, newError("CreateNode", err)
	}
	for _, l := range opts.Labels {
		if err := tx.AddNodeLabel(id, l); err != nil {
			tx.Rollback()
			return 0, newError("CreateNode", err)
		}
	}
	for k, v := range opts.Props {
		if err := tx.SetNodeProp(id, k, v); err != nil {
			tx.Rollback()
			return 0, newError("CreateNode", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, newError("CreateNode", err)
	}
	return id, nil
}

// DeleteNode deletes a node and every edge touching it, as a single
// auto-committed transaction.
func (db *DB) DeleteNode(id NodeID) error {
	return db.autoCommit("DeleteNode", func(tx *txn.Txn) error {
		return tx.DeleteNode(id)
	})
}

// AddNodeLabel / RemoveNodeLabel change a node's label membership as a
// single auto-committed transaction.
func (db *DB) AddNodeLabel(id NodeID, l LabelID) error {
	return db.autoCommit("AddNodeLabel", func(tx *txn.Txn) error {
		return tx.AddNodeLabel(id, l)
	})
}
func (db *DB) RemoveNodeLabel(id NodeID, l LabelID) error {
	return db.autoCommit("RemoveNodeLabel", func(tx *txn.Txn) error {
		return tx.RemoveNodeLabel(id, l)
	})
}

// SetNodeProp / DelNodeProp edit a node property as a single
// auto-committed transaction.
func (db *DB) SetNodeProp(id NodeID, key PropKeyID, v PropValue) error {
	return db.autoCommit("SetNodeProp", func(tx *txn.Txn) error {
		return tx.SetNodeProp(id, key, v)
	})
}
func (db *DB) DelNodeProp(id NodeID, key PropKeyID) error {
	return db.autoCommit("DelNodeProp", func(tx *txn.Txn) error {
		return tx.DelNodeProp(id, key)
	})
}

// Exists reports whether id names a live node: created in the overlay (and
// not since deleted), or present in the snapshot and not deleted in the
// overlay.
func (db *DB) Exists(id NodeID) (bool, error) {
	snap, err := db.currentSnapshot()
	if err != nil {
		return false, newError("Exists", err)
	}
	d := db.committed()
	if d.IsDeleted(id) {
		return false, nil
	}
	if d.IsCreated(id) {
		return true, nil
	}
	return snap != nil && snap.HasNode(id), nil
}

// LookupByKey resolves a user key to its NodeID, per spec.md §4.8.
func (db *DB) LookupByKey(key string) (NodeID, bool, error) {
	snap, err := db.currentSnapshot()
	if err != nil {
		return 0, false, newError("LookupByKey", err)
	}
	id, ok := keyiter.Lookup(snap, db.committed(), key)
	return id, ok, nil
}

// NodeProp returns id's value for key, merging any pending overlay edit
// over the snapshot's value; Null if unset either way.
func (db *DB) NodeProp(id NodeID, key PropKeyID) (PropValue, error) {
	d := db.committed()
	if nd := nodeDeltaFor(d, id); nd != nil {
		if v, ok := nd.Props[key]; ok {
			if v == nil {
				return Null, nil
			}
			return *v, nil
		}
	}
	snap, err := db.currentSnapshot()
	if err != nil {
		return Null, newError("NodeProp", err)
	}
	if snap == nil {
		return Null, nil
	}
	phys, ok := snap.NodeToPhys(id)
	if !ok {
		return Null, nil
	}
	return snap.NodeProp(phys, key), nil
}

// NodeLabels returns id's current label set, merging pending overlay
// additions/removals over the snapshot's labels.
func (db *DB) NodeLabels(id NodeID) ([]LabelID, error) {
	d := db.committed()
	snap, err := db.currentSnapshot()
	if err != nil {
		return nil, newError("NodeLabels", err)
	}

	set := make(map[LabelID]bool)
	if snap != nil {
		if phys, ok := snap.NodeToPhys(id); ok {
			for _, l := range snap.NodeLabels(phys) {
				set[l] = true
			}
		}
	}
	if nd := nodeDeltaFor(d, id); nd != nil {
		for l, added := range nd.Labels {
			set[l] = added
		}
	}

	out := make([]LabelID, 0, len(set))
	for l, present := range set {
		if present {
			out = append(out, l)
		}
	}
	return out, nil
}

// nodeDeltaFor returns id's pending overlay entry, whether it came from a
// fresh CreateNode or a later edit to a snapshot-resident node, or nil if
// the overlay has nothing pending for id.
func nodeDeltaFor(d *delta.Delta, id model.NodeID) *delta.NodeDelta {
	if nd, ok := d.CreatedNodes[id]; ok {
		return nd
	}
	if nd, ok := d.ModifiedNodes[id]; ok {
		return nd
	}
	return nil
}
