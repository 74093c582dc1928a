package txn

import (
	"fmt"

	"github.com/raydb/raydb/internal/delta"
)

// Apply replays ops, in order, into d via the delta.Delta method calls.
// This is the single code path shared by a live commit (applied to the
// database's running overlay right after the WAL append is durable) and
// crash recovery (applied to a fresh overlay built from the WAL records of
// each committed transaction, in ascending txid order). Keeping one
// function for both means a recovered database's overlay is always
// bit-for-bit what a live commit would have produced from the same ops.
func Apply(d *delta.Delta, ops []Op) error {
	for _, op := range ops {
		switch op.Kind {
		case OpDefineLabel:
			d.DefineLabel(op.Label, op.Name)
		case OpDefineEtype:
			d.DefineEtype(op.Etype, op.Name)
		case OpDefinePropkey:
			d.DefinePropkey(op.Pkey, op.Name)
		case OpCreateNode:
			d.CreateNode(op.Node, op.Key, nil)
		case OpDeleteNode:
			d.DeleteNode(op.Node)
		case OpAddNodeLabel:
			d.AddNodeLabel(op.Node, op.Label)
		case OpRemoveNodeLabel:
			d.RemoveNodeLabel(op.Node, op.Label)
		case OpAddEdge:
			d.AddEdge(op.Edge)
		case OpDeleteEdge:
			d.DeleteEdge(op.Edge)
		case OpSetNodeProp:
			d.SetNodeProp(op.Node, op.Pkey, op.Value)
		case OpDelNodeProp:
			d.DelNodeProp(op.Node, op.Pkey)
		case OpSetEdgeProp:
			d.SetEdgeProp(op.Edge, op.Pkey, op.Value)
		case OpDelEdgeProp:
			d.DelEdgeProp(op.Edge, op.Pkey)
		default:
			return fmt.Errorf("txn: apply: unknown op kind %d", op.Kind)
		}
	}
	return nil
}
