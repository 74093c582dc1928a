package raydb

import "github.com/raydb/raydb/internal/model"

// CacheManager is the collaborator hook spec.md §6.2 names for an external
// traversal/property cache sitting in front of the merged read path.
// Options.Cache holds a wired CacheManager, but raydb's own mutations and
// reads never call it: commits do not invalidate its entries and lookups
// do not consult it.
type CacheManager interface {
	InvalidateNode(id model.NodeID)
	InvalidateEdge(e model.Edge)
	GetTraversal(n model.NodeID, etype *model.ETypeID) ([]model.Edge, bool)
	SetTraversal(n model.NodeID, etype *model.ETypeID, edges []model.Edge)
	GetNodeProp(n model.NodeID, key model.PropKeyID) (model.PropValue, bool)
	SetNodeProp(n model.NodeID, key model.PropKeyID, v model.PropValue)
	GetEdgeProp(e model.Edge, key model.PropKeyID) (model.PropValue, bool)
	SetEdgeProp(e model.Edge, key model.PropKeyID, v model.PropValue)
}

// MVCCManager is the collaborator hook for an external multi-version
// concurrency layer; raydb's own transaction model is single-writer
// (spec.md §5's Non-goals), so this interface exists purely as the named
// seam a future MVCC collaborator would implement; nothing in this module
// calls it or implements it.
type MVCCManager interface {
	RecordRead(txid uint64, n model.NodeID)
	RecordWrite(txid uint64, n model.NodeID)
	BeginTx() (txid uint64)
	CommitTx(txid uint64) error
	AbortTx(txid uint64) error
	GetNodeVersion(n model.NodeID, txid uint64) (model.NodeID, bool)
	AppendNodeVersion(n model.NodeID, txid uint64)
	AppendEdgeVersion(e model.Edge, txid uint64)
}

// VectorStore is the collaborator hook for an external vector/PQ/ANN index
// keyed by PropKeyID (spec.md §6.2); VECTOR_F32 property values are never
// embedded in the CSR snapshot itself (see model.PropValue). raydb itself
// never calls a VectorStore; Options.Vector only holds one.
type VectorStore interface {
	Put(key model.PropKeyID, n model.NodeID, v []float32) error
	Get(key model.PropKeyID, n model.NodeID) ([]float32, bool)
	Delete(key model.PropKeyID, n model.NodeID) error
	Search(key model.PropKeyID, query []float32, k int) ([]model.NodeID, error)
}
