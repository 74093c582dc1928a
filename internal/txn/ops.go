// Package txn implements the transaction layer (spec.md §4.6): per-tx
// pending operation logs, the commit path (WAL append → header fsync →
// delta apply), and the shared apply logic recovery replay reuses.
package txn

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/raydb/raydb/internal/model"
	"github.com/raydb/raydb/internal/wal"
)

// OpKind discriminates an Op's sub-kind within its WAL record family.
// wal.RecordType picks the broad family (node/edge/prop/catalog); OpKind
// (stored in the record's Flags byte) picks which operation within it.
type OpKind uint8

const (
	OpDefineLabel OpKind = iota
	OpDefineEtype
	OpDefinePropkey
	OpCreateNode
	OpDeleteNode
	OpAddNodeLabel
	OpRemoveNodeLabel
	OpAddEdge
	OpDeleteEdge
	OpSetNodeProp
	OpDelNodeProp
	OpSetEdgeProp
	OpDelEdgeProp
)

// family maps an OpKind to the WAL record type it is carried in.
func (k OpKind) family() wal.RecordType {
	switch k {
	case OpDefineLabel, OpDefineEtype, OpDefinePropkey:
		return wal.RecCatalog
	case OpCreateNode, OpDeleteNode, OpAddNodeLabel, OpRemoveNodeLabel:
		return wal.RecNodeOp
	case OpAddEdge, OpDeleteEdge:
		return wal.RecEdgeOp
	default:
		return wal.RecPropOp
	}
}

// Op is one recorded mutation: enough information to serialize into a WAL
// record payload and to replay into a delta overlay. The same ordered Op
// sequence drives both the WAL payload at commit time and the delta apply
// logic shared by commit and recovery replay.
type Op struct {
	Kind  OpKind
	Node  model.NodeID
	Key   string // node key, for OpCreateNode
	Edge  model.Edge
	Label model.LabelID
	Etype model.ETypeID
	Pkey  model.PropKeyID
	Name  string // catalog definition name
	Value model.PropValue
}

// ToRecord encodes op as a WAL record ready for wal.Encode.
func ToRecord(txid uint64, op Op) wal.Record {
	return wal.Record{
		Type:    op.Kind.family(),
		Flags:   byte(op.Kind),
		TxID:    txid,
		Payload: encodePayload(op),
	}
}

// FromRecord decodes a WAL record back into an Op, given the op-kind byte
// recorded in the record's Flags (the caller already knows rec.Type, used
// only as a sanity cross-check).
func FromRecord(rec wal.Record) (Op, error) {
	kind := OpKind(rec.Flags)
	if kind.family() != rec.Type {
		return Op{}, fmt.Errorf("txn: op kind %d does not match record family %d", kind, rec.Type)
	}
	op, err := decodePayload(kind, rec.Payload)
	if err != nil {
		return Op{}, err
	}
	op.Kind = kind
	return op, nil
}

func putU64(buf []byte, v uint64) { binary.LittleEndian.PutUint64(buf, v) }
func putU32(buf []byte, v uint32) { binary.LittleEndian.PutUint32(buf, v) }

func encodePayload(op Op) []byte {
	switch op.Kind {
	case OpDefineLabel:
		return encodeCatalogDef(uint32(op.Label), op.Name)
	case OpDefineEtype:
		return encodeCatalogDef(uint32(op.Etype), op.Name)
	case OpDefinePropkey:
		return encodeCatalogDef(uint32(op.Pkey), op.Name)
	case OpCreateNode:
		return encodeCreateNode(op)
	case OpDeleteNode:
		buf := make([]byte, 8)
		putU64(buf, uint64(op.Node))
		return buf
	case OpAddNodeLabel, OpRemoveNodeLabel:
		buf := make([]byte, 12)
		putU64(buf, uint64(op.Node))
		putU32(buf[8:], uint32(op.Label))
		return buf
	case OpAddEdge, OpDeleteEdge:
		buf := make([]byte, 20)
		putU64(buf, uint64(op.Edge.Src))
		putU32(buf[8:], uint32(op.Edge.EType))
		putU64(buf[12:], uint64(op.Edge.Dst))
		return buf
	case OpSetNodeProp, OpDelNodeProp:
		return encodeNodeProp(op)
	case OpSetEdgeProp, OpDelEdgeProp:
		return encodeEdgeProp(op)
	default:
		return nil
	}
}

func decodePayload(kind OpKind, payload []byte) (Op, error) {
	switch kind {
	case OpDefineLabel:
		id, name, err := decodeCatalogDef(payload)
		return Op{Label: model.LabelID(id), Name: name}, err
	case OpDefineEtype:
		id, name, err := decodeCatalogDef(payload)
		return Op{Etype: model.ETypeID(id), Name: name}, err
	case OpDefinePropkey:
		id, name, err := decodeCatalogDef(payload)
		return Op{Pkey: model.PropKeyID(id), Name: name}, err
	case OpCreateNode:
		return decodeCreateNode(payload)
	case OpDeleteNode:
		if len(payload) < 8 {
			return Op{}, fmt.Errorf("txn: delete-node payload too short")
		}
		return Op{Node: model.NodeID(binary.LittleEndian.Uint64(payload))}, nil
	case OpAddNodeLabel, OpRemoveNodeLabel:
		if len(payload) < 12 {
			return Op{}, fmt.Errorf("txn: node-label payload too short")
		}
		return Op{
			Node:  model.NodeID(binary.LittleEndian.Uint64(payload)),
			Label: model.LabelID(binary.LittleEndian.Uint32(payload[8:])),
		}, nil
	case OpAddEdge, OpDeleteEdge:
		if len(payload) < 20 {
			return Op{}, fmt.Errorf("txn: edge op payload too short")
		}
		return Op{Edge: model.Edge{
			Src:   model.NodeID(binary.LittleEndian.Uint64(payload)),
			EType: model.ETypeID(binary.LittleEndian.Uint32(payload[8:])),
			Dst:   model.NodeID(binary.LittleEndian.Uint64(payload[12:])),
		}}, nil
	case OpSetNodeProp, OpDelNodeProp:
		return decodeNodeProp(kind, payload)
	case OpSetEdgeProp, OpDelEdgeProp:
		return decodeEdgeProp(kind, payload)
	default:
		return Op{}, fmt.Errorf("txn: unknown op kind %d", kind)
	}
}

func encodeCatalogDef(id uint32, name string) []byte {
	buf := make([]byte, 4+len(name))
	putU32(buf, id)
	copy(buf[4:], name)
	return buf
}

func decodeCatalogDef(payload []byte) (uint32, string, error) {
	if len(payload) < 4 {
		return 0, "", fmt.Errorf("txn: catalog-def payload too short")
	}
	return binary.LittleEndian.Uint32(payload), string(payload[4:]), nil
}

// encodeCreateNode: nodeId(8) keyLen(2) key. Labels and initial properties
// are not carried here — a CreateNode is always followed, within the same
// transaction, by the AddNodeLabel/SetNodeProp ops that establish them, so
// replay (commit or recovery) sees the identical op sequence either way.
func encodeCreateNode(op Op) []byte {
	buf := make([]byte, 10+len(op.Key))
	putU64(buf, uint64(op.Node))
	binary.LittleEndian.PutUint16(buf[8:], uint16(len(op.Key)))
	copy(buf[10:], op.Key)
	return buf
}

func decodeCreateNode(payload []byte) (Op, error) {
	if len(payload) < 10 {
		return Op{}, fmt.Errorf("txn: create-node payload too short")
	}
	node := model.NodeID(binary.LittleEndian.Uint64(payload))
	keyLen := int(binary.LittleEndian.Uint16(payload[8:]))
	if len(payload) < 10+keyLen {
		return Op{}, fmt.Errorf("txn: create-node payload truncated")
	}
	key := string(payload[10 : 10+keyLen])
	return Op{Node: node, Key: key}, nil
}

// encodeNodeProp: nodeId(8) pkey(4) [value, only for OpSetNodeProp]
func encodeNodeProp(op Op) []byte {
	if op.Kind == OpDelNodeProp {
		buf := make([]byte, 12)
		putU64(buf, uint64(op.Node))
		putU32(buf[8:], uint32(op.Pkey))
		return buf
	}
	val := encodeValue(op.Value)
	buf := make([]byte, 12+len(val))
	putU64(buf, uint64(op.Node))
	putU32(buf[8:], uint32(op.Pkey))
	copy(buf[12:], val)
	return buf
}

func decodeNodeProp(kind OpKind, payload []byte) (Op, error) {
	if len(payload) < 12 {
		return Op{}, fmt.Errorf("txn: node-prop payload too short")
	}
	node := model.NodeID(binary.LittleEndian.Uint64(payload))
	pkey := model.PropKeyID(binary.LittleEndian.Uint32(payload[8:]))
	op := Op{Node: node, Pkey: pkey}
	if kind == OpSetNodeProp {
		v, _, err := decodeValue(payload[12:])
		if err != nil {
			return Op{}, err
		}
		op.Value = v
	}
	return op, nil
}

// encodeEdgeProp: src(8) etype(4) dst(8) pkey(4) [value, only for OpSetEdgeProp]
func encodeEdgeProp(op Op) []byte {
	if op.Kind == OpDelEdgeProp {
		buf := make([]byte, 24)
		putU64(buf, uint64(op.Edge.Src))
		putU32(buf[8:], uint32(op.Edge.EType))
		putU64(buf[12:], uint64(op.Edge.Dst))
		putU32(buf[20:], uint32(op.Pkey))
		return buf
	}
	val := encodeValue(op.Value)
	buf := make([]byte, 24+len(val))
	putU64(buf, uint64(op.Edge.Src))
	putU32(buf[8:], uint32(op.Edge.EType))
	putU64(buf[12:], uint64(op.Edge.Dst))
	putU32(buf[20:], uint32(op.Pkey))
	copy(buf[24:], val)
	return buf
}

func decodeEdgeProp(kind OpKind, payload []byte) (Op, error) {
	if len(payload) < 24 {
		return Op{}, fmt.Errorf("txn: edge-prop payload too short")
	}
	e := model.Edge{
		Src:   model.NodeID(binary.LittleEndian.Uint64(payload)),
		EType: model.ETypeID(binary.LittleEndian.Uint32(payload[8:])),
		Dst:   model.NodeID(binary.LittleEndian.Uint64(payload[12:])),
	}
	pkey := model.PropKeyID(binary.LittleEndian.Uint32(payload[20:]))
	op := Op{Edge: e, Pkey: pkey}
	if kind == OpSetEdgeProp {
		v, _, err := decodeValue(payload[24:])
		if err != nil {
			return Op{}, err
		}
		op.Value = v
	}
	return op, nil
}

// encodeValue/decodeValue are the WAL payload's own value wire format: a
// 1-byte tag followed by a tag-specific body. Unlike the snapshot's fixed
// 16-byte form (internal/snapshot), there is no string table at the WAL
// layer to intern into, so STRING carries its raw UTF-8 bytes inline and
// VECTOR_F32 carries its raw float32 components inline; both round-trip
// exactly, unlike the snapshot form where VECTOR_F32 degrades to NULL.
func encodeValue(v model.PropValue) []byte {
	switch v.Tag {
	case model.TagNull:
		return []byte{byte(model.TagNull)}
	case model.TagBool:
		b := byte(0)
		if v.Bool {
			b = 1
		}
		return []byte{byte(model.TagBool), b}
	case model.TagI64:
		buf := make([]byte, 9)
		buf[0] = byte(model.TagI64)
		binary.LittleEndian.PutUint64(buf[1:], uint64(v.I64))
		return buf
	case model.TagF64:
		buf := make([]byte, 9)
		buf[0] = byte(model.TagF64)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(v.F64))
		return buf
	case model.TagString:
		buf := make([]byte, 5+len(v.Str))
		buf[0] = byte(model.TagString)
		putU32(buf[1:], uint32(len(v.Str)))
		copy(buf[5:], v.Str)
		return buf
	case model.TagVectorF32:
		buf := make([]byte, 5+4*len(v.Vec))
		buf[0] = byte(model.TagVectorF32)
		putU32(buf[1:], uint32(len(v.Vec)))
		for i, f := range v.Vec {
			binary.LittleEndian.PutUint32(buf[5+4*i:], math.Float32bits(f))
		}
		return buf
	default:
		return []byte{byte(model.TagNull)}
	}
}

func decodeValue(buf []byte) (model.PropValue, int, error) {
	if len(buf) < 1 {
		return model.PropValue{}, 0, fmt.Errorf("txn: value payload empty")
	}
	tag := model.ValueTag(buf[0])
	switch tag {
	case model.TagNull:
		return model.Null, 1, nil
	case model.TagBool:
		if len(buf) < 2 {
			return model.PropValue{}, 0, fmt.Errorf("txn: bool value truncated")
		}
		return model.Bool(buf[1] != 0), 2, nil
	case model.TagI64:
		if len(buf) < 9 {
			return model.PropValue{}, 0, fmt.Errorf("txn: i64 value truncated")
		}
		return model.I64(int64(binary.LittleEndian.Uint64(buf[1:]))), 9, nil
	case model.TagF64:
		if len(buf) < 9 {
			return model.PropValue{}, 0, fmt.Errorf("txn: f64 value truncated")
		}
		return model.F64(math.Float64frombits(binary.LittleEndian.Uint64(buf[1:]))), 9, nil
	case model.TagString:
		if len(buf) < 5 {
			return model.PropValue{}, 0, fmt.Errorf("txn: string value truncated")
		}
		n := int(binary.LittleEndian.Uint32(buf[1:]))
		if len(buf) < 5+n {
			return model.PropValue{}, 0, fmt.Errorf("txn: string value truncated")
		}
		return model.Str(string(buf[5 : 5+n])), 5 + n, nil
	case model.TagVectorF32:
		if len(buf) < 5 {
			return model.PropValue{}, 0, fmt.Errorf("txn: vector value truncated")
		}
		n := int(binary.LittleEndian.Uint32(buf[1:]))
		if len(buf) < 5+4*n {
			return model.PropValue{}, 0, fmt.Errorf("txn: vector value truncated")
		}
		vec := make([]float32, n)
		for i := range vec {
			vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[5+4*i:]))
		}
		return model.Vector(vec), 5 + 4*n, nil
	default:
		return model.PropValue{}, 0, fmt.Errorf("txn: unknown value tag %d", tag)
	}
}
