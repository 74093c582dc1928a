// Package model holds the identifier types and the tagged PropValue union
// shared by every layer of the graph core (spec.md §3.1), the way the
// teacher's storage.Document/Field pair is shared between its page store
// and its SQL engine.
package model

import (
	"encoding/binary"
	"fmt"
	"math"
)

// NodeID is a monotonically allocated, never-reused node identifier.
// Zero is reserved and never assigned to a live node.
type NodeID uint64

// LabelID, ETypeID and PropKeyID are 1-based catalog identifiers; zero is
// reserved.
type (
	LabelID   uint32
	ETypeID   uint32
	PropKeyID uint32
)

// StringID indexes the snapshot's interned string table. Zero is the
// empty string.
type StringID uint32

// PhysNode is a zero-based dense index into a snapshot's CSR arrays,
// assigned in NodeID-ascending order when the snapshot is built.
type PhysNode uint32

// NoPhysNode marks "no such physical node" in NODEID_TO_PHYS.
const NoPhysNode PhysNode = 0xFFFFFFFF

// ValueTag discriminates the PropValue union.
type ValueTag uint8

const (
	TagNull ValueTag = iota
	TagBool
	TagI64
	TagF64
	TagString
	TagVectorF32
)

func (t ValueTag) String() string {
	switch t {
	case TagNull:
		return "NULL"
	case TagBool:
		return "BOOL"
	case TagI64:
		return "I64"
	case TagF64:
		return "F64"
	case TagString:
		return "STRING"
	case TagVectorF32:
		return "VECTOR_F32"
	default:
		return fmt.Sprintf("ValueTag(%d)", uint8(t))
	}
}

// EncodedValueSize is the fixed on-disk size of a PropValue: 1-byte tag, 7
// bytes padding, 8-byte payload (spec.md §3.1).
const EncodedValueSize = 16

// PropValue is the in-memory form of a property value. STRING values carry
// their string directly in Str; the interning into a StringID happens at
// snapshot-build time (internal/snapshot). VECTOR_F32 values are not
// embedded in the CSR snapshot at all — the core only carries the tag and
// payload shape so the VectorStore collaborator hook (spec.md §6.2) has
// something to key off of; see DESIGN.md for why vector storage itself is
// out of scope.
type PropValue struct {
	Tag   ValueTag
	Bool  bool
	I64   int64
	F64   float64
	Str   string
	Vec   []float32
}

// Null is the NULL property value.
var Null = PropValue{Tag: TagNull}

func Bool(b bool) PropValue    { return PropValue{Tag: TagBool, Bool: b} }
func I64(v int64) PropValue    { return PropValue{Tag: TagI64, I64: v} }
func F64(v float64) PropValue  { return PropValue{Tag: TagF64, F64: v} }
func Str(s string) PropValue   { return PropValue{Tag: TagString, Str: s} }
func Vector(v []float32) PropValue {
	return PropValue{Tag: TagVectorF32, Vec: append([]float32(nil), v...)}
}

// IsNull reports whether v is the NULL sentinel.
func (v PropValue) IsNull() bool { return v.Tag == TagNull }

// Equal compares two values structurally; used by round-trip tests.
func (v PropValue) Equal(o PropValue) bool {
	if v.Tag != o.Tag {
		return false
	}
	switch v.Tag {
	case TagNull:
		return true
	case TagBool:
		return v.Bool == o.Bool
	case TagI64:
		return v.I64 == o.I64
	case TagF64:
		return v.F64 == o.F64
	case TagString:
		return v.Str == o.Str
	case TagVectorF32:
		if len(v.Vec) != len(o.Vec) {
			return false
		}
		for i := range v.Vec {
			if v.Vec[i] != o.Vec[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// EncodeFixed writes v's fixed 16-byte disk form. strOf resolves a STRING
// value to its interned StringID (it is not used for other tags). VECTOR
// values encode as NULL: they are never persisted inline (see PropValue doc).
func EncodeFixed(v PropValue, strOf func(string) StringID) [EncodedValueSize]byte {
	var buf [EncodedValueSize]byte
	switch v.Tag {
	case TagNull, TagVectorF32:
		buf[0] = byte(TagNull)
	case TagBool:
		buf[0] = byte(TagBool)
		if v.Bool {
			buf[8] = 1
		}
	case TagI64:
		buf[0] = byte(TagI64)
		binary.LittleEndian.PutUint64(buf[8:], uint64(v.I64))
	case TagF64:
		buf[0] = byte(TagF64)
		binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(v.F64))
	case TagString:
		buf[0] = byte(TagString)
		var id StringID
		if strOf != nil {
			id = strOf(v.Str)
		}
		binary.LittleEndian.PutUint32(buf[8:], uint32(id))
	}
	return buf
}

// DecodeFixed parses a 16-byte disk value back into a PropValue. strAt
// resolves a STRING payload's StringID back to its text.
func DecodeFixed(buf [EncodedValueSize]byte, strAt func(StringID) string) PropValue {
	tag := ValueTag(buf[0])
	switch tag {
	case TagBool:
		return Bool(buf[8] != 0)
	case TagI64:
		return I64(int64(binary.LittleEndian.Uint64(buf[8:])))
	case TagF64:
		return F64(math.Float64frombits(binary.LittleEndian.Uint64(buf[8:])))
	case TagString:
		id := StringID(binary.LittleEndian.Uint32(buf[8:]))
		if strAt != nil {
			return Str(strAt(id))
		}
		return Str("")
	default:
		return Null
	}
}

// Edge is the logical (src, etype, dst) triple. Edges carry no identity of
// their own beyond this triple: multi-edges of the same etype between the
// same pair are not permitted (spec.md §3.1).
type Edge struct {
	Src   NodeID
	EType ETypeID
	Dst   NodeID
}

func (e Edge) String() string {
	return fmt.Sprintf("(%d)-[%d]->(%d)", e.Src, e.EType, e.Dst)
}
