package raydb

import "github.com/raydb/raydb/internal/model"

// These are aliases, not new types: a raydb.NodeID returned by CreateNode
// and a value internal/keyiter or internal/delta hands back are the exact
// same type, so nothing needs converting at the package boundary. External
// callers see only this package; internal/model stays unimportable outside
// the module, the way the teacher keeps storage/document.go internal to
// its own engine/api split.
type (
	NodeID    = model.NodeID
	LabelID   = model.LabelID
	ETypeID   = model.ETypeID
	PropKeyID = model.PropKeyID
	StringID  = model.StringID
	Edge      = model.Edge
	PropValue = model.PropValue
	ValueTag  = model.ValueTag
)

// Null is the NULL property value.
var Null = model.Null

// Bool / I64 / F64 / Str / Vector construct a tagged PropValue.
func Bool(b bool) PropValue       { return model.Bool(b) }
func I64(v int64) PropValue       { return model.I64(v) }
func F64(v float64) PropValue     { return model.F64(v) }
func Str(s string) PropValue      { return model.Str(s) }
func Vector(v []float32) PropValue { return model.Vector(v) }
