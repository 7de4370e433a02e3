// Package response implements the shape-driven response deserializer (C7):
// decoding each partition's subgraph JSON directly into an arena of
// response objects addressed by typed index, instead of an intermediate
// map[string]any tree, and applying GraphQL null-propagation as values are
// written rather than in a second pass.
package response

import "github.com/n9te9/federation-gateway/internal/plan"

// ObjectID indexes into an Arena's Objects slice.
type ObjectID int

// ValueKind is the sum-type tag of a Value.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueObject
	ValueList
	ValueString
	ValueInt
	ValueFloat
	ValueBool
	ValueEnum
)

// Value is a decoded GraphQL response value. Exactly one payload field is
// meaningful, selected by Kind; this mirrors the teacher's tagged-variant
// style (StepType/Kind enums gating which struct fields are populated)
// generalized from execution steps to response values.
type Value struct {
	Kind   ValueKind
	Object ObjectID
	List   []Value
	Str    string
	Int    int64
	Float  float64
	Bool   bool
}

var Null = Value{Kind: ValueNull}

// Object is one decoded response object: a flat slice of field values kept
// in the same order as its ConcreteShape's sorted Fields, so a later merge
// (entity results folding back into a parent object) can address a field
// by its shape index instead of a name lookup.
type Object struct {
	Shape  plan.ShapeID
	Values []Value
}

// Arena owns every Object decoded while building one response tree. A
// single Arena is shared across every partition ingested for one request,
// matching the spec's single response tree, multiple contributing
// partitions model.
type Arena struct {
	Objects []Object
}

// NewObject allocates a new Object sized to its shape's field count.
func (a *Arena) NewObject(shapeID plan.ShapeID, fieldCount int) ObjectID {
	a.Objects = append(a.Objects, Object{Shape: shapeID, Values: make([]Value, fieldCount)})
	return ObjectID(len(a.Objects) - 1)
}

func (a *Arena) Get(id ObjectID) *Object { return &a.Objects[id] }
