package plan

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/n9te9/federation-gateway/internal/schema"
)

// ShapeID indexes into Compiled.Shapes.
type ShapeID int

// NoShape marks a FieldShape whose value is a scalar/enum, never an object.
const NoShape ShapeID = -1

// ShapeKind distinguishes a concrete object shape from a polymorphic one.
type ShapeKind int

const (
	ShapeConcrete ShapeKind = iota
	ShapePolymorphic
)

// FieldShape describes how to decode one field of a concrete shape: its
// expected JSON key, whether it carries a nested shape, and its list/
// null-wrapping so the response decoder can apply GraphQL null-propagation
// without re-consulting the schema. Field shapes within a Shape are kept
// sorted by ExpectedKey so the decoder can track a moving offset cursor
// into the subgraph's field order and fall back to a linear scan of the
// response's keys only on a miss (§7's amortized O(1) lookup).
type FieldShape struct {
	ResponseKey string
	ExpectedKey string
	Typename    bool
	Shape       ShapeID
	ListDepth   int
	NonNull     bool // the field's own (outermost) wrapping is non-null
	ElemNonNull bool // for list fields, whether list elements are non-null
	Derived     bool
	DerivedFrom string

	// ScalarType is the field's leaf return type name (e.g. "Int", "BigInt",
	// "Float", "String", "Boolean", or an enum's type name), consulted by the
	// response decoder for §4.7's strict scalar typing and enum validation.
	// Empty when Shape != NoShape (the field is an object).
	ScalarType string
	// EnumValues holds the schema's declared member set when ScalarType names
	// an enum; nil otherwise.
	EnumValues map[string]bool
}

// ConcreteShape is the decode plan for one concrete object type: a sorted
// field list plus whether a __typename discriminator must be requested
// (needed only when this shape is reached through a polymorphic parent).
type ConcreteShape struct {
	ID               ShapeID
	TypeName         string
	Fields           []FieldShape
	RequiresTypename bool
}

// PolymorphicShape dispatches on __typename to one of several concrete
// shapes, e.g. for an interface or union field. Cases are kept sorted by
// concrete type name so FindCase can binary-search them.
// Classes records the §4.4 equivalence-class partitioning that produced
// Cases: types sharing one Class also share one underlying ConcreteShape,
// so Cases can carry duplicate ShapeIDs by design.
type PolymorphicShape struct {
	ID      ShapeID
	Cases   []PolymorphicCase
	Classes []ShapeClass
}

// PolymorphicCase binds one concrete type name appearing in a polymorphic
// position to the shape used to decode it.
type PolymorphicCase struct {
	TypeName string
	Shape    ShapeID
}

// FindCase binary-searches Cases (kept sorted by TypeName) for typeName's
// decode shape.
func (p *PolymorphicShape) FindCase(typeName string) (ShapeID, bool) {
	lo, hi := 0, len(p.Cases)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case p.Cases[mid].TypeName == typeName:
			return p.Cases[mid].Shape, true
		case p.Cases[mid].TypeName < typeName:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// Shape is either a *ConcreteShape or a *PolymorphicShape; Kind tells
// callers which field to read without a type switch in hot decode paths.
type Shape struct {
	Kind        ShapeKind
	Concrete    *ConcreteShape
	Polymorphic *PolymorphicShape
}

// Compiled holds every shape produced for a Plan, plus the entry shape for
// each partition's root selection.
type Compiled struct {
	Shapes          []Shape
	PartitionShape  map[PartitionID]ShapeID
}

type compiler struct {
	sch  *schema.Schema
	plan *Plan
	out  *Compiled

	// entityMergeTypes holds every EntityType an entity partition merges
	// back into; compilePolymorphicShape never shares a ConcreteShape
	// across types in this set, since internal/execute's locateMergeTarget
	// finds its merge target by scanning Shapes for Concrete.TypeName ==
	// part.EntityType and a shared shape only carries one canonical name.
	entityMergeTypes map[string]bool
}

// CompileShapes builds the shape DAG for every partition in the plan,
// grounded on the original query-solver's shape-partitioning pass
// (crates/engine/src/operation/solve/solver/shapes in original_source),
// adapted to work directly off our Partition field lists instead of a
// generic attribution graph.
func CompileShapes(sch *schema.Schema, p *Plan) (*Compiled, error) {
	entityMergeTypes := make(map[string]bool)
	for _, part := range p.Partitions {
		if part.HasParent {
			entityMergeTypes[part.EntityType] = true
		}
	}
	c := &compiler{
		sch:              sch,
		plan:             p,
		out:              &Compiled{PartitionShape: make(map[PartitionID]ShapeID)},
		entityMergeTypes: entityMergeTypes,
	}
	for _, part := range p.Partitions {
		rootType := part.EntityType
		if rootType == "" {
			rootType = sch.RootTypeName(operationKind(part.Operation))
		}
		id, err := c.compileObjectShape(rootType, part.Fields, false)
		if err != nil {
			return nil, err
		}
		c.out.PartitionShape[part.ID] = id
	}
	return c.out, nil
}

func operationKind(op string) ast.Operation {
	switch op {
	case "mutation":
		return ast.Mutation
	case "subscription":
		return ast.Subscription
	default:
		return ast.Query
	}
}

// compileObjectShape builds the shape for typeName using whichever fields
// in the enclosing partition's flat field list belong to it (ParentType ==
// typeName); a partition's Fields is a flat, ParentType-tagged table
// covering every object level that subgraph's single request touches, not
// just the partition's own root type.
func (c *compiler) compileObjectShape(typeName string, fields []DataField, requiresTypename bool) (ShapeID, error) {
	possible := c.sch.PossibleTypes(typeName)
	if len(possible) > 1 {
		return c.compilePolymorphicShape(typeName, possible, fields)
	}

	shape := &ConcreteShape{TypeName: typeName, RequiresTypename: requiresTypename}
	for _, df := range fields {
		if df.ParentType != typeName {
			continue
		}
		fs := FieldShape{ResponseKey: df.ResponseKey, ExpectedKey: df.ResponseKey, Typename: df.Typename, Shape: NoShape}
		if !df.Typename {
			if rec, ok := c.sch.Field(typeName, df.FieldName); ok {
				fs.NonNull = rec.Wrapping.IsNonNull()
				fs.ElemNonNull = elemNonNull(rec.Wrapping)
				if rec.Wrapping.IsList() {
					fs.ListDepth = listDepth(rec.Wrapping)
				}
				fs.Derived = rec.IsDerived
				fs.DerivedFrom = rec.DerivedFrom
				if isObjectLike(c.sch, rec.ReturnType) {
					var childShapeID ShapeID
					var err error
					if df.HasChild {
						childPart := c.plan.Partitions[df.Child]
						childShapeID, err = c.compileObjectShape(rec.ReturnType, childPart.Fields, isPolymorphicParent(c.sch, rec.ReturnType))
					} else {
						childShapeID, err = c.compileObjectShape(rec.ReturnType, fields, isPolymorphicParent(c.sch, rec.ReturnType))
					}
					if err != nil {
						return 0, err
					}
					fs.Shape = childShapeID
				} else {
					fs.ScalarType = rec.ReturnType
					if enumType, ok := c.sch.Types[rec.ReturnType]; ok && enumType.Kind == schema.KindEnum {
						fs.EnumValues = enumType.EnumValues
					}
				}
			}
		}
		shape.Fields = append(shape.Fields, fs)
	}
	sort.Slice(shape.Fields, func(i, j int) bool { return shape.Fields[i].ExpectedKey < shape.Fields[j].ExpectedKey })

	id := ShapeID(len(c.out.Shapes))
	shape.ID = id
	c.out.Shapes = append(c.out.Shapes, Shape{Kind: ShapeConcrete, Concrete: shape})
	return id, nil
}

// compilePolymorphicShape partitions the possible types at an interface/
// union position into the §4.4 equivalence classes (One/Many/Remaining) —
// types with an identical visible field list — and compiles one
// ConcreteShape per class instead of per type, each requiring __typename
// so the response decoder can dispatch. A class only shares its
// ConcreteShape across types when none of them is an entity-merge target
// elsewhere in the plan (see entityMergeTypes); that guarantees
// Concrete.TypeName still uniquely identifies a shape wherever it's
// consulted for reasons other than rendering a literal __typename field.
func (c *compiler) compilePolymorphicShape(typeName string, possible []string, fields []DataField) (ShapeID, error) {
	classes := partitionShapes(possible, func(t string) string { return typeFieldSignature(fields, t) })

	poly := &PolymorphicShape{Classes: classes}
	for _, class := range classes {
		if len(class.Types) > 1 && !c.anyEntityMergeTarget(class.Types) {
			canonical, err := c.compileObjectShape(class.Types[0], fields, true)
			if err != nil {
				return 0, err
			}
			for _, t := range class.Types {
				poly.Cases = append(poly.Cases, PolymorphicCase{TypeName: t, Shape: canonical})
			}
			continue
		}
		for _, t := range class.Types {
			shapeID, err := c.compileObjectShape(t, fields, true)
			if err != nil {
				return 0, err
			}
			poly.Cases = append(poly.Cases, PolymorphicCase{TypeName: t, Shape: shapeID})
		}
	}
	sort.Slice(poly.Cases, func(i, j int) bool { return poly.Cases[i].TypeName < poly.Cases[j].TypeName })

	id := ShapeID(len(c.out.Shapes))
	poly.ID = id
	c.out.Shapes = append(c.out.Shapes, Shape{Kind: ShapePolymorphic, Polymorphic: poly})
	return id, nil
}

func (c *compiler) anyEntityMergeTarget(types []string) bool {
	for _, t := range types {
		if c.entityMergeTypes[t] {
			return true
		}
	}
	return false
}

func isPolymorphicParent(sch *schema.Schema, typeName string) bool {
	return len(sch.PossibleTypes(typeName)) > 1
}

func isObjectLike(sch *schema.Schema, typeName string) bool {
	t, ok := sch.Types[typeName]
	if !ok {
		return false
	}
	switch t.Kind {
	case schema.KindObject, schema.KindInterface, schema.KindUnion:
		return true
	default:
		return false
	}
}

func elemNonNull(w schema.Wrapping) bool {
	if len(w) < 2 {
		return false
	}
	return w[len(w)-2] == schema.WrapNonNull
}

func listDepth(w schema.Wrapping) int {
	depth := 0
	for _, tier := range w {
		if tier == schema.WrapList {
			depth++
		}
	}
	return depth
}
