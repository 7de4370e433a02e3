package response

import (
	"fmt"
	"io"
	"math"

	jsoniter "github.com/json-iterator/go"

	"github.com/n9te9/federation-gateway/internal/gqlerr"
	"github.com/n9te9/federation-gateway/internal/plan"
)

// Decoder decodes one partition's subgraph JSON response body into the
// shared Arena, using the Compiled shape for that partition to drive field
// matching and null propagation.
type Decoder struct {
	Compiled *plan.Compiled
	Arena    *Arena
	Subgraph string
}

// DecodeRoot decodes raw (the subgraph's top-level "data" object, or one
// entity representation's result) against shapeID.
func (d *Decoder) DecodeRoot(raw []byte, shapeID plan.ShapeID) (Value, []*gqlerr.Error) {
	return d.decodeObject(raw, shapeID, nil)
}

// decodeObject decodes a single JSON object, matching its keys against the
// shape's sorted FieldShape list with a moving cursor: subgraphs return
// fields in request order, which (after our partition builder sorts
// DataFields the same way) usually matches the shape's sort order exactly,
// making the common case an O(1) positional match and falling back to a
// linear scan only when a subgraph reorders or omits a field.
func (d *Decoder) decodeObject(raw []byte, shapeID plan.ShapeID, path []gqlerr.PathSegment) (Value, []*gqlerr.Error) {
	shape := d.Compiled.Shapes[shapeID]

	keys, vals, err := splitObjectFields(raw)
	if err != nil {
		return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph, err, path...)}
	}

	concrete := shape.Concrete
	if shape.Kind == plan.ShapePolymorphic {
		typename := findTypename(keys, vals)
		caseShapeID, ok := shape.Polymorphic.FindCase(typename)
		if !ok {
			return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph, fmt.Errorf("no shape registered for __typename %q", typename), path...)}
		}
		concrete = d.Compiled.Shapes[caseShapeID].Concrete
	}

	objID := d.Arena.NewObject(concrete.ID, len(concrete.Fields))
	obj := d.Arena.Get(objID)

	var errs []*gqlerr.Error
	cursor := 0
	for fi, fs := range concrete.Fields {
		if fs.Typename {
			obj.Values[fi] = Value{Kind: ValueString, Str: concrete.TypeName}
			continue
		}

		valIdx, newCursor := findKey(keys, fs.ExpectedKey, cursor)
		cursor = newCursor

		if valIdx < 0 {
			if fs.Derived {
				if srcIdx := fieldIndex(concrete, fs.DerivedFrom); srcIdx >= 0 {
					obj.Values[fi] = obj.Values[srcIdx]
					continue
				}
			}
			if fs.NonNull {
				errs = append(errs, gqlerr.SubgraphResponse(d.Subgraph,
					fmt.Errorf("missing required field %q", fs.ResponseKey),
					append(path, gqlerr.Field(fs.ResponseKey))...))
				return Null, errs
			}
			obj.Values[fi] = Null
			continue
		}

		v, verrs := d.decodeValue(vals[valIdx], fs, fs.ListDepth, append(path, gqlerr.Field(fs.ResponseKey)))
		errs = append(errs, verrs...)
		if v.Kind == ValueNull && fs.NonNull {
			return Null, errs
		}
		obj.Values[fi] = v
	}
	return Value{Kind: ValueObject, Object: objID}, errs
}

// decodeValue decodes one field's raw JSON according to its FieldShape,
// recursing through list wrapping before dispatching to object or scalar
// decoding for the innermost value.
func (d *Decoder) decodeValue(raw []byte, fs plan.FieldShape, remainingListDepth int, path []gqlerr.PathSegment) (Value, []*gqlerr.Error) {
	if isJSONNull(raw) {
		return Null, nil
	}
	if remainingListDepth > 0 {
		return d.decodeList(raw, fs, remainingListDepth, path)
	}
	if fs.Shape != plan.NoShape {
		return d.decodeObject(raw, fs.Shape, path)
	}
	return d.decodeScalar(raw, fs, path)
}

// decodeList splits a JSON array and decodes each element, honoring the
// element non-null invariant: a non-null-violating element nulls the
// entire list, per GraphQL's bubble-to-nearest-nullable-ancestor rule.
func (d *Decoder) decodeList(raw []byte, fs plan.FieldShape, remainingListDepth int, path []gqlerr.PathSegment) (Value, []*gqlerr.Error) {
	elems, err := splitArrayElements(raw)
	if err != nil {
		return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph, err, path...)}
	}

	var errs []*gqlerr.Error
	values := make([]Value, 0, len(elems))
	for i, elem := range elems {
		elemPath := append(append([]gqlerr.PathSegment(nil), path...), gqlerr.Index(i))
		v, verrs := d.decodeValue(elem, fs, remainingListDepth-1, elemPath)
		errs = append(errs, verrs...)
		if v.Kind == ValueNull && fs.ElemNonNull {
			return Null, errs
		}
		values = append(values, v)
	}
	return Value{Kind: ValueList, List: values}, errs
}

func fieldIndex(c *plan.ConcreteShape, expectedKey string) int {
	for i, f := range c.Fields {
		if f.ExpectedKey == expectedKey {
			return i
		}
	}
	return -1
}

// findKey looks for key starting at the cursor position (the common case,
// since subgraph field order and shape order both follow
// (parentType, responseKey)), falling back to a full scan on a miss.
func findKey(keys []string, key string, cursor int) (int, int) {
	if cursor < len(keys) && keys[cursor] == key {
		return cursor, cursor + 1
	}
	for i, k := range keys {
		if k == key {
			return i, i + 1
		}
	}
	return -1, cursor
}

func findTypename(keys []string, vals [][]byte) string {
	for i, k := range keys {
		if k == "__typename" {
			return string(trimQuotes(vals[i]))
		}
	}
	return ""
}

func trimQuotes(b []byte) []byte {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return b[1 : len(b)-1]
	}
	return b
}

func isJSONNull(raw []byte) bool {
	return len(raw) == 4 && raw[0] == 'n' && raw[1] == 'u' && raw[2] == 'l' && raw[3] == 'l'
}

// decodeScalar applies §4.7's strict scalar typing: Int decodes to i32 range,
// BigInt/Int64 to i64, enums are validated against the schema's declared
// value set. A value that fails its declared type (out-of-range Int, a
// non-integral BigInt, an enum value absent from the schema) produces a
// field error and Null rather than silently coercing.
func (d *Decoder) decodeScalar(raw []byte, fs plan.FieldShape, path []gqlerr.PathSegment) (Value, []*gqlerr.Error) {
	if len(raw) == 0 {
		return Null, nil
	}
	switch raw[0] {
	case '"':
		s := string(trimQuotes(raw))
		if fs.EnumValues != nil && !fs.EnumValues[s] {
			return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph,
				fmt.Errorf("value %q is not a member of enum %s", s, fs.ScalarType), path...)}
		}
		return Value{Kind: ValueString, Str: s}, nil
	case 't':
		return Value{Kind: ValueBool, Bool: true}, nil
	case 'f':
		return Value{Kind: ValueBool, Bool: false}, nil
	default:
		iter := jsoniter.ConfigDefault.BorrowIterator(raw)
		f := iter.ReadFloat64()
		readErr := iter.Error
		jsoniter.ConfigDefault.ReturnIterator(iter)
		if readErr != nil && readErr != io.EOF {
			return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph, fmt.Errorf("invalid numeric value"), path...)}
		}

		switch fs.ScalarType {
		case "Int":
			i := int64(f)
			if f != float64(i) || i < math.MinInt32 || i > math.MaxInt32 {
				return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph,
					fmt.Errorf("value %v out of range for Int (i32)", f), path...)}
			}
			return Value{Kind: ValueInt, Int: i, Float: f}, nil
		case "BigInt", "Int64":
			i := int64(f)
			if f != float64(i) {
				return Null, []*gqlerr.Error{gqlerr.SubgraphResponse(d.Subgraph,
					fmt.Errorf("value %v is not an integral BigInt", f), path...)}
			}
			return Value{Kind: ValueInt, Int: i, Float: f}, nil
		case "Float":
			return Value{Kind: ValueFloat, Float: f}, nil
		default:
			if f == float64(int64(f)) {
				return Value{Kind: ValueInt, Int: int64(f), Float: f}, nil
			}
			return Value{Kind: ValueFloat, Float: f}, nil
		}
	}
}

// splitObjectFields decodes one JSON object's top-level keys in document
// order, capturing each value as an unparsed byte slice so the caller can
// decide how (or whether) to decode it.
func splitObjectFields(raw []byte) (keys []string, vals [][]byte, err error) {
	iter := jsoniter.ConfigDefault.BorrowIterator(raw)
	defer jsoniter.ConfigDefault.ReturnIterator(iter)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		v := it.SkipAndReturnBytes()
		keys = append(keys, key)
		vals = append(vals, append([]byte(nil), v...))
		return true
	})
	return keys, vals, iter.Error
}

// splitArrayElements decodes one JSON array's top-level elements into
// unparsed byte slices.
func splitArrayElements(raw []byte) ([][]byte, error) {
	iter := jsoniter.ConfigDefault.BorrowIterator(raw)
	defer jsoniter.ConfigDefault.ReturnIterator(iter)
	var elems [][]byte
	iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
		v := it.SkipAndReturnBytes()
		elems = append(elems, append([]byte(nil), v...))
		return true
	})
	return elems, iter.Error
}
