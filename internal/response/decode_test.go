package response_test

import (
	"testing"

	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/response"
)

func buildFixtureShapes() (*plan.Compiled, plan.ShapeID) {
	reviewShape := plan.ConcreteShape{
		TypeName: "Review",
		Fields: []plan.FieldShape{
			{ResponseKey: "body", ExpectedKey: "body", Shape: plan.NoShape, NonNull: true},
		},
	}
	productShape := plan.ConcreteShape{
		TypeName: "Product",
		Fields: []plan.FieldShape{
			{ResponseKey: "id", ExpectedKey: "id", Shape: plan.NoShape, NonNull: true},
			{ResponseKey: "name", ExpectedKey: "name", Shape: plan.NoShape, NonNull: true},
			{ResponseKey: "reviews", ExpectedKey: "reviews", Shape: 0, ListDepth: 1, NonNull: true, ElemNonNull: true},
		},
	}
	compiled := &plan.Compiled{
		Shapes: []plan.Shape{
			{Kind: plan.ShapeConcrete, Concrete: &reviewShape},
			{Kind: plan.ShapeConcrete, Concrete: &productShape},
		},
	}
	reviewShape.ID = 0
	productShape.ID = 1
	compiled.Shapes[0].Concrete.ID = 0
	compiled.Shapes[1].Concrete.ID = 1
	// fix up the reviews field's forward reference to the product shape's own id (1) -> review shape (0)
	compiled.Shapes[1].Concrete.Fields[2].Shape = 0
	return compiled, 1
}

func TestDecodeRootDecodesObjectWithNestedList(t *testing.T) {
	compiled, rootShape := buildFixtureShapes()
	arena := &response.Arena{}
	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: "products"}

	raw := []byte(`{"id":"1","name":"Widget","reviews":[{"body":"great"},{"body":"ok"}]}`)
	v, errs := dec.DecodeRoot(raw, rootShape)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if v.Kind != response.ValueObject {
		t.Fatalf("expected object value, got %v", v.Kind)
	}
	obj := arena.Get(v.Object)
	if obj.Values[0].Str != "1" {
		t.Fatalf("expected id=1, got %+v", obj.Values[0])
	}
	reviews := obj.Values[2]
	if reviews.Kind != response.ValueList || len(reviews.List) != 2 {
		t.Fatalf("expected 2 reviews, got %+v", reviews)
	}
}

func TestDecodeRootMissingRequiredFieldNulls(t *testing.T) {
	compiled, rootShape := buildFixtureShapes()
	arena := &response.Arena{}
	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: "products"}

	raw := []byte(`{"id":"1","reviews":[]}`)
	v, errs := dec.DecodeRoot(raw, rootShape)
	if len(errs) == 0 {
		t.Fatal("expected a missing-field error")
	}
	if v.Kind != response.ValueNull {
		t.Fatalf("expected null bubble-up on missing required field, got %v", v.Kind)
	}
}

// buildScalarFixtureShape compiles a single-field shape for exercising one
// strictly-typed scalar decode in isolation.
func buildScalarFixtureShape(fs plan.FieldShape) (*plan.Compiled, plan.ShapeID) {
	shape := plan.ConcreteShape{
		TypeName: "Widget",
		Fields:   []plan.FieldShape{fs},
	}
	compiled := &plan.Compiled{Shapes: []plan.Shape{{Kind: plan.ShapeConcrete, Concrete: &shape}}}
	shape.ID = 0
	compiled.Shapes[0].Concrete.ID = 0
	return compiled, 0
}

func TestDecodeScalarIntOutOfRangeProducesFieldError(t *testing.T) {
	compiled, rootShape := buildScalarFixtureShape(plan.FieldShape{
		ResponseKey: "count", ExpectedKey: "count", Shape: plan.NoShape, NonNull: false, ScalarType: "Int",
	})
	arena := &response.Arena{}
	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: "products"}

	raw := []byte(`{"count":9999999999}`)
	v, errs := dec.DecodeRoot(raw, rootShape)
	if len(errs) == 0 {
		t.Fatal("expected an out-of-range Int field error")
	}
	obj := arena.Get(v.Object)
	if obj.Values[0].Kind != response.ValueNull {
		t.Fatalf("expected the out-of-range Int field itself to decode Null, got %+v", obj.Values[0])
	}
}

func TestDecodeScalarBigIntAcceptsOutOfInt32Range(t *testing.T) {
	compiled, rootShape := buildScalarFixtureShape(plan.FieldShape{
		ResponseKey: "total", ExpectedKey: "total", Shape: plan.NoShape, NonNull: true, ScalarType: "BigInt",
	})
	arena := &response.Arena{}
	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: "products"}

	raw := []byte(`{"total":9999999999}`)
	v, errs := dec.DecodeRoot(raw, rootShape)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors for a valid BigInt: %v", errs)
	}
	obj := arena.Get(v.Object)
	if obj.Values[0].Int != 9999999999 {
		t.Fatalf("expected total=9999999999, got %+v", obj.Values[0])
	}
}

func TestDecodeScalarUnknownEnumValueProducesFieldError(t *testing.T) {
	compiled, rootShape := buildScalarFixtureShape(plan.FieldShape{
		ResponseKey: "status", ExpectedKey: "status", Shape: plan.NoShape, NonNull: false,
		ScalarType: "Status", EnumValues: map[string]bool{"ACTIVE": true, "RETIRED": true},
	})
	arena := &response.Arena{}
	dec := &response.Decoder{Compiled: compiled, Arena: arena, Subgraph: "products"}

	raw := []byte(`{"status":"DELETED"}`)
	v, errs := dec.DecodeRoot(raw, rootShape)
	if len(errs) == 0 {
		t.Fatal("expected an unknown-enum-value field error")
	}
	obj := arena.Get(v.Object)
	if obj.Values[0].Kind != response.ValueNull {
		t.Fatalf("expected the unknown enum value to decode Null, got %+v", obj.Values[0])
	}

	raw = []byte(`{"status":"ACTIVE"}`)
	v, errs = dec.DecodeRoot(raw, rootShape)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors for a known enum value: %v", errs)
	}
	obj = arena.Get(v.Object)
	if obj.Values[0].Str != "ACTIVE" {
		t.Fatalf("expected status=ACTIVE, got %+v", obj.Values[0])
	}
}
