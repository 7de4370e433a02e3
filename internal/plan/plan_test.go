package plan_test

import (
	"testing"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/schema"
	"github.com/n9te9/federation-gateway/internal/solve"
)

func composeFixture(t *testing.T) *schema.Schema {
	t.Helper()
	productsSDL := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
		}

		type Query {
			products: [Product!]!
		}
	`
	reviewsSDL := `
		type Product @key(fields: "id") {
			id: ID!
			reviews: [Review!]!
		}

		type Review {
			body: String!
		}
	`
	s := schema.New()
	for _, sub := range []struct{ name, sdl string }{{"products", productsSDL}, {"reviews", reviewsSDL}} {
		doc, err := schema.ParseSubgraphSDL(sub.name, sub.sdl)
		if err != nil {
			t.Fatalf("parse %s: %v", sub.name, err)
		}
		if err := s.Compose(sub.name, doc); err != nil {
			t.Fatalf("compose %s: %v", sub.name, err)
		}
	}
	return s
}

func TestBuildPartitionsAcrossSubgraphs(t *testing.T) {
	sch := composeFixture(t)
	doc, err := parser.ParseQuery(&ast.Source{Input: `{ products { id name reviews { body } } }`})
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	op := doc.Operations[0]

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	sol, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	p, err := plan.Build(sp, sol, sch, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(p.Partitions) != 2 {
		t.Fatalf("expected 2 partitions (products root + reviews entity fetch), got %d", len(p.Partitions))
	}

	root := p.Partitions[p.Root]
	if root.Subgraph != "products" {
		t.Fatalf("expected root partition to run against products subgraph, got %s", root.Subgraph)
	}

	var nested *plan.Partition
	for _, df := range root.Fields {
		if df.HasChild {
			nested = p.Partitions[df.Child]
		}
	}
	if nested == nil {
		t.Fatal("expected a nested entity partition for reviews")
	}
	if nested.Subgraph != "reviews" {
		t.Fatalf("expected nested partition to run against reviews subgraph, got %s", nested.Subgraph)
	}

	compiled, err := plan.CompileShapes(sch, p)
	if err != nil {
		t.Fatalf("compile shapes: %v", err)
	}
	rootShapeID := compiled.PartitionShape[p.Root]
	rootShape := compiled.Shapes[rootShapeID]
	if rootShape.Kind != plan.ShapeConcrete {
		t.Fatal("expected root shape to be concrete")
	}
	if rootShape.Concrete.TypeName != "Query" {
		t.Fatalf("expected root shape type Query, got %s", rootShape.Concrete.TypeName)
	}
}

// TestBuildTypenameOnlyOperation exercises the spec's mandatory S1 scenario:
// `{ __typename }` must resolve without any partition or subgraph round trip.
func TestBuildTypenameOnlyOperation(t *testing.T) {
	sch := composeFixture(t)
	doc, err := parser.ParseQuery(&ast.Source{Input: `{ __typename }`})
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	op := doc.Operations[0]

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	sol, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}

	p, err := plan.Build(sp, sol, sch, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(p.Partitions) != 0 {
		t.Fatalf("expected no partitions for a typename-only operation, got %d", len(p.Partitions))
	}
	if got := p.LocalFields["__typename"]; got != "Query" {
		t.Fatalf("expected LocalFields[__typename] == Query, got %q", got)
	}
}

// TestBuildAttachesTypenameAlongsideRealFields covers `{ __typename products
// { id } }`: __typename rides along on the partition that already answers
// the root's other fields, rather than needing one of its own.
func TestBuildAttachesTypenameAlongsideRealFields(t *testing.T) {
	sch := composeFixture(t)
	doc, err := parser.ParseQuery(&ast.Source{Input: `{ __typename products { id } }`})
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	op := doc.Operations[0]

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	sol, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	p, err := plan.Build(sp, sol, sch, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(p.LocalFields) != 0 {
		t.Fatalf("expected no LocalFields when a real root field is also selected, got %v", p.LocalFields)
	}

	root := p.Partitions[p.Root]
	var found bool
	for _, df := range root.Fields {
		if df.FieldName == "__typename" && df.ParentType == "Query" && df.Typename {
			found = true
		}
	}
	if !found {
		t.Fatal("expected the root partition to carry a literal __typename field")
	}
}

// TestCompilePolymorphicShapePartitionsByFieldSignature exercises the
// §4.4 equivalence-class partitioning (testable property #4): possible
// types sharing an identical visible field list collapse into one
// ConcreteShape, and the returned classes are disjoint and cover every
// possible type.
func TestCompilePolymorphicShapePartitionsByFieldSignature(t *testing.T) {
	sdl := `
		union SearchResult = Book | Magazine | Author

		type Book { title: String! }
		type Magazine { title: String! }
		type Author { name: String! }

		type Query {
			search: SearchResult!
		}
	`
	s := schema.New()
	doc, err := schema.ParseSubgraphSDL("content", sdl)
	if err != nil {
		t.Fatalf("parse sdl: %v", err)
	}
	if err := s.Compose("content", doc); err != nil {
		t.Fatalf("compose: %v", err)
	}

	doc2, err := parser.ParseQuery(&ast.Source{Input: `{ search { ... on Book { title } ... on Magazine { title } ... on Author { name } } }`})
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	op := doc2.Operations[0]

	sp, err := solve.Build(s, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	sol, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	p, err := plan.Build(sp, sol, s, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	compiled, err := plan.CompileShapes(s, p)
	if err != nil {
		t.Fatalf("compile shapes: %v", err)
	}

	var poly *plan.PolymorphicShape
	for i := range compiled.Shapes {
		if compiled.Shapes[i].Kind == plan.ShapePolymorphic {
			poly = compiled.Shapes[i].Polymorphic
		}
	}
	if poly == nil {
		t.Fatal("expected a polymorphic shape for the SearchResult union")
	}

	if len(poly.Classes) != 2 {
		t.Fatalf("expected 2 equivalence classes (title-sharing, name-only), got %d: %+v", len(poly.Classes), poly.Classes)
	}
	seen := map[string]bool{}
	for _, class := range poly.Classes {
		for _, ty := range class.Types {
			if seen[ty] {
				t.Fatalf("type %s appears in more than one class", ty)
			}
			seen[ty] = true
		}
	}
	for _, want := range []string{"Book", "Magazine", "Author"} {
		if !seen[want] {
			t.Fatalf("expected %s to appear in some class, classes: %+v", want, poly.Classes)
		}
	}

	shapeOf := func(typeName string) plan.ShapeID {
		id, ok := poly.FindCase(typeName)
		if !ok {
			t.Fatalf("no case for %s", typeName)
		}
		return id
	}
	if shapeOf("Book") != shapeOf("Magazine") {
		t.Fatal("expected Book and Magazine (identical field sets) to share one compiled shape")
	}
	if shapeOf("Book") == shapeOf("Author") {
		t.Fatal("expected Author (distinct field set) to have its own compiled shape")
	}
}
