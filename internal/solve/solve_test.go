package solve_test

import (
	"testing"

	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/n9te9/federation-gateway/internal/schema"
	"github.com/n9te9/federation-gateway/internal/solve"
)

func composeTwoSubgraphs(t *testing.T) *schema.Schema {
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

func parseOperation(t *testing.T, query string) *ast.OperationDefinition {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	return doc.Operations[0]
}

func TestBuildAndSolveAcrossSubgraphs(t *testing.T) {
	sch := composeTwoSubgraphs(t)
	op := parseOperation(t, `{ products { id name reviews { body } } }`)

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	if err := sp.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	sol, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if !sol.Included[sp.Root()] {
		t.Fatal("expected root to be included")
	}
	if len(sp.Terminals) != 3 {
		t.Fatalf("expected 3 indispensable terminals (id, name, reviews.body), got %d", len(sp.Terminals))
	}
	for _, term := range sp.Terminals {
		if !sol.Included[term] {
			n := sp.Nodes[term]
			t.Fatalf("terminal %s.%s not included in solution", n.ParentType, n.FieldName)
		}
	}
}

func TestBuildLocalTypenameOnlySelection(t *testing.T) {
	sch := composeTwoSubgraphs(t)
	op := parseOperation(t, `{ __typename }`)

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	if err := sp.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(sp.Terminals) != 0 {
		t.Fatalf("expected no indispensable terminals for a typename-only selection, got %d", len(sp.Terminals))
	}

	root := sp.Nodes[sp.Root()]
	if len(root.Children) != 1 {
		t.Fatalf("expected exactly one local __typename child of root, got %d", len(root.Children))
	}
	child := sp.Nodes[root.Children[0]]
	if !child.LocalTypename || child.ParentType != "Query" || child.FieldName != "__typename" {
		t.Fatalf("unexpected root child: %+v", child)
	}

	if _, err := solve.Solve(sp); err != nil {
		t.Fatalf("solve: %v", err)
	}
}

func TestSolveDeterministic(t *testing.T) {
	sch := composeTwoSubgraphs(t)
	op := parseOperation(t, `{ products { id name } }`)

	sp, err := solve.Build(sch, op)
	if err != nil {
		t.Fatalf("build space: %v", err)
	}
	sol1, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve 1: %v", err)
	}
	sol2, err := solve.Solve(sp)
	if err != nil {
		t.Fatalf("solve 2: %v", err)
	}
	if len(sol1.Included) != len(sol2.Included) {
		t.Fatalf("non-deterministic solution sizes: %d vs %d", len(sol1.Included), len(sol2.Included))
	}
	for node := range sol1.Included {
		if !sol2.Included[node] {
			t.Fatalf("node %d included in first solve but not second", node)
		}
	}
}
