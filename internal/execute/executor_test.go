package execute_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/n9te9/federation-gateway/internal/execute"
	"github.com/n9te9/federation-gateway/internal/plan"
	"github.com/n9te9/federation-gateway/internal/response"
	"github.com/n9te9/federation-gateway/internal/schema"
	"github.com/n9te9/federation-gateway/internal/solve"
)

type fakeSubgraph struct {
	byURL map[string]json.RawMessage
}

func (f *fakeSubgraph) Execute(_ context.Context, req execute.Request) (*execute.RawResponse, error) {
	return &execute.RawResponse{Data: f.byURL[req.URL]}, nil
}

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

func TestExecutePlanAcrossSubgraphs(t *testing.T) {
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
	pl, err := plan.Build(sp, sol, sch, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	compiled, err := plan.CompileShapes(sch, pl)
	if err != nil {
		t.Fatalf("compile shapes: %v", err)
	}

	fake := &fakeSubgraph{byURL: map[string]json.RawMessage{
		"http://products": []byte(`{"products":[{"id":"1","name":"Widget"}]}`),
		"http://reviews":  []byte(`{"_entities":[{"reviews":[{"body":"great"}]}]}`),
	}}

	exec := execute.NewExecutor(sch, fake, execute.Endpoints{"products": "http://products", "reviews": "http://reviews"})
	result, err := exec.Execute(context.Background(), pl, compiled, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	productsVal, ok := result.Fields["products"]
	if !ok {
		t.Fatal("missing top-level products field")
	}
	if len(productsVal.List) != 1 {
		t.Fatalf("expected 1 product, got %d", len(productsVal.List))
	}
}

// TestExecuteAnswersTypenameLocally exercises the spec's mandatory S1
// scenario end to end: `{ __typename }` must produce {"__typename":"Query"}
// without ever calling a subgraph.
func TestExecuteAnswersTypenameLocally(t *testing.T) {
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
	pl, err := plan.Build(sp, sol, sch, "query")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	compiled, err := plan.CompileShapes(sch, pl)
	if err != nil {
		t.Fatalf("compile shapes: %v", err)
	}

	fake := &fakeSubgraph{byURL: map[string]json.RawMessage{}}
	exec := execute.NewExecutor(sch, fake, execute.Endpoints{"products": "http://products", "reviews": "http://reviews"})
	result, err := exec.Execute(context.Background(), pl, compiled, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	typename, ok := result.Fields["__typename"]
	if !ok || typename.Str != "Query" {
		t.Fatalf("expected __typename == Query, got %+v (ok=%v)", typename, ok)
	}
}

// orderedFakeSubgraph records the order in which subgraph calls arrive, so
// tests can assert on mutation serialization rather than just on the final
// merged result.
type orderedFakeSubgraph struct {
	mu    sync.Mutex
	calls []string
	byURL map[string]json.RawMessage
}

func (f *orderedFakeSubgraph) Execute(_ context.Context, req execute.Request) (*execute.RawResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	f.mu.Unlock()
	return &execute.RawResponse{Data: f.byURL[req.URL]}, nil
}

func composeMutationFixture(t *testing.T) *schema.Schema {
	t.Helper()
	xSDL := `
		type Mutation {
			createX: X
		}

		type X {
			id: ID!
		}
	`
	ySDL := `
		type Mutation {
			createY: Y
		}

		type Y {
			id: ID!
		}
	`
	s := schema.New()
	for _, sub := range []struct{ name, sdl string }{{"xsvc", xSDL}, {"ysvc", ySDL}} {
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

// TestExecuteMutationPartitionsRunInRequestOrder is the spec's mandatory S5
// scenario: `mutation { createX { id } createY { id } }` with createX and
// createY in different subgraphs must call createX's subgraph strictly
// before createY's, never concurrently.
func TestExecuteMutationPartitionsRunInRequestOrder(t *testing.T) {
	sch := composeMutationFixture(t)
	doc, err := parser.ParseQuery(&ast.Source{Input: `mutation { createX { id } createY { id } }`})
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
	pl, err := plan.Build(sp, sol, sch, "mutation")
	if err != nil {
		t.Fatalf("build plan: %v", err)
	}
	if len(pl.Partitions) != 2 {
		t.Fatalf("expected 2 root mutation partitions, got %d", len(pl.Partitions))
	}
	compiled, err := plan.CompileShapes(sch, pl)
	if err != nil {
		t.Fatalf("compile shapes: %v", err)
	}

	fake := &orderedFakeSubgraph{byURL: map[string]json.RawMessage{
		"http://xsvc": []byte(`{"createX":{"id":"x1"}}`),
		"http://ysvc": []byte(`{"createY":{"id":"y1"}}`),
	}}

	exec := execute.NewExecutor(sch, fake, execute.Endpoints{"xsvc": "http://xsvc", "ysvc": "http://ysvc"})
	result, err := exec.Execute(context.Background(), pl, compiled, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	if len(fake.calls) != 2 {
		t.Fatalf("expected exactly 2 subgraph calls, got %d: %v", len(fake.calls), fake.calls)
	}
	if fake.calls[0] != "http://xsvc" || fake.calls[1] != "http://ysvc" {
		t.Fatalf("expected createX's subgraph called before createY's, got order %v", fake.calls)
	}

	if result.Fields["createX"].Kind != response.ValueObject {
		t.Fatalf("expected createX result, got %+v", result.Fields["createX"])
	}
	if result.Fields["createY"].Kind != response.ValueObject {
		t.Fatalf("expected createY result, got %+v", result.Fields["createY"])
	}
}
