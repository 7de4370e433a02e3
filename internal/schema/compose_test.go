package schema_test

import (
	"testing"

	"github.com/n9te9/federation-gateway/internal/schema"
)

func TestComposeEntityAcrossSubgraphs(t *testing.T) {
	productsSDL := `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
			weight: Float!
		}

		type Query {
			products: [Product!]!
		}
	`
	reviewsSDL := `
		type Product @key(fields: "id") {
			id: ID!
			weight: Float! @external
			reviews: [Review!]! @requires(fields: "weight")
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

	if !s.IsEntity("Product") {
		t.Fatal("expected Product to be an entity")
	}

	owners := s.EntityOwners("Product")
	if len(owners) != 2 {
		t.Fatalf("expected 2 entity owners, got %d: %v", len(owners), owners)
	}

	idField, ok := s.Field("Product", "id")
	if !ok {
		t.Fatal("missing Product.id")
	}
	if len(idField.Subgraphs) != 2 {
		t.Fatalf("expected Product.id resolvable in both subgraphs, got %v", idField.Subgraphs)
	}

	weightField, ok := s.Field("Product", "weight")
	if !ok {
		t.Fatal("missing Product.weight")
	}
	if len(weightField.Subgraphs) != 1 || weightField.Subgraphs[0] != "products" {
		t.Fatalf("expected weight only resolvable in products, got %v", weightField.Subgraphs)
	}
	if !weightField.External["reviews"] {
		t.Fatal("expected weight to be external in reviews")
	}

	reviewsField, ok := s.Field("Product", "reviews")
	if !ok {
		t.Fatal("missing Product.reviews")
	}
	req, ok := reviewsField.Requires["reviews"]
	if !ok {
		t.Fatal("expected @requires on reviews field")
	}
	if got := req.Names(); len(got) != 1 || got[0] != "weight" {
		t.Fatalf("expected requires=[weight], got %v", got)
	}
}

func TestParseFieldSetNested(t *testing.T) {
	fs, err := schema.ParseFieldSet("id variation { id sku }")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fs.Selections) != 2 {
		t.Fatalf("expected 2 top-level selections, got %d", len(fs.Selections))
	}
	if fs.Selections[1].Name != "variation" || len(fs.Selections[1].Nested) != 2 {
		t.Fatalf("expected variation { id sku }, got %+v", fs.Selections[1])
	}
}
