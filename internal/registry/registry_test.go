package registry_test

import (
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/n9te9/federation-gateway/internal/config"
	"github.com/n9te9/federation-gateway/internal/registry"
)

func writeSDL(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".graphql")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s SDL: %v", name, err)
	}
	return path
}

func TestNewComposesConfiguredSubgraphs(t *testing.T) {
	dir := t.TempDir()
	productsPath := writeSDL(t, dir, "products", `
		type Product @key(fields: "id") {
			id: ID!
			name: String!
		}
		type Query {
			products: [Product!]!
		}
	`)

	cfg := &config.Config{Subgraphs: []config.SubgraphConfig{{Name: "products", SDLPath: productsPath}}}
	reg, err := registry.New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	sch := reg.Current()
	if !sch.IsEntity("Product") {
		t.Fatal("expected Product to be composed as an entity")
	}
}

func TestNewFailsOnUnreadableSDL(t *testing.T) {
	cfg := &config.Config{Subgraphs: []config.SubgraphConfig{{Name: "missing", SDLPath: "/nonexistent/path.graphql"}}}
	if _, err := registry.New(cfg, slog.Default()); err == nil {
		t.Fatal("expected an error when a subgraph's SDL file cannot be read")
	}
}

func TestReloadPicksUpSDLChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeSDL(t, dir, "products", `
		type Product @key(fields: "id") {
			id: ID!
		}
		type Query {
			products: [Product!]!
		}
	`)

	cfg := &config.Config{Subgraphs: []config.SubgraphConfig{{Name: "products", SDLPath: path}}}
	reg, err := registry.New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, ok := reg.Current().Field("Product", "name"); ok {
		t.Fatal("did not expect Product.name before reload")
	}

	if err := os.WriteFile(path, []byte(`
		type Product @key(fields: "id") {
			id: ID!
			name: String!
		}
		type Query {
			products: [Product!]!
		}
	`), 0o644); err != nil {
		t.Fatalf("rewrite SDL: %v", err)
	}

	if err := reg.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if _, ok := reg.Current().Field("Product", "name"); !ok {
		t.Fatal("expected Product.name after reload")
	}
}

func TestHTTPHandlerRegistersNewSubgraph(t *testing.T) {
	dir := t.TempDir()
	productsPath := writeSDL(t, dir, "products", `
		type Product @key(fields: "id") {
			id: ID!
		}
		type Query {
			products: [Product!]!
		}
	`)

	cfg := &config.Config{Subgraphs: []config.SubgraphConfig{{Name: "products", SDLPath: productsPath}}}
	reg, err := registry.New(cfg, slog.Default())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	body := `{"name":"reviews","endpoint":"http://reviews.internal/graphql","sdl":"type Review { body: String! }\ntype Product @key(fields: \"id\") { id: ID! reviews: [Review!]! }\n"}`
	req := httptest.NewRequest("POST", "/schema/registration", strings.NewReader(body))
	w := httptest.NewRecorder()
	reg.HTTPHandler().ServeHTTP(w, req)

	if w.Code != 204 {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
	if _, ok := reg.Current().Field("Product", "reviews"); !ok {
		t.Fatal("expected Product.reviews to be present after registration")
	}
}
