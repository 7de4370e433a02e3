package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/n9te9/federation-gateway/internal/config"
)

func TestLoadFillsDefaultsAndParsesSubgraphs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	body := `
subgraphs:
  - name: products
    sdlPath: products.graphql
    endpoint: http://products.internal/graphql
  - name: reviews
    sdlPath: reviews.graphql
    endpoint: http://reviews.internal/graphql
cors:
  allowedOrigins: ["https://app.example.com"]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Port != 4000 {
		t.Fatalf("expected default port 4000, got %d", cfg.Port)
	}
	if cfg.GraphQLPath != "/graphql" {
		t.Fatalf("expected default graphql path, got %q", cfg.GraphQLPath)
	}
	if len(cfg.Subgraphs) != 2 {
		t.Fatalf("expected 2 subgraphs, got %d", len(cfg.Subgraphs))
	}
	if cfg.Subgraphs[0].Name != "products" || cfg.Subgraphs[0].Endpoint != "http://products.internal/graphql" {
		t.Fatalf("unexpected first subgraph: %+v", cfg.Subgraphs[0])
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("unexpected CORS config: %+v", cfg.CORS)
	}
}

func TestLoadRejectsNoSubgraphs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte("port: 5000\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := config.Load(path); err == nil {
		t.Fatalf("expected an error for a config with no subgraphs")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
