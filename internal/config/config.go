// Package config loads the gateway's YAML configuration, grounded on the
// teacher's GatewayOption/OpentelemetrySetting structs in gateway/gateway.go,
// generalized from command-line flags into a single declarative file
// (subgraph list, ports, CORS, auth, telemetry) parsed with goccy/go-yaml —
// the same YAML library movio-bramble, the other federation gateway in the
// example pack, carries in its dependency stack.
package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/n9te9/federation-gateway/internal/telemetry"
)

// SubgraphConfig names one federated subgraph and where to find its SDL
// and HTTP endpoint.
type SubgraphConfig struct {
	Name     string `yaml:"name"`
	SDLPath  string `yaml:"sdlPath"`
	Endpoint string `yaml:"endpoint"`
}

// CORSConfig configures the rs/cors middleware in internal/gatewayhttp.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
	AllowedHeaders []string `yaml:"allowedHeaders"`
}

// AuthConfig configures JWT verification for @authorized field checks.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	JWKSURL   string `yaml:"jwksUrl"`
	HMACSecret string `yaml:"hmacSecret"`
}

// Config is the root gateway configuration document.
type Config struct {
	Port            int               `yaml:"port"`
	GraphQLPath     string            `yaml:"graphqlPath"`
	Subgraphs       []SubgraphConfig  `yaml:"subgraphs"`
	PlanCacheSize   int               `yaml:"planCacheSize"`
	RequestTimeoutMS int              `yaml:"requestTimeoutMs"`
	CORS            CORSConfig        `yaml:"cors"`
	Auth            AuthConfig        `yaml:"auth"`
	Telemetry       telemetry.Settings `yaml:"telemetry"`
}

// Load reads and parses a gateway configuration file, filling in the
// documented defaults for any field the file omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	if len(cfg.Subgraphs) == 0 {
		return nil, fmt.Errorf("config %q: at least one subgraph is required", path)
	}
	return cfg, nil
}

// Default returns the gateway's baseline configuration before a file is
// applied on top of it.
func Default() *Config {
	return &Config{
		Port:             4000,
		GraphQLPath:      "/graphql",
		PlanCacheSize:    1024,
		RequestTimeoutMS: 10_000,
	}
}
