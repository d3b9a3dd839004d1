// Package lookup provides the backends that translate registry identifiers into references of the local system.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/resolve"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendFHIR     = "fhir"
)

// Backend is a Lookup that holds resources which must be released on shutdown.
type Backend interface {
	resolve.Lookup
	Close()
}

// Config holds the configuration of the lookup backend.
type Config struct {
	// Backend selects the implementation: memory, postgres or fhir.
	Backend  string         `koanf:"backend"`
	Postgres PostgresConfig `koanf:"postgres"`
	FHIR     FHIRConfig     `koanf:"fhir"`
	// Memory holds static mappings for the memory backend, specified as target:externalID=localReference.
	Memory []string `koanf:"memory"`
}

func DefaultConfig() Config {
	return Config{
		Backend:  BackendMemory,
		Postgres: DefaultPostgresConfig(),
		FHIR:     DefaultFHIRConfig(),
	}
}

func (c Config) Validate(strictMode bool) error {
	switch c.Backend {
	case BackendMemory:
		if strictMode {
			return errors.New("memory backend is not allowed in strict mode")
		}
		_, err := parseMemoryEntries(c.Memory)
		return err
	case BackendPostgres:
		return c.Postgres.Validate()
	case BackendFHIR:
		return c.FHIR.Validate()
	}
	return fmt.Errorf("unknown backend: %q (supported: %s, %s, %s)", c.Backend, BackendMemory, BackendPostgres, BackendFHIR)
}

// New creates the configured backend.
func New(ctx context.Context, config Config) (Backend, error) {
	switch config.Backend {
	case BackendPostgres:
		return NewPostgres(ctx, config.Postgres)
	case BackendFHIR:
		return NewFHIR(config.FHIR)
	case BackendMemory:
		entries, err := parseMemoryEntries(config.Memory)
		if err != nil {
			return nil, err
		}
		return NewMemory(entries), nil
	}
	return nil, fmt.Errorf("unknown backend: %q", config.Backend)
}

// parseTargetMap parses target=value pairs into a map.
func parseTargetMap(pairs []string) (map[string]string, error) {
	result := map[string]string{}
	for _, pair := range pairs {
		target, value, ok := strings.Cut(pair, "=")
		target, value = strings.TrimSpace(target), strings.TrimSpace(value)
		if !ok || target == "" || value == "" {
			return nil, fmt.Errorf("invalid mapping %q, expected target=value", pair)
		}
		if _, exists := result[target]; exists {
			return nil, fmt.Errorf("target %s is mapped more than once", target)
		}
		result[target] = value
	}
	return result, nil
}
