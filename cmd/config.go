package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SanteonNL/ehealth-ingest/dictionary"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lookup"
	"github.com/SanteonNL/ehealth-ingest/messaging"
	"github.com/SanteonNL/ehealth-ingest/registry"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
)

const envPrefix = "EHEALTH_"

type Config struct {
	// Public holds the configuration for the public interface.
	Public InterfaceConfig `koanf:"public"`
	// Registry holds the configuration for the registry API client, used for synchronization and dictionaries.
	Registry registry.Config `koanf:"registry"`
	// Lookup holds the configuration of the backend that resolves registry identifiers to local references.
	Lookup     lookup.Config     `koanf:"lookup"`
	Dictionary dictionary.Config `koanf:"dictionary"`
	Messaging  messaging.Config  `koanf:"messaging"`
	// Entities is an optional directory with entity definitions (*.yaml) that replace the built-in ones.
	Entities   string        `koanf:"entities"`
	LogLevel   zerolog.Level `koanf:"loglevel"`
	StrictMode bool          `koanf:"strictmode"`
	// OpenTelemetry holds the configuration for observability
	OpenTelemetry otel.Config `koanf:"opentelemetry"`
}

func (c Config) Validate() error {
	if c.Public.Address == "" {
		return errors.New("public address is not configured")
	}
	if err := c.Registry.Validate(c.StrictMode); err != nil {
		return fmt.Errorf("invalid registry configuration: %w", err)
	}
	if err := c.Lookup.Validate(c.StrictMode); err != nil {
		return fmt.Errorf("invalid lookup configuration: %w", err)
	}
	if err := c.Dictionary.Validate(); err != nil {
		return fmt.Errorf("invalid dictionary configuration: %w", err)
	}
	if !c.Registry.Enabled() && len(c.Dictionary.Static) == 0 {
		return errors.New("either the registry or static dictionaries must be configured")
	}
	if err := c.Messaging.Validate(c.StrictMode); err != nil {
		return fmt.Errorf("invalid messaging configuration: %w", err)
	}
	if err := c.OpenTelemetry.Validate(); err != nil {
		return fmt.Errorf("invalid OpenTelemetry configuration: %w", err)
	}
	return nil
}

// InterfaceConfig holds the configuration for an HTTP interface.
type InterfaceConfig struct {
	// Address holds the address to listen on.
	Address string `koanf:"address"`
	// ShutdownTimeout is how long in-flight requests may take to complete on shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

// LoadConfig loads the configuration from the environment.
func LoadConfig() (*Config, error) {
	result := DefaultConfig()
	err := loadConfigInto(&result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// loadConfigInto reads EHEALTH_ environment variables: EHEALTH_LOOKUP_POSTGRES_URL sets lookup.postgres.url.
// Values containing commas become lists, a comma can be escaped with a backslash.
func loadConfigInto(target any) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key string, value string) (string, interface{}) {
		key = strings.Replace(strings.ToLower(strings.TrimPrefix(key, envPrefix)), "_", ".", -1)
		if len(value) == 0 {
			return key, nil
		}
		sliceValues := splitWithEscaping(value, ",", "\\")
		for i, s := range sliceValues {
			sliceValues[i] = strings.TrimSpace(s)
		}
		var parsedValue any = sliceValues
		if len(sliceValues) == 1 {
			parsedValue = sliceValues[0]
		}
		return key, parsedValue
	}), nil)
	if err != nil {
		return err
	}
	return k.Unmarshal("", target)
}

func splitWithEscaping(s, separator, escape string) []string {
	s = strings.ReplaceAll(s, escape+separator, "\x00")
	tokens := strings.Split(s, separator)
	for i, token := range tokens {
		tokens[i] = strings.ReplaceAll(token, "\x00", separator)
	}
	return tokens
}

// DefaultConfig returns sensible, but not complete, default configuration values.
func DefaultConfig() Config {
	return Config{
		LogLevel:   zerolog.InfoLevel,
		StrictMode: true,
		Public: InterfaceConfig{
			Address:         ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Registry:      registry.DefaultConfig(),
		Lookup:        lookup.DefaultConfig(),
		Dictionary:    dictionary.DefaultConfig(),
		OpenTelemetry: otel.DefaultConfig(),
	}
}
