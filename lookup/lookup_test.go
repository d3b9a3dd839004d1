package lookup

import (
	"context"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate(false))
	})
	t.Run("memory backend in strict mode", func(t *testing.T) {
		require.EqualError(t, DefaultConfig().Validate(true), "memory backend is not allowed in strict mode")
	})
	t.Run("unknown backend", func(t *testing.T) {
		err := Config{Backend: "redis"}.Validate(false)
		require.EqualError(t, err, `unknown backend: "redis" (supported: memory, postgres, fhir)`)
	})
	t.Run("postgres without url", func(t *testing.T) {
		c := DefaultConfig()
		c.Backend = BackendPostgres
		require.EqualError(t, c.Validate(true), "postgres: url is not configured")
	})
	t.Run("postgres with invalid table mapping", func(t *testing.T) {
		c := DefaultConfig()
		c.Backend = BackendPostgres
		c.Postgres.URL = "postgres://localhost/ehealth"
		c.Postgres.Tables = []string{"legal_entity"}
		require.EqualError(t, c.Validate(true), `postgres: tables: invalid mapping "legal_entity", expected target=value`)
	})
	t.Run("fhir", func(t *testing.T) {
		c := DefaultConfig()
		c.Backend = BackendFHIR
		require.EqualError(t, c.Validate(true), "fhir: url is not configured")
		c.FHIR.BaseURL = "http://example.com/fhir"
		require.NoError(t, c.Validate(true))
	})
	t.Run("invalid memory entry", func(t *testing.T) {
		c := DefaultConfig()
		c.Memory = []string{"division=1"}
		require.EqualError(t, c.Validate(false), `invalid memory entry "division=1", expected target:externalID=localReference`)
	})
}

func TestNew(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c := DefaultConfig()
		c.Memory = []string{"division:div-1=local-7", "legal_entity:le-1=42"}

		backend, err := New(context.Background(), c)

		require.NoError(t, err)
		defer backend.Close()
		result, err := backend.LookupMany(context.Background(), "division", []string{"div-1", "div-2"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"div-1": "local-7"}, result)
	})
	t.Run("fhir", func(t *testing.T) {
		c := DefaultConfig()
		c.Backend = BackendFHIR
		c.FHIR.BaseURL = "http://example.com/fhir"

		backend, err := New(context.Background(), c)

		require.NoError(t, err)
		assert.IsType(t, &FHIR{}, backend)
	})
	t.Run("postgres with invalid url", func(t *testing.T) {
		c := DefaultConfig()
		c.Backend = BackendPostgres
		c.Postgres.URL = "mysql://"

		_, err := New(context.Background(), c)

		require.ErrorContains(t, err, "parse database url")
	})
}

func TestMemory(t *testing.T) {
	memory := NewMemory(map[resolve.Key]string{{Target: "division", ExternalID: "div-1"}: "local-7"})
	memory.Put("division", "div-2", "local-8")
	memory.Put("legal_entity", "div-1", "le")

	result, err := memory.LookupMany(context.Background(), "division", []string{"div-1", "div-2", "div-3"})

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"div-1": "local-7", "div-2": "local-8"}, result)
}

func TestParseTargetMap(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		result, err := parseTargetMap([]string{"legal_entity = Organization", "division=Location"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"legal_entity": "Organization", "division": "Location"}, result)
	})
	t.Run("duplicate", func(t *testing.T) {
		_, err := parseTargetMap([]string{"division=Location", "division=Organization"})
		require.EqualError(t, err, "target division is mapped more than once")
	})
}
