package lookup

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Backend = &Memory{}

// Memory is a Lookup backed by an in-process map. It's meant for development and tests.
type Memory struct {
	mux     sync.RWMutex
	entries map[resolve.Key]string
}

func NewMemory(entries map[resolve.Key]string) *Memory {
	result := &Memory{entries: map[resolve.Key]string{}}
	for key, local := range entries {
		result.entries[key] = local
	}
	return result
}

// Put registers the local reference of an external identifier.
func (m *Memory) Put(target string, externalID string, localReference string) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.entries[resolve.Key{Target: target, ExternalID: externalID}] = localReference
}

func (m *Memory) LookupMany(ctx context.Context, target string, externalIDs []string) (map[string]string, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otel.LookupBackend, BackendMemory))
	m.mux.RLock()
	defer m.mux.RUnlock()
	result := map[string]string{}
	for _, id := range externalIDs {
		if local, ok := m.entries[resolve.Key{Target: target, ExternalID: id}]; ok {
			result[id] = local
		}
	}
	return result, nil
}

func (m *Memory) Close() {}

// parseMemoryEntries parses entries of the form target:externalID=localReference.
func parseMemoryEntries(entries []string) (map[resolve.Key]string, error) {
	result := map[resolve.Key]string{}
	for _, entry := range entries {
		key, local, ok := strings.Cut(entry, "=")
		target, externalID, ok2 := strings.Cut(key, ":")
		if !ok || !ok2 || target == "" || externalID == "" || local == "" {
			return nil, fmt.Errorf("invalid memory entry %q, expected target:externalID=localReference", entry)
		}
		result[resolve.Key{Target: target, ExternalID: externalID}] = local
	}
	return result, nil
}
