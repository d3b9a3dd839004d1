//go:generate mockgen -destination=./lookup_mock.go -package=resolve -source=resolve.go Lookup
package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/debug"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/lib/slices"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = baseotel.Tracer("resolve")

// Lookup resolves external identifiers of one entity type to local references, in a single call.
// Identifiers without a local counterpart are absent from the returned map.
type Lookup interface {
	LookupMany(ctx context.Context, target string, externalIDs []string) (map[string]string, error)
}

// ForeignKey identifies a field that holds the external identifier of another entity.
type ForeignKey struct {
	// Path is the dotted path of the field, "*" segments address every array element.
	Path string `yaml:"path"`
	// Target is the entity type the identifier refers to.
	Target string `yaml:"target"`
	// Optional foreign keys are set to null when they can't be resolved, instead of being reported.
	Optional bool `yaml:"optional"`
}

// Key identifies an external identifier of a specific entity type.
type Key struct {
	Target     string
	ExternalID string
}

// ReferenceMap maps external identifiers to local references. It is built per batch and must not be reused.
type ReferenceMap map[Key]string

// Get returns the local reference for the external identifier of the given entity type.
func (m ReferenceMap) Get(target string, externalID string) (string, bool) {
	local, ok := m[Key{Target: target, ExternalID: externalID}]
	return local, ok
}

// Failure reports an external identifier that could not be resolved to a local reference.
type Failure struct {
	// Index is the position of the record in the batch.
	Index      int    `json:"index"`
	Path       string `json:"path"`
	Target     string `json:"target"`
	ExternalID string `json:"external_id"`
}

func (f Failure) String() string {
	return fmt.Sprintf("[%d] %s: %s %s not found", f.Index, f.Path, f.Target, f.ExternalID)
}

// UnavailableError is returned when the lookup itself failed. No partial result can be trusted in that case.
type UnavailableError struct {
	Target string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("lookup of %s references failed: %v", e.Target, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Resolution is the outcome of resolving a batch of records.
type Resolution struct {
	// References holds every identifier that was resolved.
	References ReferenceMap
	// Records are the input records with their foreign keys rewritten to local references.
	Records []payload.Value
	// Failures lists identifiers of non-optional foreign keys that could not be resolved. These fields are set to null.
	Failures []Failure
	// Index lists the distinct external identifiers referenced per entity type, sorted.
	Index map[string][]string
}

// Collect returns the distinct, non-null external identifiers referenced by the records, per entity type (sorted).
func Collect(records []payload.Value, keys []ForeignKey) map[string][]string {
	sets := map[string]map[string]bool{}
	for _, key := range keys {
		pattern := payload.ParsePath(key.Path)
		for _, record := range records {
			for _, match := range record.Expand(pattern) {
				id, ok := identifier(match)
				if !ok {
					continue
				}
				if sets[key.Target] == nil {
					sets[key.Target] = map[string]bool{}
				}
				sets[key.Target][id] = true
			}
		}
	}
	result := make(map[string][]string, len(sets))
	for target, set := range sets {
		result[target] = slices.SortedKeys(set)
	}
	return result
}

func identifier(match payload.Match) (string, bool) {
	if !match.Found || match.Value.IsNull() || !match.Value.IsScalar() {
		return "", false
	}
	id := match.Value.Text()
	return id, id != ""
}

func New(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup}
}

// Resolver resolves foreign keys of record batches through a Lookup.
type Resolver struct {
	lookup Lookup
}

// Resolve performs exactly one lookup per referenced entity type, however many records or fields refer to it,
// and rewrites every foreign key of every record to its local reference.
func (r *Resolver) Resolve(ctx context.Context, records []payload.Value, keys []ForeignKey) (*Resolution, error) {
	index := Collect(records, keys)
	references, err := r.lookupAll(ctx, index)
	if err != nil {
		return nil, err
	}
	result := &Resolution{
		References: references,
		Records:    make([]payload.Value, len(records)),
		Index:      index,
	}
	for i, record := range records {
		rewritten, failures, err := rewrite(record, i, keys, references)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		result.Records[i] = rewritten
		result.Failures = append(result.Failures, failures...)
	}
	return result, nil
}

func (r *Resolver) lookupAll(ctx context.Context, index map[string][]string) (ReferenceMap, error) {
	references := ReferenceMap{}
	for _, target := range slices.SortedKeys(index) {
		ids := index[target]
		found, err := r.lookupOne(ctx, target, ids)
		if err != nil {
			return nil, &UnavailableError{Target: target, Err: err}
		}
		for _, id := range ids {
			if local, ok := found[id]; ok && local != "" {
				references[Key{Target: target, ExternalID: id}] = local
			}
		}
	}
	return references, nil
}

func (r *Resolver) lookupOne(ctx context.Context, target string, ids []string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, debug.GetFullCallerName(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String(otel.LookupTarget, target),
			attribute.Int(otel.LookupIDCount, len(ids)),
		),
	)
	defer span.End()
	found, err := r.lookup.LookupMany(ctx, target, ids)
	if err != nil {
		return nil, otel.Error(span, err)
	}
	span.SetAttributes(attribute.Int(otel.LookupResolvedCount, len(found)))
	span.SetStatus(codes.Ok, "")
	return found, nil
}

func rewrite(record payload.Value, index int, keys []ForeignKey, references ReferenceMap) (payload.Value, []Failure, error) {
	var failures []Failure
	for _, key := range keys {
		for _, match := range record.Expand(payload.ParsePath(key.Path)) {
			id, ok := identifier(match)
			if !ok {
				continue
			}
			replacement := payload.Null()
			if local, ok := references.Get(key.Target, id); ok {
				replacement = payload.String(local)
			} else if !key.Optional {
				failures = append(failures, Failure{
					Index:      index,
					Path:       match.Path.String(),
					Target:     key.Target,
					ExternalID: id,
				})
			}
			var err error
			record, err = record.Set(match.Path, replacement)
			if err != nil {
				return record, nil, err
			}
		}
	}
	return record, failures, nil
}

// UnresolvedError reports the identifiers of non-optional foreign keys that could not be resolved,
// for callers that treat any of them as fatal.
type UnresolvedError struct {
	Failures []Failure
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, failure := range e.Failures {
		parts[i] = failure.String()
	}
	return fmt.Sprintf("%d unresolved reference(s): %s", len(e.Failures), strings.Join(parts, ", "))
}
