package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/SanteonNL/ehealth-ingest/lib/debug"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/normalize"
	"github.com/SanteonNL/ehealth-ingest/partition"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/SanteonNL/ehealth-ingest/schema"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = baseotel.Tracer("ingest")

// Options are the per-call parameters of Ingest.
type Options struct {
	// List indicates the payload is an array of records rather than a single record.
	List   bool
	Policy Policy
}

// Option configures a Pipeline.
type Option func(p *Pipeline)

// WithDictionaries sets the provider for dictionary-membership constraints.
func WithDictionaries(provider schema.DictionaryProvider) Option {
	return func(p *Pipeline) {
		p.dictionaries = provider
	}
}

// Pipeline turns raw registry payloads into validated, reference-resolved and partitioned records.
// It holds no per-call state: concurrent Ingest calls are independent.
type Pipeline struct {
	registry     *Registry
	resolver     *resolve.Resolver
	dictionaries schema.DictionaryProvider
	validators   map[string]*schema.Validator
}

// New creates a pipeline for the registered entities. Rule sets are compiled up front.
func New(registry *Registry, lookup resolve.Lookup, opts ...Option) (*Pipeline, error) {
	result := &Pipeline{
		registry:   registry,
		resolver:   resolve.New(lookup),
		validators: map[string]*schema.Validator{},
	}
	for _, opt := range opts {
		opt(result)
	}
	var validatorOpts []schema.Option
	if result.dictionaries != nil {
		validatorOpts = append(validatorOpts, schema.WithDictionaries(result.dictionaries))
	}
	var errs []error
	for _, name := range registry.Names() {
		entity, _ := registry.Get(name)
		validator, err := schema.New(entity.Rules, validatorOpts...)
		if err != nil {
			errs = append(errs, fmt.Errorf("entity %s: %w", name, err))
			continue
		}
		result.validators[name] = validator
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// Registry returns the entity registry of the pipeline.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// item is a record travelling through the stages, remembering its position in the input.
type item struct {
	index int
	value payload.Value
}

// Ingest runs the raw payload of the given entity type through normalization, validation, reference resolution
// and partitioning. Stages run strictly in sequence, each for the whole batch. A failure that the policy doesn't
// absorb is returned as a *StageError; failures it does absorb are listed in the result.
func (p *Pipeline) Ingest(ctx context.Context, entityType string, raw payload.Value, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, debug.GetFullCallerName(),
		trace.WithAttributes(
			attribute.String(otel.IngestEntity, entityType),
			attribute.Bool(otel.IngestList, opts.List),
			attribute.String(otel.IngestPolicy, opts.Policy.String()),
		),
	)
	defer span.End()

	entity, ok := p.registry.Get(entityType)
	if !ok {
		return nil, otel.Error(span, fmt.Errorf("%w: %s", ErrUnknownEntity, entityType))
	}
	result := &Result{Entity: entityType, List: opts.List}
	fail := func(stage Stage, err error) (*Result, error) {
		span.SetAttributes(attribute.String(otel.IngestStage, stage.String()))
		return nil, otel.Error(span, &StageError{Entity: entityType, Stage: stage, Err: err})
	}

	items, err := split(raw, opts.List)
	if err != nil {
		return fail(Received, err)
	}
	for i := range items {
		items[i].value = normalize.Normalize(items[i].value, entity.Renames)
	}
	span.AddEvent(otel.StageNormalized)

	items, err = p.validate(ctx, entity, items, opts, result)
	if err != nil {
		return fail(Normalized, err)
	}
	span.AddEvent(otel.StageValidated)

	items, err = p.resolve(ctx, entity, items, opts, result)
	if err != nil {
		var unavailable *resolve.UnavailableError
		if errors.As(err, &unavailable) {
			return fail(Validated, err)
		}
		return fail(Resolved, err)
	}
	span.AddEvent(otel.StageResolved)

	for _, current := range items {
		record := Record{Index: current.index, Data: current.value}
		if !entity.Partition.IsZero() {
			if record.Groups, err = partition.Partition(current.value, entity.Partition); err != nil {
				return fail(Resolved, fmt.Errorf("record %d: %w", current.index, err))
			}
		}
		result.Records = append(result.Records, record)
	}
	if !entity.Partition.IsZero() {
		span.AddEvent(otel.StagePartitioned)
	}

	span.SetAttributes(
		attribute.String(otel.IngestStage, Done.String()),
		attribute.Int(otel.IngestRecordCount, len(result.Records)),
		attribute.Int(otel.IngestFailureCount, len(result.Failures)),
	)
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func split(raw payload.Value, list bool) ([]item, error) {
	if !list {
		if !raw.IsObject() {
			return nil, fmt.Errorf("expected an object, got %s", raw.Kind())
		}
		return []item{{index: 0, value: raw}}, nil
	}
	if !raw.IsArray() {
		return nil, fmt.Errorf("expected an array, got %s", raw.Kind())
	}
	elements := raw.Items()
	result := make([]item, len(elements))
	for i, element := range elements {
		if !element.IsObject() {
			return nil, fmt.Errorf("element %d: expected an object, got %s", i, element.Kind())
		}
		result[i] = item{index: i, value: element}
	}
	return result, nil
}

func (p *Pipeline) validate(ctx context.Context, entity Entity, items []item, opts Options, result *Result) ([]item, error) {
	values := make([]payload.Value, len(items))
	for i, current := range items {
		values[i] = current.value
	}
	validator := p.validators[entity.Name]
	outcomes, err := validator.ValidateList(ctx, values)
	if err != nil {
		return nil, err
	}
	if failure := schema.Failures(outcomes); failure != nil && (opts.Policy == Strict || (!opts.List && opts.Policy == SkipInvalid)) {
		return nil, failure
	}
	var kept []item
	var skipped []int
	for i, outcome := range outcomes {
		current := items[i]
		if outcome.Valid() {
			kept = append(kept, item{index: current.index, value: outcome.Record.Value()})
			continue
		}
		result.addViolations(current.index, outcome.Violations)
		if opts.Policy == BestEffort {
			record, err := validator.Validate(ctx, schema.Prune(current.value, outcome.Violations))
			if err == nil {
				kept = append(kept, item{index: current.index, value: record.Value()})
				continue
			}
			var failure *schema.Failure
			if !errors.As(err, &failure) {
				return nil, fmt.Errorf("record %d: %w", current.index, err)
			}
		}
		skipped = append(skipped, current.index)
	}
	if !opts.List && len(kept) == 0 {
		// a single record that could not be salvaged leaves nothing to continue with
		return nil, &schema.Failure{Violations: outcomes[0].Violations}
	}
	result.Skipped = append(result.Skipped, skipped...)
	return kept, nil
}

func (p *Pipeline) resolve(ctx context.Context, entity Entity, items []item, opts Options, result *Result) ([]item, error) {
	if len(entity.ForeignKeys) == 0 {
		return items, nil
	}
	values := make([]payload.Value, len(items))
	for i, current := range items {
		values[i] = current.value
	}
	resolution, err := p.resolver.Resolve(ctx, values, entity.ForeignKeys)
	if err != nil {
		return nil, err
	}
	result.Index = resolution.Index
	// Failure indices refer to the batch passed to the resolver, map them back to input positions
	failures := make([]resolve.Failure, len(resolution.Failures))
	failed := map[int]bool{}
	for i, failure := range resolution.Failures {
		failure.Index = items[failure.Index].index
		failures[i] = failure
		failed[failure.Index] = true
	}
	if len(failures) > 0 && (opts.Policy == Strict || (!opts.List && opts.Policy == SkipInvalid)) {
		return nil, &resolve.UnresolvedError{Failures: failures}
	}
	result.addUnresolved(failures)
	var kept []item
	for i, current := range items {
		if opts.Policy == SkipInvalid && failed[current.index] {
			result.Skipped = append(result.Skipped, current.index)
			continue
		}
		kept = append(kept, item{index: current.index, value: resolution.Records[i]})
	}
	return kept, nil
}
