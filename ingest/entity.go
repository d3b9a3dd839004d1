package ingest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/lib/slices"
	"github.com/SanteonNL/ehealth-ingest/normalize"
	"github.com/SanteonNL/ehealth-ingest/partition"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/SanteonNL/ehealth-ingest/schema"
)

// ErrUnknownEntity is returned when an ingestion call names an entity type that isn't registered.
var ErrUnknownEntity = errors.New("unknown entity type")

// Entity is the configuration bundle of one entity type. Adding an entity type means adding one of these,
// not code.
type Entity struct {
	Name string
	// Renames maps external key names to internal ones. Nil means keys are kept as-is.
	Renames *normalize.Table
	// Rules refer to internal (renamed) names only.
	Rules       schema.RuleSet
	ForeignKeys []resolve.ForeignKey
	// Partition is optional, the zero value leaves records whole.
	Partition partition.Spec
	// Policy is the policy callers use when they don't choose one.
	Policy Policy
	// Source is the registry list endpoint the entity type is synchronized from, e.g. /api/divisions.
	// Empty means it can only be ingested from posted payloads.
	Source string
}

// Validate checks the configuration, so mistakes surface when the entity is registered rather than during ingestion.
func (e Entity) Validate() error {
	if e.Name == "" {
		return errors.New("entity name is empty")
	}
	var errs []error
	if e.Renames != nil {
		if err := e.Renames.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	paths := map[string]bool{}
	for _, key := range e.ForeignKeys {
		switch {
		case key.Path == "":
			errs = append(errs, errors.New("foreign key path is empty"))
		case key.Target == "":
			errs = append(errs, fmt.Errorf("foreign key %s: target is empty", key.Path))
		case paths[key.Path]:
			errs = append(errs, fmt.Errorf("foreign key %s: declared more than once", key.Path))
		}
		paths[key.Path] = true
	}
	if err := e.Partition.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("partition: %w", err))
	}
	for _, rule := range e.Rules {
		if rule.Path == "" {
			errs = append(errs, errors.New("rule path is empty"))
			continue
		}
		if e.Renames != nil && renamedAway(e.Renames, payload.ParsePath(rule.Path)) {
			errs = append(errs, fmt.Errorf("rule %s refers to an external name", rule.Path))
		}
	}
	if e.Source != "" && !strings.HasPrefix(e.Source, "/") {
		errs = append(errs, fmt.Errorf("source %s must be an absolute path", e.Source))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("entity %s: %w", e.Name, err)
	}
	return nil
}

// renamedAway reports whether a segment of the path is an external name that the table renames to something else,
// meaning the path can never be reached after normalization.
func renamedAway(table *normalize.Table, path payload.Path) bool {
	current := table
	for _, segment := range path {
		if current == nil {
			return false
		}
		if segment == payload.Wildcard {
			continue
		}
		var external string
		for source, target := range current.Keys {
			if target == segment {
				external = source
			}
		}
		if external == "" {
			if _, renamed := current.Keys[segment]; renamed {
				return true
			}
			external = segment
		}
		current = current.Nested[external]
	}
	return false
}

// Registry holds the entity types known to a pipeline, keyed by name.
type Registry struct {
	entities map[string]Entity
}

// NewRegistry validates and registers the given entities.
func NewRegistry(entities ...Entity) (*Registry, error) {
	result := &Registry{entities: map[string]Entity{}}
	var errs []error
	for _, entity := range entities {
		if err := entity.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, exists := result.entities[entity.Name]; exists {
			errs = append(errs, fmt.Errorf("entity %s: registered more than once", entity.Name))
			continue
		}
		result.entities[entity.Name] = entity
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

func (r *Registry) Get(name string) (Entity, bool) {
	entity, ok := r.entities[name]
	return entity, ok
}

// Names returns the registered entity types, sorted.
func (r *Registry) Names() []string {
	return slices.SortedKeys(r.entities)
}
