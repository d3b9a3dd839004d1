// Package normalize renames the keys of registry payloads to the names used internally.
package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
)

// Table maps external key names to internal key names for one level of a payload.
// Nested tables are applied to the value of the given (external) key: to the object itself, or to every element
// when the value is an array.
type Table struct {
	Keys   map[string]string
	Nested map[string]*Table
}

// NewTable creates a rename table for a single level.
func NewTable(keys map[string]string) *Table {
	if keys == nil {
		keys = map[string]string{}
	}
	return &Table{
		Keys:   keys,
		Nested: map[string]*Table{},
	}
}

// Recurse marks the given keys for recursive application of this same table.
func (t *Table) Recurse(keys ...string) *Table {
	for _, key := range keys {
		t.Nested[key] = t
	}
	return t
}

// Nest attaches a table that is applied to the value of the given key.
func (t *Table) Nest(key string, nested *Table) *Table {
	t.Nested[key] = nested
	return t
}

// ParseTable builds a table from flat configuration: keys of renames may be dotted ("division.id") to address nested
// objects, recurse lists dotted paths whose values get the table of their parent level applied.
func ParseTable(renames map[string]string, recurse []string) (*Table, error) {
	root := NewTable(nil)
	sources := make([]string, 0, len(renames))
	for source := range renames {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	for _, source := range sources {
		target := renames[source]
		if target == "" || strings.Contains(target, ".") {
			return nil, &ConfigError{Path: source, Reason: fmt.Sprintf("invalid rename target %q", target)}
		}
		path := payload.ParsePath(source)
		if path.HasWildcard() {
			return nil, &ConfigError{Path: source, Reason: "wildcards are not supported, nested tables apply to array elements"}
		}
		table, err := root.descend(path.Parent())
		if err != nil {
			return nil, err
		}
		table.Keys[path.Last()] = target
	}
	for _, entry := range recurse {
		path := payload.ParsePath(entry)
		parent, err := root.descend(path.Parent())
		if err != nil {
			return nil, err
		}
		if existing, ok := parent.Nested[path.Last()]; ok && existing != parent {
			return nil, &ConfigError{Path: entry, Reason: "key has both a nested table and a recurse marker"}
		}
		parent.Recurse(path.Last())
	}
	if err := root.Validate(); err != nil {
		return nil, err
	}
	return root, nil
}

func (t *Table) descend(path payload.Path) (*Table, error) {
	current := t
	for i, segment := range path {
		next, ok := current.Nested[segment]
		if !ok {
			next = NewTable(nil)
			current.Nested[segment] = next
		} else if next == current {
			return nil, &ConfigError{Path: path[:i+1].String(), Reason: "key has both a nested table and a recurse marker"}
		}
		current = next
	}
	return current, nil
}

// Normalize returns a copy of the tree with its keys renamed according to the table. Keys without an entry are kept
// as-is, values that are not objects (or arrays of objects) pass through unchanged. If a renamed key collides with an
// existing sibling, the renamed value wins and the sibling is dropped.
func Normalize(v payload.Value, t *Table) payload.Value {
	if t == nil {
		return v
	}
	switch v.Kind() {
	case payload.KindArray:
		items := v.Items()
		for i, item := range items {
			items[i] = Normalize(item, t)
		}
		return payload.Array(items...)
	case payload.KindObject:
		members := v.Members()
		renamedTo := make(map[string]bool, len(t.Keys))
		for _, member := range members {
			if target, ok := t.Keys[member.Key]; ok {
				renamedTo[target] = true
			}
		}
		result := make([]payload.Member, 0, len(members))
		for _, member := range members {
			value := member.Value
			if nested, ok := t.Nested[member.Key]; ok {
				value = Normalize(value, nested)
			}
			if target, ok := t.Keys[member.Key]; ok {
				result = append(result, payload.Member{Key: target, Value: value})
			} else if !renamedTo[member.Key] {
				result = append(result, payload.Member{Key: member.Key, Value: value})
			}
		}
		return payload.Object(result...)
	}
	return v
}

// Validate checks the table (and its nested tables) for configuration errors that make renaming lossy or
// non-idempotent: two keys renamed to the same target, and a target that is itself renamed again.
func (t *Table) Validate() error {
	var errs []error
	t.validate(nil, map[*Table]bool{}, &errs)
	return errors.Join(errs...)
}

func (t *Table) validate(path payload.Path, visited map[*Table]bool, errs *[]error) {
	if visited[t] {
		return
	}
	visited[t] = true
	sourcesByTarget := map[string][]string{}
	for source, target := range t.Keys {
		sourcesByTarget[target] = append(sourcesByTarget[target], source)
	}
	targets := make([]string, 0, len(sourcesByTarget))
	for target := range sourcesByTarget {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		sources := sourcesByTarget[target]
		sort.Strings(sources)
		if len(sources) > 1 {
			*errs = append(*errs, &ConfigError{
				Path:   path.Append(target).String(),
				Reason: fmt.Sprintf("rename collision: %s all map to %s", strings.Join(sources, ", "), target),
			})
		}
		if next, ok := t.Keys[target]; ok && next != target {
			*errs = append(*errs, &ConfigError{
				Path:   path.Append(target).String(),
				Reason: fmt.Sprintf("rename target %s is renamed again to %s", target, next),
			})
		}
	}
	keys := make([]string, 0, len(t.Nested))
	for key := range t.Nested {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		t.Nested[key].validate(path.Append(key), visited, errs)
	}
}

// ConfigError reports a malformed rename table. It is a programming error, detected when the table is loaded.
type ConfigError struct {
	Path   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid rename table at %s: %s", e.Path, e.Reason)
}
