// Package partition splits a validated record into the named sub-records a storage layer expects,
// and merges them back.
package partition

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
)

// Whole as a field name makes the claimed value the group itself, e.g. a list of documents.
const Whole = "."

// Field claims the node at Path for a group.
type Field struct {
	// Path is a dotted path without wildcards.
	Path string `yaml:"path"`
	// As is the key of the value in the group, defaults to the last path segment.
	As string `yaml:"as,omitempty"`
	// Shared fields are copied into the group and retained in the record.
	Shared bool `yaml:"shared,omitempty"`
}

func (f Field) name() string {
	if f.As != "" {
		return f.As
	}
	return payload.ParsePath(f.Path).Last()
}

type Group struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Spec describes how a record is split. Every top-level field must end up in exactly one group:
// claimed explicitly, declared dropped, or collected by the Remainder group.
type Spec struct {
	Groups []Group `yaml:"groups"`
	// Remainder names the group that receives all unclaimed top-level fields. It may also claim fields itself.
	Remainder string `yaml:"remainder,omitempty"`
	// Dropped lists paths that are intentionally not persisted. A dropped ancestor of a claimed path drops
	// whatever the claims leave of it.
	Dropped []string `yaml:"dropped,omitempty"`
}

// IsZero reports whether s declares no partitioning at all.
func (s Spec) IsZero() bool {
	return len(s.Groups) == 0 && s.Remainder == "" && len(s.Dropped) == 0
}

// Validate checks s for duplicate claims, wildcard paths and name collisions within a group.
func (s Spec) Validate() error {
	var errs []error
	groups := map[string]bool{}
	claimed := map[string]bool{}
	for _, dropped := range s.Dropped {
		if err := checkPath(dropped); err != nil {
			errs = append(errs, fmt.Errorf("dropped %q: %w", dropped, err))
		}
		claimed[dropped] = true
	}
	for _, group := range s.Groups {
		if group.Name == "" {
			errs = append(errs, errors.New("group without name"))
			continue
		}
		if groups[group.Name] {
			errs = append(errs, fmt.Errorf("group %s: declared twice", group.Name))
		}
		groups[group.Name] = true
		names := map[string]bool{}
		for _, field := range group.Fields {
			if err := checkPath(field.Path); err != nil {
				errs = append(errs, fmt.Errorf("group %s, field %q: %w", group.Name, field.Path, err))
				continue
			}
			if claimed[field.Path] {
				errs = append(errs, fmt.Errorf("group %s: %s is claimed more than once", group.Name, field.Path))
			}
			claimed[field.Path] = true
			name := field.name()
			if names[name] {
				errs = append(errs, fmt.Errorf("group %s: name %s is used more than once", group.Name, name))
			}
			names[name] = true
		}
		if names[Whole] {
			if len(group.Fields) > 1 {
				errs = append(errs, fmt.Errorf("group %s: a whole-value field must be the only field", group.Name))
			}
			if group.Name == s.Remainder {
				errs = append(errs, fmt.Errorf("group %s: remainder group can't hold a whole value", group.Name))
			}
		}
	}
	return errors.Join(errs...)
}

func checkPath(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if payload.ParsePath(path).HasWildcard() {
		return errors.New("wildcards are not supported")
	}
	return nil
}

// UndeclaredFieldsError is returned when a record has top-level fields no group claims and there is no remainder group.
type UndeclaredFieldsError struct {
	Fields []string
}

func (e *UndeclaredFieldsError) Error() string {
	return "undeclared fields: " + strings.Join(e.Fields, ", ")
}

type claim struct {
	group string
	path  payload.Path
	field Field
}

// claims returns every field claim, deepest path first. Claims of equal depth keep declaration order.
func (s Spec) claims() []claim {
	var result []claim
	for _, group := range s.Groups {
		for _, field := range group.Fields {
			result = append(result, claim{group: group.Name, path: payload.ParsePath(field.Path), field: field})
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return len(result[i].path) > len(result[j].path)
	})
	return result
}

// Partition splits the record into groups. Missing claimed paths are absent from their group, not an error.
// Each object group is present in the result, even when empty; a whole-value group is absent when its path is.
func Partition(record payload.Value, spec Spec) (map[string]payload.Value, error) {
	if !record.IsObject() {
		return nil, fmt.Errorf("can't partition a %s, expected object", record.Kind())
	}
	result := map[string]payload.Value{}
	for _, group := range spec.Groups {
		if !isWhole(group) {
			result[group.Name] = payload.Object()
		}
	}
	early, late := spec.drops()
	rest := record
	for _, dropped := range early {
		rest = rest.Delete(dropped)
	}
	for _, c := range spec.claims() {
		value, ok := rest.Get(c.path)
		if !ok {
			continue
		}
		if c.field.name() == Whole {
			result[c.group] = value
		} else {
			result[c.group] = result[c.group].With(c.field.name(), value)
		}
		if !c.field.Shared {
			rest = removeClaimed(rest, c.path)
		}
	}
	for _, dropped := range late {
		rest = rest.Delete(dropped)
	}
	if rest.Len() == 0 {
		return result, nil
	}
	if spec.Remainder == "" {
		return nil, &UndeclaredFieldsError{Fields: rest.Keys()}
	}
	remainder, ok := result[spec.Remainder]
	if !ok {
		remainder = payload.Object()
	}
	for _, member := range rest.Members() {
		if remainder.Has(member.Key) {
			return nil, fmt.Errorf("group %s: field %s collides with a claimed field", spec.Remainder, member.Key)
		}
		remainder = remainder.With(member.Key, member.Value)
	}
	result[spec.Remainder] = remainder
	return result, nil
}

// drops splits the dropped paths in those removed before claiming and those removed after: a dropped path that is
// an ancestor of a claimed path only drops what the claims leave behind.
func (s Spec) drops() (early []payload.Path, late []payload.Path) {
	claims := s.claims()
	for _, dropped := range s.Dropped {
		path := payload.ParsePath(dropped)
		ancestor := false
		for _, c := range claims {
			if len(c.path) > len(path) && c.path.HasPrefix(path) {
				ancestor = true
				break
			}
		}
		if ancestor {
			late = append(late, path)
		} else {
			early = append(early, path)
		}
	}
	return early, late
}

func underAny(path payload.Path, ancestors []payload.Path) bool {
	for _, ancestor := range ancestors {
		if path.HasPrefix(ancestor) {
			return true
		}
	}
	return false
}

// removeClaimed deletes the claimed node, and every ancestor object that became empty because of it.
func removeClaimed(tree payload.Value, path payload.Path) payload.Value {
	tree = tree.Delete(path)
	for parent := path.Parent(); len(parent) > 0; parent = parent.Parent() {
		node, ok := tree.Get(parent)
		if !ok || !node.IsObject() || node.Len() > 0 {
			break
		}
		tree = tree.Delete(parent)
	}
	return tree
}

func isWhole(group Group) bool {
	return len(group.Fields) == 1 && group.Fields[0].name() == Whole
}

// Merge reconstructs a record from its groups. For every record R and valid spec S,
// Merge(Partition(R, S), S) equals R without the fields S declares dropped.
func Merge(groups map[string]payload.Value, spec Spec) (payload.Value, error) {
	result := payload.Object()
	if spec.Remainder != "" {
		claimedNames := map[string]bool{}
		for _, group := range spec.Groups {
			if group.Name != spec.Remainder {
				continue
			}
			for _, field := range group.Fields {
				claimedNames[field.name()] = true
			}
		}
		for _, member := range groups[spec.Remainder].Members() {
			if !claimedNames[member.Key] {
				result = result.With(member.Key, member.Value)
			}
		}
	}
	_, late := spec.drops()
	claims := spec.claims()
	// Shallowest first, so nested claims are restored inside their restored ancestors
	for i := len(claims) - 1; i >= 0; i-- {
		c := claims[i]
		if c.field.Shared || underAny(c.path, late) {
			continue
		}
		group, ok := groups[c.group]
		if !ok {
			continue
		}
		value := group
		if c.field.name() != Whole {
			if value, ok = group.Lookup(c.field.name()); !ok {
				continue
			}
		}
		var err error
		if result, err = result.Set(c.path, value); err != nil {
			return payload.Value{}, fmt.Errorf("group %s, field %s: %w", c.group, c.path, err)
		}
	}
	return result, nil
}
