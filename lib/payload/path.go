package payload

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Wildcard is the path segment that matches every element of an array.
const Wildcard = "*"

// Path addresses a node in a tree. Segments are object keys, array indices (for concrete paths) or Wildcard.
type Path []string

// ParsePath parses a dotted path, e.g. "party.documents.*.number".
func ParsePath(s string) Path {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Append returns a new path with the given segments appended.
func (p Path) Append(segments ...string) Path {
	result := make(Path, 0, len(p)+len(segments))
	result = append(result, p...)
	return append(result, segments...)
}

// HasWildcard reports whether any segment of the path is a wildcard.
func (p Path) HasWildcard() bool {
	for _, segment := range p {
		if segment == Wildcard {
			return true
		}
	}
	return false
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

// Last returns the last segment of the path.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// HasPrefix reports whether other is a prefix of p (segment-wise).
func (p Path) HasPrefix(other Path) bool {
	if len(other) > len(p) {
		return false
	}
	for i := range other {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// ErrPathConflict is returned when a path runs through a scalar.
var ErrPathConflict = errors.New("path runs through a scalar value")

// Get returns the node at the given concrete path. Null intermediate nodes are treated as absent.
func (v Value) Get(path Path) (Value, bool) {
	current := v
	for _, segment := range path {
		switch current.kind {
		case KindObject:
			next, ok := current.Lookup(segment)
			if !ok {
				return Value{}, false
			}
			current = next
		case KindArray:
			idx, err := strconv.Atoi(segment)
			if err != nil {
				return Value{}, false
			}
			next, ok := current.Index(idx)
			if !ok {
				return Value{}, false
			}
			current = next
		default:
			return Value{}, false
		}
	}
	return current, true
}

// Set returns a copy of the tree with the node at the given concrete path replaced by value.
// Missing (or null) intermediate objects are created.
func (v Value) Set(path Path, value Value) (Value, error) {
	if len(path) == 0 {
		return value, nil
	}
	segment := path[0]
	switch v.kind {
	case KindNull, KindObject:
		child, _ := v.Lookup(segment)
		updated, err := child.Set(path[1:], value)
		if err != nil {
			return v, err
		}
		return v.With(segment, updated), nil
	case KindArray:
		idx, err := strconv.Atoi(segment)
		if err != nil {
			return v, fmt.Errorf("%s: %w", segment, ErrPathConflict)
		}
		child, ok := v.Index(idx)
		if !ok {
			return v, fmt.Errorf("array index %d out of range", idx)
		}
		updated, err := child.Set(path[1:], value)
		if err != nil {
			return v, err
		}
		result, _ := v.WithIndex(idx, updated)
		return result, nil
	}
	return v, fmt.Errorf("%s: %w", segment, ErrPathConflict)
}

// Delete returns a copy of the tree without the node at the given concrete path.
// Deleting an array index removes the element; deleting a missing path is a no-op.
func (v Value) Delete(path Path) Value {
	if len(path) == 0 {
		return v
	}
	segment := path[0]
	switch v.kind {
	case KindObject:
		child, ok := v.Lookup(segment)
		if !ok {
			return v
		}
		if len(path) == 1 {
			return v.Without(segment)
		}
		return v.With(segment, child.Delete(path[1:]))
	case KindArray:
		idx, err := strconv.Atoi(segment)
		if err != nil {
			return v
		}
		child, ok := v.Index(idx)
		if !ok {
			return v
		}
		if len(path) == 1 {
			items := make([]Value, 0, len(v.items)-1)
			items = append(items, v.items[:idx]...)
			items = append(items, v.items[idx+1:]...)
			return Value{kind: KindArray, items: items}
		}
		result, _ := v.WithIndex(idx, child.Delete(path[1:]))
		return result
	}
	return v
}

// Match is a node found when expanding a path pattern.
type Match struct {
	// Path is the concrete path of the node, wildcards replaced by array indices.
	Path Path
	// Value is the node, only meaningful when Found is true. It may be null.
	Value Value
	// Found is false when the node is absent at Path. A null intermediate node counts as absent.
	Found bool
}

// Expand resolves a path pattern against the tree. Every wildcard is expanded over the elements of the array at
// that position. When the node addressed by the pattern is absent, a single Match with Found=false is returned,
// unless the absence occurs at or before a wildcard: a missing array yields no matches, since there are no elements
// to address.
func (v Value) Expand(pattern Path) []Match {
	var result []Match
	v.expand(pattern, nil, &result)
	return result
}

func (v Value) expand(pattern Path, prefix Path, result *[]Match) {
	if len(pattern) == 0 {
		*result = append(*result, Match{Path: prefix, Value: v, Found: true})
		return
	}
	segment, rest := pattern[0], pattern[1:]
	if segment == Wildcard {
		for i, item := range v.Items() {
			item.expand(rest, prefix.Append(strconv.Itoa(i)), result)
		}
		return
	}
	var child Value
	var ok bool
	switch v.kind {
	case KindObject:
		child, ok = v.Lookup(segment)
	case KindArray:
		if idx, err := strconv.Atoi(segment); err == nil {
			child, ok = v.Index(idx)
		}
	}
	if !ok || (child.IsNull() && len(rest) > 0) {
		if !rest.HasWildcard() {
			*result = append(*result, Match{Path: prefix.Append(pattern...), Found: false})
		}
		return
	}
	child.expand(rest, prefix.Append(segment), result)
}
