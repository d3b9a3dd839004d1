package schema

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
)

// Constraint names as reported in violations.
const (
	ConstraintRequired   = "required"
	ConstraintNotNull    = "not_null"
	ConstraintType       = "type"
	ConstraintFormat     = "format"
	ConstraintEnum       = "enum"
	ConstraintDictionary = "dictionary"
	ConstraintMinItems   = "min_items"
	ConstraintPattern    = "pattern"
)

// Constraint is a single check applied to every node a rule path matches.
type Constraint struct {
	// Name is reported in violations, e.g. "required" or "format".
	Name string
	// presence checks run for absent and null nodes too, value checks only for present, non-null nodes.
	presence func(c checkContext) string
	value    func(ctx context.Context, c checkContext) (string, error)
	// dictionary is set for dictionary-membership constraints, so the validator can require a provider.
	dictionary string
}

type checkContext struct {
	root         payload.Value
	match        payload.Match
	dictionaries DictionaryProvider
}

// Required demands that the node is present and not null.
func Required() Constraint {
	return Constraint{
		Name: ConstraintRequired,
		presence: func(c checkContext) string {
			if !c.match.Found || c.match.Value.IsNull() {
				return "value is required"
			}
			return ""
		},
	}
}

// NotNull allows the node to be absent, but not to be null when present.
func NotNull() Constraint {
	return Constraint{
		Name: ConstraintNotNull,
		presence: func(c checkContext) string {
			if c.match.Found && c.match.Value.IsNull() {
				return "value must not be null"
			}
			return ""
		},
	}
}

// RequiredIf demands the node when a sibling field is present (not null). When values are given, the sibling must
// also equal one of them for the node to be required.
func RequiredIf(sibling string, values ...string) Constraint {
	return Constraint{
		Name: ConstraintRequired,
		presence: func(c checkContext) string {
			if c.match.Found && !c.match.Value.IsNull() {
				return ""
			}
			parent, ok := c.root.Get(c.match.Path.Parent())
			if !ok {
				return ""
			}
			other, ok := parent.Lookup(sibling)
			if !ok || other.IsNull() {
				return ""
			}
			if len(values) == 0 {
				return fmt.Sprintf("value is required when %s is present", sibling)
			}
			if slices.Contains(values, other.Text()) {
				return fmt.Sprintf("value is required when %s is %s", sibling, other.Text())
			}
			return ""
		},
	}
}

// Type demands the node to be of one of the given types: null, boolean, number, integer, string, array or object.
func Type(names ...string) Constraint {
	return Constraint{
		Name: ConstraintType,
		value: func(_ context.Context, c checkContext) (string, error) {
			actual := c.match.Value.Kind()
			for _, name := range names {
				if name == "integer" {
					if number, ok := c.match.Value.AsNumber(); ok {
						if _, err := number.Int64(); err == nil {
							return "", nil
						}
					}
					continue
				}
				if actual.String() == name {
					return "", nil
				}
			}
			return fmt.Sprintf("expected %s, got %s", strings.Join(names, " or "), actual), nil
		},
	}
}

// Format demands a string value in the given format, see Formats.
func Format(name string) Constraint {
	return Constraint{
		Name: ConstraintFormat,
		value: func(_ context.Context, c checkContext) (string, error) {
			s, ok := c.match.Value.AsString()
			if !ok {
				return fmt.Sprintf("expected %s string, got %s", name, c.match.Value.Kind()), nil
			}
			check, ok := Formats[name]
			if !ok {
				return "", fmt.Errorf("unknown format: %s", name)
			}
			if !check(s) {
				return fmt.Sprintf("%q is not a valid %s", s, name), nil
			}
			return "", nil
		},
	}
}

// Enum demands a scalar value whose text is one of the given values.
func Enum(values ...string) Constraint {
	return Constraint{
		Name: ConstraintEnum,
		value: func(_ context.Context, c checkContext) (string, error) {
			if c.match.Value.IsScalar() && slices.Contains(values, c.match.Value.Text()) {
				return "", nil
			}
			return fmt.Sprintf("value must be one of %s", strings.Join(values, ", ")), nil
		},
	}
}

// InDictionary demands a scalar value that is a key of the named dictionary, as reported by the DictionaryProvider.
func InDictionary(dictionary string) Constraint {
	return Constraint{
		Name:       ConstraintDictionary,
		dictionary: dictionary,
		value: func(ctx context.Context, c checkContext) (string, error) {
			if !c.match.Value.IsScalar() {
				return fmt.Sprintf("expected value of dictionary %s, got %s", dictionary, c.match.Value.Kind()), nil
			}
			ok, err := c.dictionaries.Contains(ctx, dictionary, c.match.Value.Text())
			if err != nil {
				return "", &ProviderError{Dictionary: dictionary, Err: err}
			}
			if !ok {
				return fmt.Sprintf("%q is not a value of dictionary %s", c.match.Value.Text(), dictionary), nil
			}
			return "", nil
		},
	}
}

// MinItems demands an array with at least n items.
func MinItems(n int) Constraint {
	return Constraint{
		Name: ConstraintMinItems,
		value: func(_ context.Context, c checkContext) (string, error) {
			if !c.match.Value.IsArray() {
				return fmt.Sprintf("expected array, got %s", c.match.Value.Kind()), nil
			}
			if c.match.Value.Len() < n {
				return fmt.Sprintf("expected at least %d item(s), got %d", n, c.match.Value.Len()), nil
			}
			return "", nil
		},
	}
}

// Pattern demands a string value matching the regular expression.
func Pattern(expr string) (Constraint, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Constraint{}, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return Constraint{
		Name: ConstraintPattern,
		value: func(_ context.Context, c checkContext) (string, error) {
			s, ok := c.match.Value.AsString()
			if !ok || !re.MatchString(s) {
				return fmt.Sprintf("value must match %s", expr), nil
			}
			return "", nil
		},
	}, nil
}

// Predicate is a custom check on present, non-null values. The name is reported as constraint in violations.
func Predicate(name string, fn func(payload.Value) bool) Constraint {
	return Constraint{
		Name: name,
		value: func(_ context.Context, c checkContext) (string, error) {
			if !fn(c.match.Value) {
				return "predicate " + name + " failed", nil
			}
			return "", nil
		},
	}
}
