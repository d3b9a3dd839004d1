//go:generate mockgen -destination=./dictionary_mock.go -package=schema -source=validator.go DictionaryProvider
package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
)

// DictionaryProvider answers dictionary-membership questions, e.g. whether "PASSPORT" is a value of DOCUMENT_TYPE.
type DictionaryProvider interface {
	Contains(ctx context.Context, dictionary string, value string) (bool, error)
}

// Rule applies constraints to the nodes matched by a dotted path. Paths use internal (normalized) names;
// a "*" segment applies the rule to every element of an array.
type Rule struct {
	Path        string
	Constraints []Constraint
}

// RuleSet is an ordered list of rules. Violations are reported in rule order.
type RuleSet []Rule

// Option configures a Validator.
type Option func(v *Validator)

// WithDictionaries sets the provider used by InDictionary constraints.
func WithDictionaries(provider DictionaryProvider) Option {
	return func(v *Validator) {
		v.dictionaries = provider
	}
}

type compiledRule struct {
	path payload.Path
	// arrays are the patterns of the nodes the wildcards of path iterate over.
	arrays      []payload.Path
	constraints []Constraint
}

// Validator checks normalized payloads against a RuleSet.
type Validator struct {
	rules        []compiledRule
	dictionaries DictionaryProvider
}

// New compiles the rule set. It fails on empty paths, and on dictionary constraints when no provider is configured.
func New(rules RuleSet, opts ...Option) (*Validator, error) {
	result := &Validator{}
	for _, opt := range opts {
		opt(result)
	}
	var errs []error
	for i, rule := range rules {
		if rule.Path == "" {
			errs = append(errs, fmt.Errorf("rule %d: path is empty", i))
			continue
		}
		for _, constraint := range rule.Constraints {
			if constraint.dictionary != "" && result.dictionaries == nil {
				errs = append(errs, fmt.Errorf("rule %s: dictionary %s requires a dictionary provider", rule.Path, constraint.dictionary))
			}
		}
		path := payload.ParsePath(rule.Path)
		compiled := compiledRule{path: path, constraints: rule.Constraints}
		for j, segment := range path {
			if segment == payload.Wildcard && j > 0 {
				compiled.arrays = append(compiled.arrays, path[:j])
			}
		}
		result.rules = append(result.rules, compiled)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// Validate checks a single payload. It returns a *Failure listing every violation when the payload is invalid,
// or another error when a check could not be performed (e.g. the dictionary provider failed).
func (v *Validator) Validate(ctx context.Context, tree payload.Value) (Record, error) {
	violations, err := v.check(ctx, tree, 0)
	if err != nil {
		return Record{}, err
	}
	if len(violations) > 0 {
		return Record{}, &Failure{Violations: violations}
	}
	return Record{value: tree, valid: true}, nil
}

// ValidateList checks every element independently and never stops at the first invalid element.
// The returned error is only set when a check could not be performed; use Failures to aggregate the violations.
func (v *Validator) ValidateList(ctx context.Context, items []payload.Value) ([]Outcome, error) {
	result := make([]Outcome, len(items))
	for i, item := range items {
		violations, err := v.check(ctx, item, i)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		result[i] = Outcome{Violations: violations}
		if len(violations) == 0 {
			result[i].Record = Record{value: item, valid: true}
		}
	}
	return result, nil
}

func (v *Validator) check(ctx context.Context, tree payload.Value, index int) ([]Violation, error) {
	var violations []Violation
	reported := map[string]bool{}
	for _, rule := range v.rules {
		// A wildcard over something other than an array matches nothing, which would let its rules pass unchecked.
		for _, array := range rule.arrays {
			for _, match := range tree.Expand(array) {
				path := match.Path.String()
				if !match.Found || match.Value.IsNull() || match.Value.IsArray() || reported[path] {
					continue
				}
				reported[path] = true
				violations = append(violations, Violation{
					Index:      index,
					Path:       path,
					Constraint: ConstraintType,
					Message:    fmt.Sprintf("expected array, got %s", match.Value.Kind()),
				})
			}
		}
		for _, match := range tree.Expand(rule.path) {
			c := checkContext{root: tree, match: match, dictionaries: v.dictionaries}
			present := match.Found && !match.Value.IsNull()
			for _, constraint := range rule.constraints {
				var message string
				if constraint.presence != nil {
					message = constraint.presence(c)
				}
				if message == "" && constraint.value != nil && present {
					var err error
					message, err = constraint.value(ctx, c)
					if err != nil {
						return nil, fmt.Errorf("%s: %w", match.Path, err)
					}
				}
				if message != "" {
					violations = append(violations, Violation{
						Index:      index,
						Path:       match.Path.String(),
						Constraint: constraint.Name,
						Message:    message,
					})
				}
			}
		}
	}
	return violations, nil
}

// Prune removes the nodes that caused the given violations, so the remaining fields can be used.
// Violations of presence constraints (nothing to remove) are ignored. Array elements are removed last-first,
// so the indices of the remaining violations stay valid.
func Prune(tree payload.Value, violations []Violation) payload.Value {
	var paths []payload.Path
	for _, violation := range violations {
		if violation.Constraint == ConstraintRequired {
			continue
		}
		paths = append(paths, payload.ParsePath(violation.Path))
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return comparePaths(paths[i], paths[j]) > 0
	})
	for _, path := range paths {
		tree = tree.Delete(path)
	}
	return tree
}

func comparePaths(a, b payload.Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		ai, errA := strconv.Atoi(a[i])
		bi, errB := strconv.Atoi(b[i])
		if errA == nil && errB == nil {
			return ai - bi
		}
		if a[i] < b[i] {
			return -1
		}
		return 1
	}
	return len(a) - len(b)
}

// Record is a payload that satisfied every rule of the validator that produced it.
// It can only be obtained from a Validator.
type Record struct {
	value payload.Value
	valid bool
}

// Value returns the validated tree.
func (r Record) Value() payload.Value {
	return r.value
}

// Valid reports whether the record was produced by a successful validation.
func (r Record) Valid() bool {
	return r.valid
}

// Outcome is the result of validating one element of a list.
type Outcome struct {
	Record     Record
	Violations []Violation
}

func (o Outcome) Valid() bool {
	return o.Record.Valid()
}

// Failures aggregates the violations of all outcomes into a single Failure, or returns nil if all are valid.
func Failures(outcomes []Outcome) *Failure {
	var violations []Violation
	for _, outcome := range outcomes {
		violations = append(violations, outcome.Violations...)
	}
	if len(violations) == 0 {
		return nil
	}
	return &Failure{Violations: violations}
}
