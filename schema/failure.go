package schema

import (
	"fmt"
	"strings"
)

// Violation is a single constraint violated at a concrete path.
type Violation struct {
	// Index is the position of the record in a list payload, 0 for single payloads.
	Index      int    `json:"index"`
	Path       string `json:"path"`
	Constraint string `json:"constraint"`
	Message    string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("[%d] %s: %s (%s)", v.Index, v.Path, v.Constraint, v.Message)
}

var _ error = &Failure{}

// Failure reports every violation found while validating a payload (or a list of payloads).
type Failure struct {
	Violations []Violation
}

func (f *Failure) Error() string {
	parts := make([]string, len(f.Violations))
	for i, violation := range f.Violations {
		parts[i] = violation.String()
	}
	return fmt.Sprintf("validation failed with %d violation(s): %s", len(f.Violations), strings.Join(parts, "; "))
}

// Has reports whether the failure contains a violation of the given constraint at the given path.
func (f *Failure) Has(path string, constraint string) bool {
	for _, violation := range f.Violations {
		if violation.Path == path && violation.Constraint == constraint {
			return true
		}
	}
	return false
}

var _ error = &ProviderError{}

// ProviderError reports that a dictionary check could not be performed because the DictionaryProvider failed.
// Unlike a Failure it says nothing about the payload.
type ProviderError struct {
	Dictionary string
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("dictionary %s: %v", e.Dictionary, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
