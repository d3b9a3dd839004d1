package ingest

import (
	"fmt"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/SanteonNL/ehealth-ingest/schema"
)

// Record is one ingested record.
type Record struct {
	// Index is the position of the record in the input (0 for single payloads).
	Index int `json:"index"`
	// Data is the normalized, validated record with its foreign keys rewritten to local references.
	Data payload.Value `json:"data"`
	// Groups holds the partitioned sub-records, nil when the entity type isn't partitioned.
	Groups map[string]payload.Value `json:"groups,omitempty"`
}

// Failure is a non-fatal problem with a record, absorbed by the policy of the call.
type Failure struct {
	Index int `json:"index"`
	// Stage is the stage the record (or field) failed to reach: validated or resolved.
	Stage      Stage  `json:"stage"`
	Path       string `json:"path"`
	Constraint string `json:"constraint,omitempty"`
	Target     string `json:"target,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message"`
}

func (f Failure) String() string {
	return fmt.Sprintf("[%d] %s: %s (%s)", f.Index, f.Path, f.Message, f.Stage)
}

// Result is the outcome of one ingestion call.
type Result struct {
	Entity string `json:"entity"`
	List   bool   `json:"list"`
	// Records are in input order. Records dropped by the policy are absent and listed in Skipped.
	Records  []Record  `json:"records"`
	Failures []Failure `json:"failures,omitempty"`
	// Skipped lists the input positions of records dropped by the policy.
	Skipped []int `json:"skipped,omitempty"`
	// Index lists the distinct external identifiers referenced per target entity type, for prefetching by a
	// subsequent step.
	Index map[string][]string `json:"index,omitempty"`
}

// Record returns the record of a single (non-list) ingestion.
func (r *Result) Record() (Record, bool) {
	if r.List || len(r.Records) != 1 {
		return Record{}, false
	}
	return r.Records[0], true
}

func (r *Result) addViolations(index int, violations []schema.Violation) {
	for _, violation := range violations {
		r.Failures = append(r.Failures, Failure{
			Index:      index,
			Stage:      Validated,
			Path:       violation.Path,
			Constraint: violation.Constraint,
			Message:    violation.Message,
		})
	}
}

func (r *Result) addUnresolved(failures []resolve.Failure) {
	for _, failure := range failures {
		r.Failures = append(r.Failures, Failure{
			Index:      failure.Index,
			Stage:      Resolved,
			Path:       failure.Path,
			Target:     failure.Target,
			ExternalID: failure.ExternalID,
			Message:    fmt.Sprintf("%s %s not found", failure.Target, failure.ExternalID),
		})
	}
}
