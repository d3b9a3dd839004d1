package ingest

import "fmt"

// Stage is a state of a single ingestion call.
type Stage int

const (
	Received Stage = iota
	Normalized
	Validated
	Resolved
	Partitioned
	Done
)

var stageNames = [...]string{"received", "normalized", "validated", "resolved", "partitioned", "done"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for i, name := range stageNames {
		if name == string(text) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage: %q", string(text))
}

// StageError is the terminal failure of an ingestion call. Stage is the last stage that completed successfully,
// Err the reason the next one could not: a *schema.Failure after Normalized, a *resolve.UnavailableError after
// Validated, a *resolve.UnresolvedError after Resolved under the strict policy.
type StageError struct {
	Entity string
	Stage  Stage
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s failed after stage %s: %v", e.Entity, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
