package ingest

import "fmt"

// Policy decides what happens to records that fail validation or reference resolution.
type Policy int

const (
	// Strict aborts the call on the first stage that reports any failure.
	Strict Policy = iota
	// SkipInvalid drops failing records and continues with the rest.
	SkipInvalid
	// BestEffort removes violating fields and nulls unresolved references, keeping as much of every record as possible.
	// Records that are still invalid after removing the violating fields are dropped.
	BestEffort
)

var policyNames = map[Policy]string{
	Strict:      "strict",
	SkipInvalid: "skip_invalid",
	BestEffort:  "best_effort",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy parses the policy name as used in configuration and query parameters.
func ParsePolicy(name string) (Policy, error) {
	for policy, policyName := range policyNames {
		if policyName == name {
			return policy, nil
		}
	}
	return Strict, fmt.Errorf("unknown policy: %q (supported: strict, skip_invalid, best_effort)", name)
}

func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Policy) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
