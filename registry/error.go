package registry

import (
	"fmt"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
)

var _ error = &Error{}

// Error is the error block the registry returns with non-2xx responses.
type Error struct {
	StatusCode int           `json:"-"`
	Type       string        `json:"type"`
	Message    string        `json:"message"`
	Invalid    payload.Value `json:"invalid"`
}

func (e *Error) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("registry responded with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("registry responded with status %d: %s: %s", e.StatusCode, e.Type, e.Message)
}
