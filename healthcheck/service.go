package healthcheck

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/SanteonNL/ehealth-ingest/lib/slices"
	"github.com/rs/zerolog/log"
)

// Check reports whether a dependency is healthy.
type Check func(ctx context.Context) error

func New(checks map[string]Check) *Service {
	return &Service{checks: checks}
}

type Service struct {
	checks map[string]Check
}

func (s Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealthCheck)
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s Service) handleHealthCheck(writer http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()
	result := response{Status: "up"}
	status := http.StatusOK
	for _, name := range slices.SortedKeys(s.checks) {
		if result.Checks == nil {
			result.Checks = map[string]string{}
		}
		if err := s.checks[name](ctx); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msgf("Health check %s failed", name)
			result.Checks[name] = "down"
			result.Status = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		result.Checks[name] = "up"
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(result)
}
