package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/SanteonNL/ehealth-ingest/ingest"
	"github.com/SanteonNL/ehealth-ingest/lib/logging"
	"github.com/SanteonNL/ehealth-ingest/resolve"
	"github.com/SanteonNL/ehealth-ingest/schema"
	"github.com/rs/zerolog/log"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
	// Stage is the last stage the payload completed, set when the pipeline aborted.
	Stage      string             `json:"stage,omitempty"`
	Violations []schema.Violation `json:"violations,omitempty"`
	Unresolved []resolve.Failure  `json:"unresolved,omitempty"`
}

// writeIngestError maps pipeline errors to responses: malformed payloads are the caller's fault (400),
// invalid records can't be processed (422), and an unavailable lookup or dictionary provider is a temporary condition (503).
func writeIngestError(ctx context.Context, httpResponse http.ResponseWriter, err error) {
	var stageErr *ingest.StageError
	if !errors.As(err, &stageErr) {
		status := http.StatusInternalServerError
		if errors.Is(err, ingest.ErrUnknownEntity) {
			status = http.StatusNotFound
		}
		writeError(ctx, httpResponse, status, err)
		return
	}
	response := ErrorResponse{Message: err.Error(), Stage: stageErr.Stage.String()}
	status := http.StatusUnprocessableEntity
	var failure *schema.Failure
	var unresolved *resolve.UnresolvedError
	var unavailable *resolve.UnavailableError
	var provider *schema.ProviderError
	switch {
	case stageErr.Stage == ingest.Received:
		status = http.StatusBadRequest
	case errors.As(err, &failure):
		response.Violations = failure.Violations
	case errors.As(err, &unresolved):
		response.Unresolved = unresolved.Failures
	case errors.As(err, &unavailable), errors.As(err, &provider):
		status = http.StatusServiceUnavailable
	}
	log.Ctx(ctx).Warn().Err(err).
		Str(logging.FieldStage, stageErr.Stage.String()).
		Int(logging.FieldFailures, len(response.Violations)+len(response.Unresolved)).
		Msg("Ingestion aborted")
	writeJSON(ctx, httpResponse, status, response)
}

func writeError(ctx context.Context, httpResponse http.ResponseWriter, status int, err error) {
	log.Ctx(ctx).Warn().Err(err).Msgf("Request failed with status %d", status)
	writeJSON(ctx, httpResponse, status, ErrorResponse{Message: err.Error()})
}

func writeJSON(ctx context.Context, httpResponse http.ResponseWriter, status int, body any) {
	httpResponse.Header().Set("Content-Type", "application/json")
	httpResponse.WriteHeader(status)
	if err := json.NewEncoder(httpResponse).Encode(body); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("Failed to write response")
	}
}
