// Package api exposes the ingestion pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/SanteonNL/ehealth-ingest/events"
	"github.com/SanteonNL/ehealth-ingest/ingest"
	"github.com/SanteonNL/ehealth-ingest/lib/logging"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/registry"
	"github.com/rs/zerolog/log"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "api"

// maxBodySize limits posted payloads, a full registry page of 500 employees fits well within it.
const maxBodySize = 32 * 1024 * 1024

// Lister fetches one page of a registry list endpoint. It's implemented by registry.Client.
type Lister interface {
	List(ctx context.Context, path string, query url.Values) (*registry.Page, error)
}

// Service handles ingestion requests.
type Service struct {
	pipeline *ingest.Pipeline
	registry Lister
	events   events.Manager
}

// New creates the service. The registry is optional: without it, synchronization is unavailable.
func New(pipeline *ingest.Pipeline, registry Lister, eventManager events.Manager) *Service {
	return &Service{
		pipeline: pipeline,
		registry: registry,
		events:   eventManager,
	}
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	tracer := baseotel.Tracer(tracerName)
	mux.HandleFunc("POST /ingest/{entity}", otel.HandlerWithTracing(tracer, "Ingest", s.handleIngest))
	mux.HandleFunc("POST /sync/{entity}", otel.HandlerWithTracing(tracer, "Sync", s.handleSync))
	mux.HandleFunc("GET /entities", otel.HandlerWithTracing(tracer, "ListEntities", s.handleListEntities))
}

// handleIngest ingests the posted payload. Query parameters:
//   - list: whether the payload is an array of records; inferred from the payload when absent.
//   - policy: strict, skip_invalid or best_effort; defaults to the entity type's policy.
func (s *Service) handleIngest(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	ctx := logging.AppendCtx(httpRequest.Context(), logging.FieldEntity, httpRequest.PathValue("entity"))
	ctx = logging.WithTrace(ctx)
	entity, ok := s.pipeline.Registry().Get(httpRequest.PathValue("entity"))
	if !ok {
		writeError(ctx, httpResponse, http.StatusNotFound, fmt.Errorf("%w: %s", ingest.ErrUnknownEntity, httpRequest.PathValue("entity")))
		return
	}
	options, err := parseOptions(httpRequest.URL.Query(), entity)
	if err != nil {
		writeError(ctx, httpResponse, http.StatusBadRequest, err)
		return
	}
	span := trace.SpanFromContext(ctx)
	span.AddEvent(otel.RequestReadingBody)
	raw, err := payload.DecodeReader(io.LimitReader(httpRequest.Body, maxBodySize))
	if err != nil {
		span.AddEvent(otel.RequestReadingBodyFailed)
		writeError(ctx, httpResponse, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return
	}
	if _, set := httpRequest.URL.Query()["list"]; !set {
		options.List = raw.IsArray()
	}
	result, err := s.pipeline.Ingest(ctx, entity.Name, raw, options)
	if err != nil {
		writeIngestError(ctx, httpResponse, err)
		return
	}
	logResult(ctx, result, options)
	writeJSON(ctx, httpResponse, http.StatusOK, result)
}

// SyncResponse is the response of the sync endpoint.
type SyncResponse struct {
	*ingest.Result
	Paging    registry.Paging `json:"paging"`
	Published int             `json:"published"`
}

// handleSync fetches one page of the entity type's registry list, ingests it and publishes every ingested record.
// Query parameters: page (default 1), page_size (default from configuration) and policy.
func (s *Service) handleSync(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	ctx := logging.AppendCtx(httpRequest.Context(), logging.FieldEntity, httpRequest.PathValue("entity"))
	ctx = logging.WithTrace(ctx)
	if s.registry == nil {
		writeError(ctx, httpResponse, http.StatusNotImplemented, errors.New("registry is not configured"))
		return
	}
	entity, ok := s.pipeline.Registry().Get(httpRequest.PathValue("entity"))
	if !ok {
		writeError(ctx, httpResponse, http.StatusNotFound, fmt.Errorf("%w: %s", ingest.ErrUnknownEntity, httpRequest.PathValue("entity")))
		return
	}
	if entity.Source == "" {
		writeError(ctx, httpResponse, http.StatusBadRequest, fmt.Errorf("entity type %s has no registry source", entity.Name))
		return
	}
	query := httpRequest.URL.Query()
	options, err := parseOptions(query, entity)
	if err != nil {
		writeError(ctx, httpResponse, http.StatusBadRequest, err)
		return
	}
	options.List = true
	registryQuery := url.Values{}
	for _, key := range []string{"page", "page_size"} {
		if value := query.Get(key); value != "" {
			if n, err := strconv.Atoi(value); err != nil || n < 1 {
				writeError(ctx, httpResponse, http.StatusBadRequest, fmt.Errorf("invalid %s: %s", key, value))
				return
			}
			registryQuery.Set(key, value)
		}
	}

	page, err := s.registry.List(ctx, entity.Source, registryQuery)
	if err != nil {
		var registryErr *registry.Error
		if errors.As(err, &registryErr) {
			writeError(ctx, httpResponse, http.StatusBadGateway, err)
		} else {
			writeError(ctx, httpResponse, http.StatusServiceUnavailable, err)
		}
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(otel.RegistryPage, page.Paging.PageNumber))
	result, err := s.pipeline.Ingest(ctx, entity.Name, page.Data, options)
	if err != nil {
		writeIngestError(ctx, httpResponse, err)
		return
	}
	logResult(ctx, result, options)

	response := SyncResponse{Result: result, Paging: page.Paging}
	for _, record := range result.Records {
		event := events.RecordIngested{Entity: entity.Name, Index: record.Index, Groups: record.Groups}
		if record.Groups == nil {
			data := record.Data
			event.Data = &data
		}
		if err := s.events.Notify(ctx, event); err != nil {
			log.Ctx(ctx).Error().Err(err).Int(logging.FieldIndex, record.Index).Msg("Failed to publish ingested record")
			writeError(ctx, httpResponse, http.StatusServiceUnavailable, fmt.Errorf("published %d of %d record(s): %w", response.Published, len(result.Records), err))
			return
		}
		response.Published++
	}
	writeJSON(ctx, httpResponse, http.StatusOK, response)
}

type entityInfo struct {
	Name   string `json:"name"`
	Policy string `json:"policy"`
	Source string `json:"source,omitempty"`
	// Groups are the partition groups records of this type are split into.
	Groups []string `json:"groups,omitempty"`
}

func (s *Service) handleListEntities(httpResponse http.ResponseWriter, httpRequest *http.Request) {
	entities := s.pipeline.Registry()
	result := []entityInfo{}
	for _, name := range entities.Names() {
		entity, _ := entities.Get(name)
		info := entityInfo{Name: entity.Name, Policy: entity.Policy.String(), Source: entity.Source}
		for _, group := range entity.Partition.Groups {
			info.Groups = append(info.Groups, group.Name)
		}
		if remainder := entity.Partition.Remainder; remainder != "" && !slices.Contains(info.Groups, remainder) {
			info.Groups = append(info.Groups, remainder)
		}
		result = append(result, info)
	}
	writeJSON(httpRequest.Context(), httpResponse, http.StatusOK, result)
}

func parseOptions(query url.Values, entity ingest.Entity) (ingest.Options, error) {
	result := ingest.Options{Policy: entity.Policy}
	if value := query.Get("policy"); value != "" {
		policy, err := ingest.ParsePolicy(value)
		if err != nil {
			return ingest.Options{}, err
		}
		result.Policy = policy
	}
	if value := query.Get("list"); value != "" {
		list, err := strconv.ParseBool(value)
		if err != nil {
			return ingest.Options{}, fmt.Errorf("invalid list: %s", value)
		}
		result.List = list
	}
	return result, nil
}

// logResult logs the failures the policy absorbed, aggregated into a single entry.
func logResult(ctx context.Context, result *ingest.Result, options ingest.Options) {
	if len(result.Failures) == 0 && len(result.Skipped) == 0 {
		log.Ctx(ctx).Debug().Int(logging.FieldCount, len(result.Records)).Msg("Ingested records")
		return
	}
	failures := make([]string, len(result.Failures))
	for i, failure := range result.Failures {
		failures[i] = failure.String()
	}
	log.Ctx(ctx).Warn().
		Str(logging.FieldPolicy, options.Policy.String()).
		Int(logging.FieldCount, len(result.Records)).
		Ints("skipped", result.Skipped).
		Strs(logging.FieldFailures, failures).
		Msgf("Ingested records, %d failure(s) absorbed", len(result.Failures))
}
