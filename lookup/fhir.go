package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	fhirclient "github.com/SanteonNL/go-fhir-client"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ Backend = &FHIR{}

// FHIRConfig holds the configuration of the FHIR lookup backend.
// Registry entities are expected to be stored as FHIR resources carrying the registry identifier as an Identifier.
type FHIRConfig struct {
	BaseURL string `koanf:"url"`
	// ResourceTypes maps target types to FHIR resource types, specified as target=ResourceType.
	ResourceTypes []string `koanf:"resourcetypes"`
	// IdentifierSystem is the system of the Identifier holding the registry identifier.
	IdentifierSystem string        `koanf:"identifiersystem"`
	Timeout          time.Duration `koanf:"timeout"`
}

func DefaultFHIRConfig() FHIRConfig {
	return FHIRConfig{
		IdentifierSystem: "https://e-health.gov.ua/fhir/sid/ehealth-uuid",
		Timeout:          30 * time.Second,
		ResourceTypes: []string{
			"legal_entity=Organization",
			"division=Location",
			"employee=PractitionerRole",
			"party=Practitioner",
			"person=Patient",
			"medical_program=PlanDefinition",
		},
	}
}

func (c FHIRConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("fhir: url is not configured")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("fhir: invalid url: %w", err)
	}
	if c.IdentifierSystem == "" {
		return errors.New("fhir: identifier system is not configured")
	}
	if _, err := parseTargetMap(c.ResourceTypes); err != nil {
		return fmt.Errorf("fhir: resource types: %w", err)
	}
	return nil
}

// FHIR resolves identifiers with one identifier search per target type against a FHIR server.
// Local references have the form ResourceType/id.
type FHIR struct {
	client        fhirclient.Client
	system        string
	resourceTypes map[string]string
}

func NewFHIR(config FHIRConfig) (*FHIR, error) {
	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	resourceTypes, err := parseTargetMap(config.ResourceTypes)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: otel.NewTransport(http.DefaultTransport, "lookup.fhir"),
		Timeout:   config.Timeout,
	}
	return &FHIR{
		client:        fhirclient.New(baseURL, httpClient, nil),
		system:        config.IdentifierSystem,
		resourceTypes: resourceTypes,
	}, nil
}

func (f *FHIR) LookupMany(ctx context.Context, target string, externalIDs []string) (map[string]string, error) {
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otel.LookupBackend, BackendFHIR))
	resourceType, ok := f.resourceTypes[target]
	if !ok {
		return nil, fmt.Errorf("no FHIR resource type configured for %s", target)
	}
	tokens := make([]string, len(externalIDs))
	for i, id := range externalIDs {
		tokens[i] = f.system + "|" + id
	}
	query := url.Values{}
	query.Set("identifier", strings.Join(tokens, ","))
	query.Set("_count", strconv.Itoa(len(externalIDs)))
	query.Set("_elements", "identifier")
	wanted := map[string]bool{}
	for _, id := range externalIDs {
		wanted[id] = true
	}
	result := map[string]string{}
	var bundle fhir.Bundle
	if err := f.client.SearchWithContext(ctx, resourceType, query, &bundle); err != nil {
		return nil, fmt.Errorf("search %s: %w", resourceType, err)
	}
	// Servers may cap _count, so the remaining matches are collected by following the next links.
	// A page holds at least one match, so more pages than identifiers (plus a trailing empty one) means the server is looping.
	for pages := 1; ; pages++ {
		if err := f.collect(resourceType, bundle, wanted, result); err != nil {
			return nil, err
		}
		next := nextLink(bundle)
		if next == "" {
			break
		}
		if pages > len(externalIDs) {
			return nil, fmt.Errorf("search %s: more than %d result pages", resourceType, pages)
		}
		bundle = fhir.Bundle{}
		if err := f.client.ReadWithContext(ctx, next, &bundle); err != nil {
			return nil, fmt.Errorf("search %s: page %d: %w", resourceType, pages+1, err)
		}
	}
	log.Ctx(ctx).Debug().Msgf("FHIR search for %d %s identifier(s) resolved %d", len(externalIDs), target, len(result))
	return result, nil
}

func (f *FHIR) collect(resourceType string, bundle fhir.Bundle, wanted map[string]bool, result map[string]string) error {
	for _, entry := range bundle.Entry {
		if entry.Resource == nil {
			continue
		}
		var resource struct {
			ResourceType string            `json:"resourceType"`
			ID           *string           `json:"id"`
			Identifier   []fhir.Identifier `json:"identifier"`
		}
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			return fmt.Errorf("search %s: invalid resource: %w", resourceType, err)
		}
		if resource.ID == nil || resource.ResourceType != resourceType {
			continue
		}
		for _, identifier := range resource.Identifier {
			if identifier.System == nil || identifier.Value == nil || *identifier.System != f.system {
				continue
			}
			if wanted[*identifier.Value] {
				result[*identifier.Value] = resourceType + "/" + *resource.ID
			}
		}
	}
	return nil
}

func nextLink(bundle fhir.Bundle) string {
	for _, link := range bundle.Link {
		if link.Relation == "next" {
			return link.Url
		}
	}
	return ""
}

func (f *FHIR) Close() {}
