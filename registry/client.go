// Package registry implements a client for the list and read endpoints of the eHealth registry API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SanteonNL/ehealth-ingest/lib/debug"
	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/rs/zerolog/log"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var tracer = baseotel.Tracer("registry")

const maxResponseSize = 50 * 1024 * 1024

// Paging describes the position of a page within a list.
type Paging struct {
	PageNumber   int `json:"page_number"`
	PageSize     int `json:"page_size"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// HasNext reports whether there are pages after this one.
func (p Paging) HasNext() bool {
	return p.PageNumber < p.TotalPages
}

// Page is one page of a list endpoint. Data is the array of raw entries.
type Page struct {
	Data   payload.Value
	Paging Paging
}

// envelope is the response body of every registry endpoint.
type envelope struct {
	Data   payload.Value `json:"data"`
	Paging *Paging       `json:"paging"`
	Error  *Error        `json:"error"`
}

// Client reads entities from the registry.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	pageSize   int
}

// New creates a client for the configured registry. When client credentials are configured, requests carry
// an access token obtained through the OAuth2 client credentials grant.
func New(ctx context.Context, config Config) (*Client, error) {
	baseURL, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	var transport http.RoundTripper = http.DefaultTransport
	if config.ClientID != "" {
		credentials := clientcredentials.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			TokenURL:     config.TokenURL,
			Scopes:       config.Scopes,
		}
		tokenClient := &http.Client{Transport: otel.NewTransport(http.DefaultTransport, "registry.token"), Timeout: config.Timeout}
		transport = &oauth2.Transport{
			Source: credentials.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, tokenClient)),
			Base:   http.DefaultTransport,
		}
	}
	return NewWithHTTPClient(baseURL, &http.Client{
		Transport: otel.NewTransport(transport, "registry"),
		Timeout:   config.Timeout,
	}, config.PageSize), nil
}

// NewWithHTTPClient creates a client that sends requests through the given HTTP client.
func NewWithHTTPClient(baseURL *url.URL, httpClient *http.Client, pageSize int) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		pageSize:   pageSize,
	}
}

// PageSize returns the effective page size: the configured one, bounded to 1..MaxPageSize.
func (c *Client) PageSize() int {
	switch {
	case c.pageSize < 1:
		return DefaultPageSize
	case c.pageSize > MaxPageSize:
		return MaxPageSize
	}
	return c.pageSize
}

// List fetches one page of a list endpoint, e.g. /api/legal_entities. The page_size query parameter defaults
// to the configured page size. Traversal of further pages is up to the caller.
func (c *Client) List(ctx context.Context, path string, query url.Values) (*Page, error) {
	ctx, span := tracer.Start(ctx, debug.GetFullCallerName(), trace.WithAttributes(attribute.String(otel.RegistryPath, path)))
	defer span.End()

	values := url.Values{}
	for key, value := range query {
		values[key] = value
	}
	if values.Get("page_size") == "" {
		values.Set("page_size", strconv.Itoa(c.PageSize()))
	}
	result, err := c.do(ctx, path, values)
	if err != nil {
		return nil, otel.Error(span, err)
	}
	if !result.Data.IsArray() {
		return nil, otel.Error(span, fmt.Errorf("GET %s: expected data to be an array, got %s", path, result.Data.Kind()))
	}
	page := &Page{Data: result.Data}
	if result.Paging != nil {
		page.Paging = *result.Paging
	}
	span.SetAttributes(
		attribute.Int(otel.RegistryPage, page.Paging.PageNumber),
		attribute.Int(otel.RegistryPageSize, page.Paging.PageSize),
	)
	return page, nil
}

// Get fetches a single entity, e.g. /api/legal_entities/{id}.
func (c *Client) Get(ctx context.Context, path string) (payload.Value, error) {
	ctx, span := tracer.Start(ctx, debug.GetFullCallerName(), trace.WithAttributes(attribute.String(otel.RegistryPath, path)))
	defer span.End()

	result, err := c.do(ctx, path, nil)
	if err != nil {
		return payload.Value{}, otel.Error(span, err)
	}
	return result.Data, nil
}

func (c *Client) do(ctx context.Context, path string, query url.Values) (*envelope, error) {
	requestURL := c.baseURL.JoinPath(strings.Split(strings.TrimPrefix(path, "/"), "/")...)
	requestURL.RawQuery = query.Encode()
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return nil, err
	}
	httpRequest.Header.Set("Accept", "application/json")
	log.Ctx(ctx).Debug().Msgf("Registry request: GET %s", requestURL.String())
	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer httpResponse.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResponse.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("GET %s: read response: %w", path, err)
	}
	if len(data) > maxResponseSize {
		return nil, fmt.Errorf("GET %s: response exceeds max. size of %d bytes", path, maxResponseSize)
	}
	var result envelope
	if err := json.Unmarshal(data, &result); err != nil {
		if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
			return nil, &Error{StatusCode: httpResponse.StatusCode, Message: http.StatusText(httpResponse.StatusCode)}
		}
		return nil, fmt.Errorf("GET %s: invalid response: %w", path, err)
	}
	if httpResponse.StatusCode < 200 || httpResponse.StatusCode > 299 {
		if result.Error == nil {
			result.Error = &Error{Message: http.StatusText(httpResponse.StatusCode)}
		}
		result.Error.StatusCode = httpResponse.StatusCode
		return nil, result.Error
	}
	return &result, nil
}
