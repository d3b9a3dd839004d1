package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/to"
)

var _ Broker = &HTTPBroker{}

type HTTPBrokerConfig struct {
	Endpoint string `koanf:"endpoint"`
	// TopicFilter is a list of topics that should be sent over HTTP. If empty, all topics are sent.
	TopicFilter []string `koanf:"topicfilter"`
}

// NewHTTPBroker creates a broker that POSTs messages to {endpoint}/{topic}, and to the underlying broker if set.
func NewHTTPBroker(config HTTPBrokerConfig, topicPrefix string, underlyingBroker Broker) *HTTPBroker {
	return &HTTPBroker{
		underlyingBroker: underlyingBroker,
		endpoint:         config.Endpoint,
		topicFilter:      config.TopicFilter,
		topicPrefix:      topicPrefix,
		httpClient:       &http.Client{Transport: otel.NewTransport(http.DefaultTransport, "messaging.http")},
	}
}

type HTTPBroker struct {
	underlyingBroker Broker
	endpoint         string
	topicFilter      []string
	topicPrefix      string
	httpClient       *http.Client
}

func (h HTTPBroker) Close(ctx context.Context) error {
	if h.underlyingBroker == nil {
		return nil
	}
	return h.underlyingBroker.Close(ctx)
}

func (h HTTPBroker) SendMessage(ctx context.Context, topic Topic, message *Message) error {
	var errs []error
	if len(h.topicFilter) == 0 || slices.Contains(h.topicFilter, topic.Name) {
		if err := h.doSend(ctx, topic, message); err != nil {
			errs = append(errs, fmt.Errorf("failed to send message over HTTP: %w", err))
		}
	}
	if h.underlyingBroker != nil {
		if err := h.underlyingBroker.SendMessage(ctx, topic, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h HTTPBroker) doSend(ctx context.Context, topic Topic, message *Message) error {
	// compact the body to remove extra whitespace
	var body bytes.Buffer
	if err := json.Compact(&body, message.Body); err != nil {
		return err
	}
	endpoint, err := url.Parse(h.endpoint)
	if err != nil {
		return err
	}
	httpRequestCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(httpRequestCtx, http.MethodPost, endpoint.JoinPath(topic.FullName(h.topicPrefix)).String(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", message.ContentType)
	if correlationID := to.Empty(message.CorrelationID); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}
	client := h.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("received non-OK response: %d", resp.StatusCode)
	}
	return nil
}
