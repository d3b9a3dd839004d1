//go:generate mockgen -destination=./service_mock.go -package=messaging -source=service.go Broker
package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/SanteonNL/ehealth-ingest/lib/slices"
	"github.com/rs/zerolog/log"
)

// New creates the configured broker, which can publish to the given topics. Without configuration, messages are
// published in-process only.
func New(config Config, topics []Topic) (Broker, error) {
	topics = slices.Deduplicate(topics, func(a, b Topic) bool {
		return a.Name == b.Name
	})
	var broker Broker
	if config.AzureServiceBus.Enabled() {
		var err error
		broker, err = newAzureServiceBusBroker(config.AzureServiceBus, topics, config.TopicPrefix)
		if err != nil {
			return nil, fmt.Errorf("azure service bus: %w", err)
		}
	}
	if config.HTTP.Endpoint != "" {
		log.Info().Msgf("Messaging: sending messages over HTTP to %s", config.HTTP.Endpoint)
		broker = NewHTTPBroker(config.HTTP, config.TopicPrefix, broker)
	}
	if broker == nil {
		log.Warn().Msg("Messaging: no broker configured, messages are only delivered in-process")
		broker = NewMemoryBroker()
	}
	return broker, nil
}

// Config holds the configuration for messaging.
type Config struct {
	// AzureServiceBus holds the configuration for messaging using Azure ServiceBus.
	AzureServiceBus AzureServiceBusConfig `koanf:"azureservicebus"`
	HTTP            HTTPBrokerConfig      `koanf:"http"`
	// TopicPrefix is prepended to every topic name, e.g. to separate environments sharing a namespace.
	TopicPrefix string `koanf:"topicprefix"`
}

func (c Config) Validate(strictMode bool) error {
	if strictMode && c.HTTP.Endpoint != "" {
		return errors.New("http endpoint is not allowed in strict mode")
	}
	if strictMode && !c.AzureServiceBus.Enabled() {
		return errors.New("production-grade messaging configuration (Azure ServiceBus) is required in strict mode")
	}
	return nil
}

// Topic is a named destination for messages.
type Topic struct {
	Name string
}

// FullName returns the name of the topic as known by the broker.
func (t Topic) FullName(prefix string) string {
	return prefix + t.Name
}

type Message struct {
	Body          []byte
	ContentType   string
	CorrelationID *string
}

// Broker defines an interface for interacting with a message broker, including sending messages and closing connections.
type Broker interface {
	Close(ctx context.Context) error
	SendMessage(ctx context.Context, topic Topic, message *Message) error
}
