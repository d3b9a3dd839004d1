package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

var _ Broker = &AzureServiceBusBroker{}

// AzureServiceBusConfig holds the configuration for connecting to and interacting with a AzureServiceBus instance.
type AzureServiceBusConfig struct {
	Hostname         string `koanf:"hostname"`
	ConnectionString string `koanf:"connectionstring" description:"This is the connection string for connecting to AzureServiceBus."`
}

func (a AzureServiceBusConfig) Enabled() bool {
	return a.Hostname != "" || a.ConnectionString != ""
}

func newAzureServiceBusBroker(conf AzureServiceBusConfig, topics []Topic, topicPrefix string) (*AzureServiceBusBroker, error) {
	client, err := newAzureServiceBusClient(conf)
	if err != nil {
		return nil, err
	}
	senders := make(map[string]*azservicebus.Sender, len(topics))
	for _, topic := range topics {
		name := topic.FullName(topicPrefix)
		sender, err := client.NewSender(name, nil)
		if err != nil {
			return nil, fmt.Errorf("create sender (topic=%s): %w", name, err)
		}
		senders[topic.Name] = sender
	}
	log.Info().Msgf("AzureServiceBus: publishing to %d topic(s)", len(senders))
	return &AzureServiceBusBroker{
		client:  client,
		senders: senders,
	}, nil
}

func newAzureServiceBusClient(conf AzureServiceBusConfig) (*azservicebus.Client, error) {
	if conf.ConnectionString != "" {
		return azservicebus.NewClientFromConnectionString(conf.ConnectionString, nil)
	}
	if conf.Hostname == "" {
		return nil, errors.New("configuration is missing hostname or connection string")
	}
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azservicebus.NewClient(conf.Hostname, credential, nil)
}

// AzureServiceBusBroker publishes messages to Azure Service Bus topics. Senders are created up front,
// one per entity type the service publishes ingestion results for.
type AzureServiceBusBroker struct {
	senders map[string]*azservicebus.Sender
	mux     sync.RWMutex
	client  *azservicebus.Client
}

// Close releases the senders and the client.
func (c *AzureServiceBusBroker) Close(ctx context.Context) error {
	c.mux.Lock()
	defer c.mux.Unlock()
	var errs []error
	for topic, sender := range c.senders {
		if err := sender.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close sender (topic=%s): %w", topic, err))
		}
	}
	c.senders = map[string]*azservicebus.Sender{}
	if err := c.client.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close client: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("azure service bus: %w", errors.Join(errs...))
	}
	log.Ctx(ctx).Debug().Msg("AzureServiceBus: closed")
	return nil
}

// SendMessage publishes the message to the sender of its topic. The topic name is set as the message subject,
// so subscriptions can filter on it.
func (c *AzureServiceBusBroker) SendMessage(ctx context.Context, topic Topic, message *Message) error {
	c.mux.RLock()
	sender, ok := c.senders[topic.Name]
	c.mux.RUnlock()
	if !ok {
		return fmt.Errorf("AzureServiceBus: sender not found (topic=%s)", topic.Name)
	}
	return sender.SendMessage(ctx, &azservicebus.Message{
		Body:          message.Body,
		ContentType:   &message.ContentType,
		CorrelationID: message.CorrelationID,
		Subject:       &topic.Name,
	}, nil)
}
