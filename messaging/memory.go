package messaging

import (
	"context"
	"sync"

	"github.com/SanteonNL/ehealth-ingest/lib/logging"
	"github.com/rs/zerolog/log"
)

var _ Broker = &MemoryBroker{}

// MemoryBroker delivers messages to in-process subscribers, synchronously.
type MemoryBroker struct {
	mux      sync.RWMutex
	handlers map[string][]func(context.Context, Message) error
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		handlers: make(map[string][]func(context.Context, Message) error),
	}
}

// Subscribe registers a handler for messages sent to the topic.
func (m *MemoryBroker) Subscribe(topic Topic, handler func(context.Context, Message) error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.handlers[topic.Name] = append(m.handlers[topic.Name], handler)
}

// SendMessage invokes every subscriber of the topic. A failing subscriber doesn't fail the send,
// nor does it keep the other subscribers from being invoked.
func (m *MemoryBroker) SendMessage(ctx context.Context, topic Topic, message *Message) error {
	m.mux.RLock()
	handlers := m.handlers[topic.Name]
	m.mux.RUnlock()
	if len(handlers) == 0 {
		log.Ctx(ctx).Debug().Str(logging.FieldTopic, topic.Name).Msg("Messaging: no subscribers for topic, message dropped")
		return nil
	}
	for _, handler := range handlers {
		if err := handler(ctx, *message); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str(logging.FieldTopic, topic.Name).Msg("Messaging: handler for topic failed")
		}
	}
	return nil
}

func (m *MemoryBroker) Close(_ context.Context) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	m.handlers = map[string][]func(context.Context, Message) error{}
	return nil
}
