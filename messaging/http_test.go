package messaging

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/lib/to"
	"github.com/stretchr/testify/require"
)

func TestHTTPBroker(t *testing.T) {
	// Create a test HTTP server
	var capturedBody []byte
	var capturedContentType string
	var capturedTopic string
	var capturedHTTPMethod string
	var capturedCorrelationID string
	testServer := httptest.NewServer(http.HandlerFunc(func(httpResponse http.ResponseWriter, httpRequest *http.Request) {
		capturedTopic = httpRequest.URL.Path
		capturedHTTPMethod = httpRequest.Method
		capturedContentType = httpRequest.Header.Get("Content-Type")
		capturedCorrelationID = httpRequest.Header.Get("X-Correlation-ID")
		var err error
		capturedBody, err = io.ReadAll(httpRequest.Body)
		if err != nil {
			httpResponse.WriteHeader(http.StatusInternalServerError)
			return
		}
		if strings.Contains(httpRequest.URL.Path, "500") {
			httpResponse.WriteHeader(http.StatusInternalServerError)
			return
		}
		httpResponse.WriteHeader(http.StatusOK)
	}))
	defer testServer.Close()

	broker := NewHTTPBroker(HTTPBrokerConfig{
		Endpoint:    testServer.URL,
		TopicFilter: []string{"test-topic", "test-topic-500"},
	}, "", nil)

	message := &Message{
		Body:          []byte(`{"key": "value"}`),
		ContentType:   "application/json",
		CorrelationID: to.Ptr("correlation-1"),
	}

	t.Run("ok", func(t *testing.T) {
		err := broker.SendMessage(context.Background(), Topic{Name: "test-topic"}, message)
		require.NoError(t, err)
		require.Equal(t, `{"key":"value"}`, string(capturedBody))
		require.Equal(t, "application/json", capturedContentType)
		require.Equal(t, "/test-topic", capturedTopic)
		require.Equal(t, http.MethodPost, capturedHTTPMethod)
		require.Equal(t, "correlation-1", capturedCorrelationID)
	})
	t.Run("non-200 OK response", func(t *testing.T) {
		err := broker.SendMessage(context.Background(), Topic{Name: "test-topic-500"}, message)
		require.EqualError(t, err, "failed to send message over HTTP: received non-OK response: 500")
	})
	t.Run("topic filtered out (not configured)", func(t *testing.T) {
		capturedBody = nil
		err := broker.SendMessage(context.Background(), Topic{Name: "other-topic"}, message)
		require.NoError(t, err)
		require.Empty(t, capturedBody)
	})
	t.Run("no filter configured, with topic prefix", func(t *testing.T) {
		capturedBody = nil
		broker := NewHTTPBroker(HTTPBrokerConfig{Endpoint: testServer.URL}, "acc-", nil)
		err := broker.SendMessage(context.Background(), Topic{Name: "test-topic"}, message)
		require.NoError(t, err)
		require.NotEmpty(t, capturedBody)
		require.Equal(t, "/acc-test-topic", capturedTopic)
	})
	t.Run("underlying broker receives filtered topics too", func(t *testing.T) {
		memory := NewMemoryBroker()
		var received int
		memory.Subscribe(Topic{Name: "other-topic"}, func(_ context.Context, _ Message) error {
			received++
			return nil
		})
		broker := NewHTTPBroker(HTTPBrokerConfig{Endpoint: testServer.URL, TopicFilter: []string{"test-topic"}}, "", memory)

		err := broker.SendMessage(context.Background(), Topic{Name: "other-topic"}, message)

		require.NoError(t, err)
		require.Equal(t, 1, received)
	})
}
