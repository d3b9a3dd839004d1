package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/lib/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legalEntitiesPage = `{
	"meta":{"code":200,"url":"/api/legal_entities","type":"list"},
	"data":[{"id":"d290f1ee-6c54-4b01-90e6-d701748f0851","name":"Клініка"}],
	"paging":{"page_number":1,"page_size":50,"total_entries":120,"total_pages":3}
}`

func TestClient_List(t *testing.T) {
	var capturedQuery url.Values
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		capturedQuery = request.URL.Query()
		switch request.URL.Path {
		case "/api/legal_entities":
			_, _ = response.Write([]byte(legalEntitiesPage))
		case "/api/divisions":
			_, _ = response.Write([]byte(`{"data":{"id":"1"}}`))
		default:
			response.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	baseURL := must.ParseURL(server.URL)

	t.Run("ok", func(t *testing.T) {
		client := NewWithHTTPClient(baseURL, server.Client(), 0)

		page, err := client.List(context.Background(), "/api/legal_entities", url.Values{"edrpou": []string{"12345678"}})

		require.NoError(t, err)
		assert.Equal(t, "50", capturedQuery.Get("page_size"))
		assert.Equal(t, "12345678", capturedQuery.Get("edrpou"))
		assert.Equal(t, 1, page.Data.Len())
		assert.Equal(t, Paging{PageNumber: 1, PageSize: 50, TotalEntries: 120, TotalPages: 3}, page.Paging)
		assert.True(t, page.Paging.HasNext())
	})
	t.Run("explicit page size is kept", func(t *testing.T) {
		client := NewWithHTTPClient(baseURL, server.Client(), 100)

		_, err := client.List(context.Background(), "api/legal_entities", url.Values{"page_size": []string{"10"}, "page": []string{"2"}})

		require.NoError(t, err)
		assert.Equal(t, "10", capturedQuery.Get("page_size"))
		assert.Equal(t, "2", capturedQuery.Get("page"))
	})
	t.Run("data is not a list", func(t *testing.T) {
		client := NewWithHTTPClient(baseURL, server.Client(), 0)

		_, err := client.List(context.Background(), "/api/divisions", nil)

		require.EqualError(t, err, "GET /api/divisions: expected data to be an array, got object")
	})
	t.Run("not found without a registry error block", func(t *testing.T) {
		client := NewWithHTTPClient(baseURL, server.Client(), 0)

		_, err := client.List(context.Background(), "/api/unknown", nil)

		var registryErr *Error
		require.True(t, errors.As(err, &registryErr))
		assert.Equal(t, http.StatusNotFound, registryErr.StatusCode)
	})
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if strings.HasSuffix(request.URL.Path, "/forbidden") {
			response.WriteHeader(http.StatusForbidden)
			_, _ = response.Write([]byte(`{"meta":{"code":403},"error":{"type":"forbidden","message":"Your scope does not allow to access this resource."}}`))
			return
		}
		_, _ = response.Write([]byte(`{"meta":{"code":200},"data":{"id":"1","name":"Division"}}`))
	}))
	defer server.Close()
	baseURL := must.ParseURL(server.URL)
	client := NewWithHTTPClient(baseURL, server.Client(), 0)

	t.Run("ok", func(t *testing.T) {
		entity, err := client.Get(context.Background(), "/api/divisions/1")

		require.NoError(t, err)
		name, _ := entity.Lookup("name")
		assert.Equal(t, "Division", name.Text())
	})
	t.Run("registry error", func(t *testing.T) {
		_, err := client.Get(context.Background(), "/api/divisions/forbidden")

		require.EqualError(t, err, "registry responded with status 403: forbidden: Your scope does not allow to access this resource.")
	})
}

func TestClient_PageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, (&Client{}).PageSize())
	assert.Equal(t, MaxPageSize, (&Client{pageSize: 1000}).PageSize())
	assert.Equal(t, 20, (&Client{pageSize: 20}).PageSize())
}

func TestNew(t *testing.T) {
	var capturedAuthorization string
	server := httptest.NewServer(http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		if request.URL.Path == "/oauth/token" {
			response.Header().Set("Content-Type", "application/json")
			_, _ = response.Write([]byte(`{"access_token":"secret-token","token_type":"Bearer","expires_in":3600}`))
			return
		}
		capturedAuthorization = request.Header.Get("Authorization")
		_, _ = response.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()
	config := DefaultConfig()
	config.URL = server.URL
	config.ClientID = "client"
	config.ClientSecret = "secret"
	config.TokenURL = server.URL + "/oauth/token"

	client, err := New(context.Background(), config)
	require.NoError(t, err)
	_, err = client.List(context.Background(), "/api/employees", nil)

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", capturedAuthorization)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate(true))
	})
	t.Run("strict mode requires client credentials", func(t *testing.T) {
		c := DefaultConfig()
		c.URL = "https://api.ehealth.gov.ua"
		require.EqualError(t, c.Validate(true), "client credentials are required in strict mode")
		require.NoError(t, c.Validate(false))
	})
	t.Run("page size out of bounds", func(t *testing.T) {
		c := DefaultConfig()
		c.URL = "https://api.ehealth.gov.ua"
		c.PageSize = 501
		require.EqualError(t, c.Validate(false), "page size must be between 1 and 500")
	})
	t.Run("token url missing", func(t *testing.T) {
		c := DefaultConfig()
		c.URL = "https://api.ehealth.gov.ua"
		c.ClientID = "client"
		require.EqualError(t, c.Validate(false), "token url is required when client credentials are configured")
	})
}
