package registry

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Config holds the configuration for the registry API client.
type Config struct {
	// URL is the base URL of the registry API, e.g. https://api.ehealth.gov.ua.
	URL string `koanf:"url"`
	// ClientID and ClientSecret are the OAuth2 client credentials. Requests are sent unauthenticated when not set.
	ClientID     string   `koanf:"clientid"`
	ClientSecret string   `koanf:"clientsecret"`
	TokenURL     string   `koanf:"tokenurl"`
	Scopes       []string `koanf:"scopes"`
	// PageSize is the number of entries requested per page of a list endpoint.
	PageSize int           `koanf:"pagesize"`
	Timeout  time.Duration `koanf:"timeout"`
}

func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		Timeout:  30 * time.Second,
	}
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

func (c Config) Validate(strictMode bool) error {
	if !c.Enabled() {
		return nil
	}
	if _, err := url.Parse(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if c.PageSize < 1 || c.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be between 1 and %d", MaxPageSize)
	}
	if c.ClientID != "" && c.TokenURL == "" {
		return errors.New("token url is required when client credentials are configured")
	}
	if strictMode && c.ClientID == "" {
		return errors.New("client credentials are required in strict mode")
	}
	return nil
}
