// Package dictionary answers membership questions about the registry's dictionaries (reference data such as
// PHONE_TYPE or DOCUMENT_TYPE).
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/SanteonNL/ehealth-ingest/lib/otel"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/schema"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPath = "/api/dictionaries"

// ErrUnknownDictionary is returned when a dictionary doesn't exist (or isn't active) in the registry.
var ErrUnknownDictionary = errors.New("unknown dictionary")

// Config holds the configuration of the dictionary provider.
type Config struct {
	// TTL is how long dictionaries fetched from the registry are cached.
	TTL  time.Duration `koanf:"ttl"`
	Path string        `koanf:"path"`
	// Static holds dictionaries that are used instead of the registry's, specified as NAME=VALUE1|VALUE2.
	Static []string `koanf:"static"`
}

func DefaultConfig() Config {
	return Config{
		TTL:  time.Hour,
		Path: DefaultPath,
	}
}

func (c Config) Validate() error {
	if c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}
	_, err := ParseStatic(c.Static)
	return err
}

// Source fetches a single registry resource. It's implemented by registry.Client.
type Source interface {
	Get(ctx context.Context, path string) (payload.Value, error)
}

var _ schema.DictionaryProvider = &Cache{}

// Cache is a DictionaryProvider backed by the registry. All dictionaries are fetched in one request and kept
// until the TTL expires.
type Cache struct {
	source Source
	path   string
	cache  *ttlcache.Cache[string, map[string]bool]
	// fetchMux makes sure concurrent misses result in a single request
	fetchMux sync.Mutex
}

func NewCache(source Source, config Config) *Cache {
	cache := ttlcache.New[string, map[string]bool](
		ttlcache.WithTTL[string, map[string]bool](config.TTL),
		ttlcache.WithDisableTouchOnHit[string, map[string]bool](),
	)
	go cache.Start()
	path := config.Path
	if path == "" {
		path = DefaultPath
	}
	return &Cache{
		source: source,
		path:   path,
		cache:  cache,
	}
}

func (c *Cache) Contains(ctx context.Context, dictionary string, value string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String(otel.DictionaryName, dictionary))
	if item := c.cache.Get(dictionary); item != nil {
		span.SetAttributes(attribute.Bool(otel.DictionaryCacheHit, true))
		if item.Value() == nil {
			return false, fmt.Errorf("%w: %s", ErrUnknownDictionary, dictionary)
		}
		return item.Value()[value], nil
	}
	span.SetAttributes(attribute.Bool(otel.DictionaryCacheHit, false))
	values, err := c.load(ctx, dictionary)
	if err != nil {
		return false, err
	}
	return values[value], nil
}

func (c *Cache) load(ctx context.Context, dictionary string) (map[string]bool, error) {
	c.fetchMux.Lock()
	defer c.fetchMux.Unlock()
	// another caller might have loaded it while waiting
	if item := c.cache.Get(dictionary); item != nil {
		if item.Value() == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDictionary, dictionary)
		}
		return item.Value(), nil
	}
	data, err := c.source.Get(ctx, c.path)
	if err != nil {
		return nil, fmt.Errorf("fetch dictionaries: %w", err)
	}
	dictionaries, err := parse(data)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Msgf("Fetched %d dictionaries from the registry", len(dictionaries))
	for name, values := range dictionaries {
		c.cache.Set(name, values, ttlcache.DefaultTTL)
	}
	values, ok := dictionaries[dictionary]
	if !ok {
		// remember the miss, so unknown names don't trigger a request for every value
		c.cache.Set(dictionary, nil, ttlcache.DefaultTTL)
		return nil, fmt.Errorf("%w: %s", ErrUnknownDictionary, dictionary)
	}
	return values, nil
}

// Close stops the expiration of cached dictionaries.
func (c *Cache) Close() {
	c.cache.Stop()
}

// parse reads the dictionaries endpoint's data: [{"name": "PHONE_TYPE", "is_active": true, "values": {"MOBILE": "..."}}].
// Hierarchical dictionaries nest values under child_values; those are included too.
func parse(data payload.Value) (map[string]map[string]bool, error) {
	if !data.IsArray() {
		return nil, fmt.Errorf("dictionaries: expected an array, got %s", data.Kind())
	}
	result := map[string]map[string]bool{}
	for i, entry := range data.Items() {
		name, ok := entry.Lookup("name")
		if !ok || name.Kind() != payload.KindString {
			return nil, fmt.Errorf("dictionaries: entry %d has no name", i)
		}
		if active, ok := entry.Lookup("is_active"); ok {
			if isActive, _ := active.AsBool(); !isActive {
				continue
			}
		}
		values := map[string]bool{}
		if v, ok := entry.Lookup("values"); ok {
			collectValues(v, values)
		}
		result[name.Text()] = values
	}
	return result, nil
}

func collectValues(node payload.Value, target map[string]bool) {
	for _, member := range node.Members() {
		target[member.Key] = true
		if children, ok := member.Value.Lookup("child_values"); ok {
			collectValues(children, target)
		}
	}
}

var _ schema.DictionaryProvider = Static{}

// Static is a DictionaryProvider with fixed contents.
type Static map[string]map[string]bool

// ParseStatic parses dictionaries specified as NAME=VALUE1|VALUE2.
func ParseStatic(entries []string) (Static, error) {
	result := Static{}
	for _, entry := range entries {
		name, values, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid dictionary %q, expected NAME=VALUE1|VALUE2", entry)
		}
		if result[name] == nil {
			result[name] = map[string]bool{}
		}
		for _, value := range strings.Split(values, "|") {
			if value = strings.TrimSpace(value); value != "" {
				result[name][value] = true
			}
		}
	}
	return result, nil
}

func (s Static) Contains(_ context.Context, dictionary string, value string) (bool, error) {
	values, ok := s[dictionary]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownDictionary, dictionary)
	}
	return values[value], nil
}
