package otel

// Common attribute keys used across the ingestion service
const (
	OperationName = "operation.name"
	ErrorType     = "error.type"

	// HTTP attributes
	HTTPMethod     = "http.method"
	HTTPURL        = "http.url"
	HTTPStatusCode = "http.status_code"
	HTTPRoute      = "http.route"

	// Ingestion attributes
	IngestEntity       = "ingest.entity"
	IngestList         = "ingest.list"
	IngestPolicy       = "ingest.policy"
	IngestStage        = "ingest.stage"
	IngestRecordCount  = "ingest.record_count"
	IngestFailureCount = "ingest.failure_count"

	// Lookup attributes
	LookupTarget        = "lookup.target"
	LookupBackend       = "lookup.backend"
	LookupIDCount       = "lookup.id_count"
	LookupResolvedCount = "lookup.resolved_count"

	// Registry attributes
	RegistryPath     = "registry.path"
	RegistryPage     = "registry.page"
	RegistryPageSize = "registry.page_size"

	// Dictionary attributes
	DictionaryName     = "dictionary.name"
	DictionaryCacheHit = "dictionary.cache_hit"

	// Messaging attributes
	MessagingTopic = "messaging.topic"
)
