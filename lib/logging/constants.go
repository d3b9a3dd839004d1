package logging

// Common log field keys used throughout the application
const (
	FieldCount      = "count"
	FieldEndpoint   = "endpoint"
	FieldEntity     = "entity_type"
	FieldError      = "error"
	FieldExternalID = "external_id"
	FieldFailures   = "failures"
	FieldIndex      = "index"
	FieldPath       = "path"
	FieldPolicy     = "policy"
	FieldStage      = "stage"
	FieldTarget     = "target"
	FieldTopic      = "topic"
	FieldUrl        = "url"
	FieldSpanID     = "span_id"
	FieldTraceID    = "trace_id"
)
