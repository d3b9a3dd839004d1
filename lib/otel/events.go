package otel

// Span event names
const (
	RequestReadingBody       = "request.reading_body"
	RequestReadingBodyFailed = "request.reading_body.failed"

	StageNormalized  = "ingest.normalized"
	StageValidated   = "ingest.validated"
	StageResolved    = "ingest.resolved"
	StagePartitioned = "ingest.partitioned"

	RecordsPruned  = "ingest.records.pruned"
	RecordsSkipped = "ingest.records.skipped"
)
