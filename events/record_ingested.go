package events

import (
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/SanteonNL/ehealth-ingest/messaging"
)

var _ Type = RecordIngested{}

// RecordIngested is published for every record that made it through the pipeline.
type RecordIngested struct {
	Entity string `json:"entity_type"`
	// Index is the position of the record in the ingested payload.
	Index int `json:"index"`
	// Data is the normalized, reference-resolved record. It's omitted when the entity is partitioned.
	Data *payload.Value `json:"data,omitempty"`
	// Groups holds the partitioned record, keyed by group name.
	Groups map[string]payload.Value `json:"groups,omitempty"`
}

func (r RecordIngested) Topic() messaging.Topic {
	return RecordIngestedTopic(r.Entity)
}

// RecordIngestedTopic returns the topic RecordIngested events of the given entity type are published to.
func RecordIngestedTopic(entityType string) messaging.Topic {
	return messaging.Topic{Name: "ehealth-" + entityType + "-ingested"}
}

// RecordIngestedTopics returns the topics of all given entity types.
func RecordIngestedTopics(entityTypes []string) []messaging.Topic {
	result := make([]messaging.Topic, len(entityTypes))
	for i, entityType := range entityTypes {
		result[i] = RecordIngestedTopic(entityType)
	}
	return result
}
