package events

import (
	"encoding/json"
	"time"
)

const (
	TopicVoteCasted        = "vote.casted"
	TopicElectionFinalized = "election.finalized"

	SchemaVersionV1 = 1
)

// Envelope is the versioned event shape written to the outbox and published
// on the bus. Data holds the event-specific JSON payload.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}
