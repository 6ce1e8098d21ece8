package outbox

import "time"

// Message is an outbox row persisted in the same unit of work as the state
// change it describes. The relay reads pending rows in creation order and
// marks them published only after the bus accepts them.
type Message struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}
