package ports

import (
	"context"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	"d21vote/internal/shared/events"
	"d21vote/internal/shared/outbox"
)

type EventEnvelope = events.Envelope

const (
	TopicVoteCasted        = events.TopicVoteCasted
	TopicElectionFinalized = events.TopicElectionFinalized
	SchemaVersionV1        = events.SchemaVersionV1
)

type OutboxMessage = outbox.Message

// VoteMutation validates and applies one batch against the stored election
// and ballot. Envelopes it returns are written to the outbox in the same unit
// of work. Returning an error discards every change.
type VoteMutation func(election *entities.Election, ballot *entities.Ballot) ([]EventEnvelope, error)

// TallyMutation is the finalization counterpart of VoteMutation.
type TallyMutation func(election *entities.Election) ([]EventEnvelope, error)

// ElectionRepository is the keyed store for elections and ballots. Ballots are
// addressed by the (election, voter) pair. ApplyVote and ApplyTally are atomic
// read-modify-write operations serialized per election.
//
// A non-nil idempotency record passed to CreateElection or ApplyVote is stored
// in the same unit of work as the change. A live record under the same key for
// a different request fails the call with ErrIdempotencyConflict and nothing
// is written.
type ElectionRepository interface {
	CreateElection(ctx context.Context, election entities.Election, idempotency *IdempotencyRecord) error
	GetElection(ctx context.Context, electionID string) (entities.Election, error)
	ListElections(ctx context.Context) ([]entities.Election, error)
	GetBallot(ctx context.Context, electionID string, voterID string) (entities.Ballot, bool, error)
	ApplyVote(
		ctx context.Context,
		electionID string,
		voterID string,
		idempotency *IdempotencyRecord,
		mutate VoteMutation,
	) (entities.Ballot, error)
	ApplyTally(ctx context.Context, electionID string, mutate TallyMutation) (entities.Election, error)
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	ResourceID  string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}
