package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"d21vote/contexts/elections/d21-voting/adapters/memory"
	"d21vote/contexts/elections/d21-voting/application/commands"
	"d21vote/contexts/elections/d21-voting/application/workers"
	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

type recordingPublisher struct {
	failOn    int
	calls     int
	published []ports.EventEnvelope
	topics    []string
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	p.calls++
	if p.failOn > 0 && p.calls == p.failOn {
		return errors.New("bus unavailable")
	}
	p.topics = append(p.topics, topic)
	p.published = append(p.published, event)
	return nil
}

func seedVotes(t *testing.T, store *memory.Store, voters ...string) string {
	t.Helper()
	start := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start.Add(-time.Minute)}
	uc := commands.ElectionUseCase{
		Elections:   store,
		Idempotency: store,
		Clock:       clock,
		IDGen:       store,
	}
	created, err := uc.CreateElection(context.Background(), commands.CreateElectionCommand{
		AuthorityID:    "authority-1",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		CandidateNames: []string{"Alice", "Bob"},
		CandidateCount: 2,
	})
	require.NoError(t, err)
	clock.now = start.Add(time.Minute)
	for _, voter := range voters {
		_, err := uc.CastVote(context.Background(), commands.CastVoteCommand{
			ElectionID:       created.Election.ElectionID,
			VoterID:          voter,
			CandidateIndices: []int{0},
		})
		require.NoError(t, err)
	}
	return created.Election.ElectionID
}

func TestOutboxRelayPublishesInCreationOrder(t *testing.T) {
	store := memory.NewStore(nil)
	electionID := seedVotes(t, store, "voter-1", "voter-2", "voter-3")
	publisher := &recordingPublisher{}
	relay := workers.OutboxRelay{
		Outbox:    store,
		Publisher: publisher,
		Clock:     fixedClock{now: time.Now().UTC()},
	}

	count, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, []string{ports.TopicVoteCasted, ports.TopicVoteCasted, ports.TopicVoteCasted}, publisher.topics)

	voters := make([]string, 0, len(publisher.published))
	for _, event := range publisher.published {
		require.Equal(t, electionID, event.PartitionKey)
		var payload commands.VoteCastedPayload
		require.NoError(t, json.Unmarshal(event.Data, &payload))
		voters = append(voters, payload.Voter)
	}
	require.Equal(t, []string{"voter-1", "voter-2", "voter-3"}, voters)

	count, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestOutboxRelayStopsOnFirstFailure(t *testing.T) {
	store := memory.NewStore(nil)
	seedVotes(t, store, "voter-1", "voter-2", "voter-3")
	publisher := &recordingPublisher{failOn: 2}
	relay := workers.OutboxRelay{Outbox: store, Publisher: publisher}

	count, err := relay.RunOnce(context.Background())
	require.EqualError(t, err, "bus unavailable")
	require.Equal(t, 1, count)

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// The failed row is retried first on the next cycle.
	count, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, publisher.published, 3)
}

func TestOutboxRelayHonoursBatchSize(t *testing.T) {
	store := memory.NewStore(nil)
	seedVotes(t, store, "voter-1", "voter-2", "voter-3")
	relay := workers.OutboxRelay{Outbox: store, Publisher: &recordingPublisher{}, BatchSize: 2}

	count, err := relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, count)
	count, err = relay.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
