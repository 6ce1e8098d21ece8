package d21voting_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	d21voting "d21vote/contexts/elections/d21-voting"
	"d21vote/contexts/elections/d21-voting/adapters/memory"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"
	httptransport "d21vote/contexts/elections/d21-voting/transport/http"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

type capturePublisher struct {
	events []ports.EventEnvelope
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event ports.EventEnvelope) error {
	p.events = append(p.events, event)
	return nil
}

func newScenarioModule(t *testing.T, clock *manualClock) (d21voting.Module, *capturePublisher) {
	t.Helper()
	store := memory.NewStore(nil)
	publisher := &capturePublisher{}
	module := d21voting.NewModule(d21voting.Dependencies{
		Elections:       store,
		Idempotency:     store,
		Outbox:          store,
		Publisher:       publisher,
		Clock:           clock,
		IDGen:           store,
		OutboxBatchSize: 1000,
		ResultCacheSize: 8,
	})
	module.Store = store
	return module, publisher
}

func TestVotesPerVoterFollowsCandidateCount(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)}
	module, _ := newScenarioModule(t, clock)
	for count := 1; count <= 12; count++ {
		names := make([]string, count)
		for i := range names {
			names[i] = fmt.Sprintf("candidate-%d", i)
		}
		election, err := module.Handler.CreateElectionHandler(context.Background(), "authority-1", "", httptransport.CreateElectionRequest{
			StartTime:      clock.now.Add(time.Hour),
			EndTime:        clock.now.Add(2 * time.Hour),
			CandidateNames: names,
			CandidateCount: count,
		})
		if err != nil {
			t.Fatalf("create election with %d candidates: %v", count, err)
		}
		want := 2
		if count >= 7 {
			want = 3
		}
		if election.VotesPerVoter != want {
			t.Fatalf("%d candidates: expected %d votes per voter, got %d", count, want, election.VotesPerVoter)
		}
	}
}

// Random batches from many voters must keep every ballot and tally invariant,
// and the final tally must agree with the standings.
func TestRandomVotingKeepsInvariants(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start.Add(-time.Minute)}
	module, publisher := newScenarioModule(t, clock)

	names := []string{"Alice", "Bob", "Carol", "Dave", "Eve", "Frank", "Grace", "Heidi"}
	election, err := module.Handler.CreateElectionHandler(ctx, "authority-1", "", httptransport.CreateElectionRequest{
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		CandidateNames: names,
		CandidateCount: len(names),
	})
	if err != nil {
		t.Fatalf("create election: %v", err)
	}
	clock.now = start.Add(time.Second)

	rng := rand.New(rand.NewSource(21))
	accepted := 0
	for attempt := 0; attempt < 400; attempt++ {
		voterID := fmt.Sprintf("voter-%d", rng.Intn(40))
		batch := make([]int, 1+rng.Intn(3))
		for i := range batch {
			batch[i] = rng.Intn(len(names) + 1)
		}
		resp, err := module.Handler.CastVoteHandler(ctx, election.ElectionID, voterID, "", httptransport.CastVoteRequest{CandidateIndices: batch})
		if err != nil {
			if !isVoteRejection(err) {
				t.Fatalf("unexpected error for %v: %v", batch, err)
			}
			continue
		}
		accepted += len(batch)

		ballot := resp.Ballot
		if ballot.VotesCastCount != len(ballot.VotedFor) || ballot.VotesCastCount > election.VotesPerVoter {
			t.Fatalf("ballot invariant broken: %+v", ballot)
		}
		seen := make(map[int]bool, len(ballot.VotedFor))
		for _, index := range ballot.VotedFor {
			if seen[index] {
				t.Fatalf("candidate %d recorded twice on %+v", index, ballot)
			}
			seen[index] = true
		}
	}
	if accepted == 0 {
		t.Fatal("expected some accepted votes")
	}

	standings, err := module.Handler.StandingsHandler(ctx, election.ElectionID)
	if err != nil {
		t.Fatalf("standings: %v", err)
	}
	if standings.TotalVotes != uint64(accepted) {
		t.Fatalf("expected %d recorded votes, got %d", accepted, standings.TotalVotes)
	}

	clock.now = start.Add(time.Hour + time.Second)
	tally, err := module.Handler.TallyHandler(ctx, election.ElectionID, "authority-1")
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if tally.WinnerIndex == nil || *tally.WinnerIndex != standings.Items[0].CandidateIndex {
		t.Fatalf("winner %v disagrees with standings leader %d", tally.WinnerIndex, standings.Items[0].CandidateIndex)
	}

	_, err = module.Handler.TallyHandler(ctx, election.ElectionID, "authority-1")
	if !errors.Is(err, domainerrors.ErrElectionAlreadyFinalized) {
		t.Fatalf("expected ErrElectionAlreadyFinalized, got %v", err)
	}
	after, err := module.Handler.GetElectionHandler(ctx, election.ElectionID)
	if err != nil {
		t.Fatalf("get election: %v", err)
	}
	if after.WinnerIndex == nil || *after.WinnerIndex != *tally.WinnerIndex || after.Outcome != string(entities.OutcomeWinner) {
		t.Fatalf("second tally changed the result: %+v", after)
	}

	published, err := module.Relay.RunOnce(ctx)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	if published != len(publisher.events) {
		t.Fatalf("relay reported %d, publisher saw %d", published, len(publisher.events))
	}
	last := publisher.events[len(publisher.events)-1]
	if last.EventType != ports.TopicElectionFinalized {
		t.Fatalf("expected the finalized event last, got %s", last.EventType)
	}
}

func TestBoundaryTimestampsAreExclusive(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	clock := &manualClock{now: start.Add(-time.Hour)}
	module, _ := newScenarioModule(t, clock)
	election, err := module.Handler.CreateElectionHandler(ctx, "authority-1", "", httptransport.CreateElectionRequest{
		StartTime:      start,
		EndTime:        end,
		CandidateNames: []string{"Alice", "Bob"},
		CandidateCount: 2,
	})
	if err != nil {
		t.Fatalf("create election: %v", err)
	}

	tests := []struct {
		at   time.Time
		want error
	}{
		{at: start.Add(-time.Nanosecond), want: domainerrors.ErrElectionNotStarted},
		{at: start, want: domainerrors.ErrElectionNotStarted},
		{at: end, want: domainerrors.ErrElectionAlreadyEnded},
		{at: end.Add(time.Nanosecond), want: domainerrors.ErrElectionAlreadyEnded},
	}
	for _, tt := range tests {
		clock.now = tt.at
		_, err := module.Handler.CastVoteHandler(ctx, election.ElectionID, "voter-1", "", httptransport.CastVoteRequest{CandidateIndices: []int{0}})
		if !errors.Is(err, tt.want) {
			t.Fatalf("at %s: expected %v, got %v", tt.at, tt.want, err)
		}
	}

	clock.now = start.Add(time.Nanosecond)
	if _, err := module.Handler.CastVoteHandler(ctx, election.ElectionID, "voter-1", "", httptransport.CastVoteRequest{CandidateIndices: []int{0}}); err != nil {
		t.Fatalf("vote just after start: %v", err)
	}
}

func TestPartialAllowanceAcceptsExactlyOneNewCandidate(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	clock := &manualClock{now: start.Add(-time.Hour)}
	module, _ := newScenarioModule(t, clock)
	election, err := module.Handler.CreateElectionHandler(ctx, "authority-1", "", httptransport.CreateElectionRequest{
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		CandidateNames: []string{"Alice", "Bob", "Carol"},
		CandidateCount: 3,
	})
	if err != nil {
		t.Fatalf("create election: %v", err)
	}
	clock.now = start.Add(time.Minute)

	cast := func(indices ...int) error {
		_, err := module.Handler.CastVoteHandler(ctx, election.ElectionID, "voter-1", "", httptransport.CastVoteRequest{CandidateIndices: indices})
		return err
	}
	if err := cast(0); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if err := cast(1, 2); !errors.Is(err, domainerrors.ErrVotesExhausted) {
		t.Fatalf("expected ErrVotesExhausted, got %v", err)
	}
	if err := cast(0); !errors.Is(err, domainerrors.ErrAlreadyVotedForCandidate) {
		t.Fatalf("expected ErrAlreadyVotedForCandidate, got %v", err)
	}
	if err := cast(2); err != nil {
		t.Fatalf("second vote: %v", err)
	}
	if err := cast(1); !errors.Is(err, domainerrors.ErrVotesExhausted) {
		t.Fatalf("expected ErrVotesExhausted after allowance used, got %v", err)
	}
}

func isVoteRejection(err error) bool {
	for _, target := range []error{
		domainerrors.ErrVotesExhausted,
		domainerrors.ErrAlreadyVotedForCandidate,
		domainerrors.ErrDuplicateVoteInSingleTx,
		domainerrors.ErrInvalidCandidateIndex,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
