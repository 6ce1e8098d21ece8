package entities

import (
	"testing"
	"time"

	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"

	"github.com/stretchr/testify/require"
)

func withCounts(t *testing.T, counts ...uint64) Election {
	t.Helper()
	names := make([]string, len(counts))
	for i := range names {
		names[i] = string(rune('A' + i))
	}
	election := newTestElection(t, names...)
	for i, count := range counts {
		election.Candidates[i].VoteCount = count
	}
	return election
}

func TestSelectWinnerTieBreaksOnLowestIndex(t *testing.T) {
	tests := []struct {
		counts []uint64
		want   WinnerIndex
	}{
		{counts: []uint64{5, 5, 3}, want: WinnerAt(0)},
		{counts: []uint64{1, 4, 4}, want: WinnerAt(1)},
		{counts: []uint64{0, 0, 2}, want: WinnerAt(2)},
		{counts: []uint64{0, 0, 0}, want: UnsetWinner()},
		{counts: nil, want: UnsetWinner()},
	}
	for _, tt := range tests {
		candidates := make([]Candidate, len(tt.counts))
		for i, count := range tt.counts {
			candidates[i].VoteCount = count
		}
		if got := SelectWinner(candidates); got != tt.want {
			t.Fatalf("counts %v: expected %s, got %s", tt.counts, tt.want, got)
		}
	}
}

func TestTallyRejectsBeforeEnd(t *testing.T) {
	election := withCounts(t, 1, 2)

	_, err := election.Tally(election.EndTime)
	require.ErrorIs(t, err, domainerrors.ErrTallyNotAllowedYet)

	_, err = election.Tally(election.StartTime.Add(time.Minute))
	require.ErrorIs(t, err, domainerrors.ErrTallyNotAllowedYet)
	require.False(t, election.IsFinalized)
}

func TestTallyFinalizesWithWinner(t *testing.T) {
	election := withCounts(t, 5, 5, 3)
	now := election.EndTime.Add(time.Second)

	outcome, err := election.Tally(now)
	require.NoError(t, err)
	require.Equal(t, WinnerAt(0), outcome.Winner)
	require.NotNil(t, outcome.Event)
	require.Equal(t, ElectionFinalized{
		ElectionID:      "election-1",
		WinnerIndex:     0,
		WinnerName:      "A",
		WinnerVoteCount: 5,
		Timestamp:       now,
	}, *outcome.Event)
	require.True(t, election.IsFinalized)
	require.Equal(t, OutcomeWinner, election.Outcome())
}

func TestTallyWithoutVotesFinalizesSilently(t *testing.T) {
	election := withCounts(t, 0, 0, 0)

	outcome, err := election.Tally(election.EndTime.Add(time.Second))
	require.NoError(t, err)
	require.Nil(t, outcome.Event)
	require.False(t, outcome.Winner.IsSet())
	require.True(t, election.IsFinalized)
	require.Equal(t, OutcomeNoWinner, election.Outcome())
}

func TestTallyTwiceIsRejected(t *testing.T) {
	election := withCounts(t, 1, 3)
	now := election.EndTime.Add(time.Second)

	_, err := election.Tally(now)
	require.NoError(t, err)
	election.Candidates[0].VoteCount = 10

	_, err = election.Tally(now.Add(time.Hour))
	require.ErrorIs(t, err, domainerrors.ErrElectionAlreadyFinalized)
	require.Equal(t, WinnerAt(1), election.Winner)
}
