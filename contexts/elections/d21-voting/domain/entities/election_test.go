package entities

import (
	"errors"
	"strings"
	"testing"
	"time"

	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"

	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestElection(t *testing.T, names ...string) Election {
	t.Helper()
	election, err := NewElection(NewElectionInput{
		ElectionID:     "election-1",
		Authority:      "authority-1",
		StartTime:      testStart,
		EndTime:        testStart.Add(time.Hour),
		CandidateNames: names,
		CandidateCount: len(names),
		CreatedAt:      testStart.Add(-time.Hour),
	})
	require.NoError(t, err)
	return election
}

func TestNewElectionVotesPerVoter(t *testing.T) {
	for count := 0; count <= 10; count++ {
		names := make([]string, count)
		for i := range names {
			names[i] = "candidate"
		}
		election := newTestElection(t, names...)
		want := VotesPerVoterSmallField
		if count >= 7 {
			want = VotesPerVoterLargeField
		}
		if election.VotesPerVoter != want {
			t.Fatalf("count %d: expected %d votes per voter, got %d", count, want, election.VotesPerVoter)
		}
	}
}

func TestNewElectionStartsOpenWithZeroCounts(t *testing.T) {
	election := newTestElection(t, "Alice", "Bob")

	require.False(t, election.IsFinalized)
	require.False(t, election.Winner.IsSet())
	require.Equal(t, OutcomeOpen, election.Outcome())
	require.Equal(t, uint64(0), election.TotalVotes())
	require.Equal(t, []Candidate{{Name: "Alice"}, {Name: "Bob"}}, election.Candidates)
}

func TestNewElectionRejectsCountMismatch(t *testing.T) {
	_, err := NewElection(NewElectionInput{
		ElectionID:     "election-1",
		Authority:      "authority-1",
		CandidateNames: []string{"Alice", "Bob"},
		CandidateCount: 3,
	})
	if !errors.Is(err, domainerrors.ErrCandidateCountMismatch) {
		t.Fatalf("expected count mismatch, got %v", err)
	}

	_, err = NewElection(NewElectionInput{CandidateNames: make([]string, 256), CandidateCount: 256})
	require.ErrorIs(t, err, domainerrors.ErrCandidateCountMismatch)
}

func TestNewElectionRejectsLongNames(t *testing.T) {
	_, err := NewElection(NewElectionInput{
		CandidateNames: []string{"Alice", strings.Repeat("x", MaxCandidateNameLen+1)},
		CandidateCount: 2,
	})
	require.ErrorIs(t, err, domainerrors.ErrCandidateNameTooLong)

	// 25 two-byte runes sit exactly on the byte cap.
	election, err := NewElection(NewElectionInput{
		CandidateNames: []string{strings.Repeat("é", 25)},
		CandidateCount: 1,
	})
	require.NoError(t, err)
	require.Len(t, election.Candidates, 1)

	_, err = NewElection(NewElectionInput{
		CandidateNames: []string{strings.Repeat("é", 26)},
		CandidateCount: 1,
	})
	require.ErrorIs(t, err, domainerrors.ErrCandidateNameTooLong)
}

func TestNewElectionKeepsInvertedWindow(t *testing.T) {
	election, err := NewElection(NewElectionInput{
		StartTime:      testStart,
		EndTime:        testStart.Add(-time.Minute),
		CandidateNames: []string{"Alice"},
		CandidateCount: 1,
	})
	require.NoError(t, err)

	var ballot Ballot
	_, err = election.CastVotes(&ballot, "voter", []int{0}, testStart.Add(time.Second))
	require.ErrorIs(t, err, domainerrors.ErrElectionAlreadyEnded)
}

func TestCloneDoesNotShareCandidates(t *testing.T) {
	election := newTestElection(t, "Alice", "Bob")
	clone := election.Clone()
	clone.Candidates[0].VoteCount = 9

	require.Equal(t, uint64(0), election.Candidates[0].VoteCount)
}

func TestValidIdentity(t *testing.T) {
	require.False(t, ValidIdentity(""))
	require.True(t, ValidIdentity("voter-1"))
	require.True(t, ValidIdentity(strings.Repeat("a", MaxIdentityLen)))
	require.False(t, ValidIdentity(strings.Repeat("a", MaxIdentityLen+1)))
}

func TestWinnerIndex(t *testing.T) {
	var zero WinnerIndex
	_, ok := zero.Get()
	require.False(t, ok)
	require.Equal(t, "unset", zero.String())

	index, ok := WinnerAt(0).Get()
	require.True(t, ok)
	require.Equal(t, 0, index)
	require.Equal(t, "winner(0)", WinnerAt(0).String())
}

func TestRecordSizes(t *testing.T) {
	require.Equal(t, 8+65+26+1+1+2+4+26, ElectionRecordSize(0))
	require.Equal(t, ElectionRecordSize(0)+3*62, ElectionRecordSize(3))
	require.Equal(t, 8+130+1+4+3+13, BallotRecordSize())
}
