package entities

import (
	"math"
	"time"

	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
)

// VoteCasted is emitted once per accepted batch.
type VoteCasted struct {
	VoterID            string
	ElectionID         string
	CandidatesVotedFor []int
	Timestamp          time.Time
}

// CastVotes runs the vote-casting pipeline against e and ballot. Every check
// runs before either record is touched, so a rejected batch leaves both
// exactly as they were.
func (e *Election) CastVotes(ballot *Ballot, voterID string, candidateIndices []int, now time.Time) (VoteCasted, error) {
	if !now.After(e.StartTime) {
		return VoteCasted{}, domainerrors.ErrElectionNotStarted
	}
	if !now.Before(e.EndTime) {
		return VoteCasted{}, domainerrors.ErrElectionAlreadyEnded
	}
	if e.IsFinalized {
		return VoteCasted{}, domainerrors.ErrElectionAlreadyFinalized
	}
	if len(candidateIndices) == 0 {
		return VoteCasted{}, domainerrors.ErrInvalidCandidateIndex
	}

	seen := make(map[int]struct{}, len(candidateIndices))
	for _, index := range candidateIndices {
		if _, ok := seen[index]; ok {
			return VoteCasted{}, domainerrors.ErrDuplicateVoteInSingleTx
		}
		seen[index] = struct{}{}
	}

	nextCount, ok := addVoteCount(ballot.VotesCastCount, len(candidateIndices))
	if !ok || nextCount > e.VotesPerVoter {
		return VoteCasted{}, domainerrors.ErrVotesExhausted
	}

	for _, index := range candidateIndices {
		if index < 0 || index >= len(e.Candidates) {
			return VoteCasted{}, domainerrors.ErrInvalidCandidateIndex
		}
		if ballot.HasVotedFor(index) {
			return VoteCasted{}, domainerrors.ErrAlreadyVotedForCandidate
		}
	}

	if !ballot.IsInitialized() {
		ballot.VoterID = voterID
		ballot.ElectionID = e.ElectionID
	}
	for _, index := range candidateIndices {
		e.Candidates[index].VoteCount++
		ballot.VotedFor = append(ballot.VotedFor, index)
	}
	ballot.VotesCastCount = nextCount
	ballot.UpdatedAt = now
	e.UpdatedAt = now

	return VoteCasted{
		VoterID:            ballot.VoterID,
		ElectionID:         e.ElectionID,
		CandidatesVotedFor: append([]int(nil), candidateIndices...),
		Timestamp:          now,
	}, nil
}

// addVoteCount adds a batch length to the single-byte running counter and
// reports false when the sum cannot be represented.
func addVoteCount(current uint8, batch int) (uint8, bool) {
	if batch < 0 || batch > math.MaxUint8-int(current) {
		return 0, false
	}
	return current + uint8(batch), true
}
