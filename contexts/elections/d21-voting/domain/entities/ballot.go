package entities

import "time"

// Ballot tracks how much of the vote allowance a single voter has spent in a
// single election. It is created lazily on the voter's first accepted batch.
type Ballot struct {
	VoterID        string
	ElectionID     string
	VotesCastCount uint8
	VotedFor       []int
	UpdatedAt      time.Time
}

// IsInitialized reports whether the ballot has recorded a first vote.
func (b Ballot) IsInitialized() bool {
	return b.VoterID != "" || b.VotesCastCount > 0
}

func (b Ballot) HasVotedFor(index int) bool {
	for _, used := range b.VotedFor {
		if used == index {
			return true
		}
	}
	return false
}

func (b Ballot) RemainingVotes(votesPerVoter uint8) uint8 {
	if b.VotesCastCount >= votesPerVoter {
		return 0
	}
	return votesPerVoter - b.VotesCastCount
}

func (b Ballot) Clone() Ballot {
	out := b
	out.VotedFor = append([]int(nil), b.VotedFor...)
	return out
}
