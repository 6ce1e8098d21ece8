package entities

import (
	"time"

	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
)

const (
	// MaxCandidateNameLen caps a candidate name in UTF-8 bytes.
	MaxCandidateNameLen = 50
	// MaxCandidates is the largest candidate list a single election can hold;
	// candidate indices and counts travel as single bytes.
	MaxCandidates = 255
	// MaxIdentityLen caps authority, voter and election identifiers in bytes.
	MaxIdentityLen = 64

	// LargeFieldThreshold is the candidate count from which voters get the
	// larger allowance.
	LargeFieldThreshold = 7

	VotesPerVoterSmallField uint8 = 2
	VotesPerVoterLargeField uint8 = 3
	MaxVotesPerVoter              = int(VotesPerVoterLargeField)
)

type Candidate struct {
	Name      string
	VoteCount uint64
}

// Election is the authority-owned record holding the candidate list, the
// voting window and the live tally.
type Election struct {
	ElectionID    string
	Authority     string
	StartTime     time.Time
	EndTime       time.Time
	VotesPerVoter uint8
	IsFinalized   bool
	Winner        WinnerIndex
	Candidates    []Candidate
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NewElectionInput struct {
	ElectionID     string
	Authority      string
	StartTime      time.Time
	EndTime        time.Time
	CandidateNames []string
	CandidateCount int
	CreatedAt      time.Time
}

// NewElection validates the declared candidate list and builds a fresh,
// unfinalized election with zeroed counters. The window bounds are stored as
// given; an inverted window simply never accepts votes.
func NewElection(input NewElectionInput) (Election, error) {
	if input.CandidateCount < 0 ||
		input.CandidateCount > MaxCandidates ||
		input.CandidateCount != len(input.CandidateNames) {
		return Election{}, domainerrors.ErrCandidateCountMismatch
	}
	for _, name := range input.CandidateNames {
		if len(name) > MaxCandidateNameLen {
			return Election{}, domainerrors.ErrCandidateNameTooLong
		}
	}

	candidates := make([]Candidate, 0, len(input.CandidateNames))
	for _, name := range input.CandidateNames {
		candidates = append(candidates, Candidate{Name: name})
	}
	return Election{
		ElectionID:    input.ElectionID,
		Authority:     input.Authority,
		StartTime:     input.StartTime,
		EndTime:       input.EndTime,
		VotesPerVoter: VotesPerVoterFor(len(candidates)),
		IsFinalized:   false,
		Winner:        UnsetWinner(),
		Candidates:    candidates,
		CreatedAt:     input.CreatedAt,
		UpdatedAt:     input.CreatedAt,
	}, nil
}

// VotesPerVoterFor applies the D21 allowance rule.
func VotesPerVoterFor(candidateCount int) uint8 {
	if candidateCount >= LargeFieldThreshold {
		return VotesPerVoterLargeField
	}
	return VotesPerVoterSmallField
}

// ValidIdentity reports whether id can be stored as an authority, voter or
// election identifier.
func ValidIdentity(id string) bool {
	return id != "" && len(id) <= MaxIdentityLen
}

func (e Election) IsAuthority(callerID string) bool {
	return callerID != "" && callerID == e.Authority
}

func (e Election) Candidate(index int) (Candidate, bool) {
	if index < 0 || index >= len(e.Candidates) {
		return Candidate{}, false
	}
	return e.Candidates[index], true
}

func (e Election) TotalVotes() uint64 {
	var total uint64
	for _, candidate := range e.Candidates {
		total += candidate.VoteCount
	}
	return total
}

// Outcome derives the lifecycle state from the finalization flag and winner.
func (e Election) Outcome() Outcome {
	switch {
	case !e.IsFinalized:
		return OutcomeOpen
	case e.Winner.IsSet():
		return OutcomeWinner
	default:
		return OutcomeNoWinner
	}
}

// Clone returns a copy that shares no mutable state with e.
func (e Election) Clone() Election {
	out := e
	out.Candidates = append([]Candidate(nil), e.Candidates...)
	return out
}

type Outcome string

const (
	OutcomeOpen     Outcome = "open"
	OutcomeWinner   Outcome = "finalized_with_winner"
	OutcomeNoWinner Outcome = "finalized_without_winner"
)
