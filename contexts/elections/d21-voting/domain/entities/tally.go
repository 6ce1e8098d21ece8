package entities

import (
	"time"

	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
)

// ElectionFinalized is emitted when a tally declares a winner. A tally that
// finds no votes finalizes silently.
type ElectionFinalized struct {
	ElectionID      string
	WinnerIndex     int
	WinnerName      string
	WinnerVoteCount uint64
	Timestamp       time.Time
}

type TallyOutcome struct {
	Winner WinnerIndex
	Event  *ElectionFinalized
}

// Tally freezes the election and fixes its winner. It may run only once and
// only after the window has closed.
func (e *Election) Tally(now time.Time) (TallyOutcome, error) {
	if !now.After(e.EndTime) {
		return TallyOutcome{}, domainerrors.ErrTallyNotAllowedYet
	}
	if e.IsFinalized {
		return TallyOutcome{}, domainerrors.ErrElectionAlreadyFinalized
	}

	winner := SelectWinner(e.Candidates)
	e.IsFinalized = true
	e.Winner = winner
	e.UpdatedAt = now

	outcome := TallyOutcome{Winner: winner}
	if index, ok := winner.Get(); ok {
		candidate := e.Candidates[index]
		outcome.Event = &ElectionFinalized{
			ElectionID:      e.ElectionID,
			WinnerIndex:     index,
			WinnerName:      candidate.Name,
			WinnerVoteCount: candidate.VoteCount,
			Timestamp:       now,
		}
	}
	return outcome, nil
}

// SelectWinner scans in index order and keeps the first candidate with the
// strictly highest count. All-zero counts leave the winner unset.
func SelectWinner(candidates []Candidate) WinnerIndex {
	var maxVotes uint64
	winner := UnsetWinner()
	for i, candidate := range candidates {
		if candidate.VoteCount > maxVotes {
			maxVotes = candidate.VoteCount
			winner = WinnerAt(i)
		}
	}
	return winner
}
