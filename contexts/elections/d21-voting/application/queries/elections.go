package queries

import (
	"context"
	"sort"
	"strings"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"
)

// Standing is one row of the live leaderboard.
type Standing struct {
	CandidateIndex int
	Name           string
	VoteCount      uint64
}

type StandingsResult struct {
	ElectionID string
	Outcome    entities.Outcome
	Winner     entities.WinnerIndex
	TotalVotes uint64
	Standings  []Standing
}

type ElectionQueries struct {
	Elections ports.ElectionRepository
}

func (uc ElectionQueries) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	electionID = strings.TrimSpace(electionID)
	if electionID == "" {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return uc.Elections.GetElection(ctx, electionID)
}

// ListElections returns every election, oldest first.
func (uc ElectionQueries) ListElections(ctx context.Context) ([]entities.Election, error) {
	items, err := uc.Elections.ListElections(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ElectionID < items[j].ElectionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (uc ElectionQueries) GetBallot(ctx context.Context, electionID string, voterID string) (entities.Ballot, error) {
	electionID = strings.TrimSpace(electionID)
	voterID = strings.TrimSpace(voterID)
	if _, err := uc.GetElection(ctx, electionID); err != nil {
		return entities.Ballot{}, err
	}
	ballot, found, err := uc.Elections.GetBallot(ctx, electionID, voterID)
	if err != nil {
		return entities.Ballot{}, err
	}
	if !found {
		return entities.Ballot{}, domainerrors.ErrBallotNotFound
	}
	return ballot, nil
}

// Standings ranks candidates by live vote count, breaking ties on the lower
// index exactly as the tally does. It never finalizes anything.
func (uc ElectionQueries) Standings(ctx context.Context, electionID string) (StandingsResult, error) {
	election, err := uc.GetElection(ctx, electionID)
	if err != nil {
		return StandingsResult{}, err
	}
	rows := make([]Standing, 0, len(election.Candidates))
	for i, candidate := range election.Candidates {
		rows = append(rows, Standing{
			CandidateIndex: i,
			Name:           candidate.Name,
			VoteCount:      candidate.VoteCount,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].VoteCount == rows[j].VoteCount {
			return rows[i].CandidateIndex < rows[j].CandidateIndex
		}
		return rows[i].VoteCount > rows[j].VoteCount
	})
	return StandingsResult{
		ElectionID: election.ElectionID,
		Outcome:    election.Outcome(),
		Winner:     election.Winner,
		TotalVotes: election.TotalVotes(),
		Standings:  rows,
	}, nil
}
