package commands

import (
	"context"
	"strings"

	application "d21vote/contexts/elections/d21-voting/application"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"
)

type TallyResultsCommand struct {
	ElectionID string
	CallerID   string
}

// TallyResult reports the frozen outcome. WinnerName and WinnerVoteCount are
// only meaningful when WinnerIndex is set.
type TallyResult struct {
	Election        entities.Election
	WinnerIndex     entities.WinnerIndex
	WinnerName      string
	WinnerVoteCount uint64
	Finalized       bool
}

// TallyResults finalizes the election and fixes its winner. Only the
// election authority may call it, and the authority check precedes the
// timing and finalization checks.
func (uc ElectionUseCase) TallyResults(ctx context.Context, cmd TallyResultsCommand) (TallyResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	electionID := strings.TrimSpace(cmd.ElectionID)
	callerID := strings.TrimSpace(cmd.CallerID)
	logger.Info("election tally processing started",
		"event", "election_tally_started",
		"module", "elections/d21-voting",
		"layer", "application",
		"election_id", electionID,
		"caller_id", callerID,
	)
	if !validIdentities(electionID, callerID) {
		logger.Warn("election tally validation failed",
			"event", "election_tally_validation_failed",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"caller_id", callerID,
		)
		return TallyResult{}, domainerrors.ErrInvalidElectionInput
	}

	now := uc.now()
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return TallyResult{}, err
	}
	election, err := uc.Elections.ApplyTally(ctx, electionID,
		func(election *entities.Election) ([]ports.EventEnvelope, error) {
			if !election.IsAuthority(callerID) {
				return nil, domainerrors.ErrUnauthorized
			}
			outcome, err := election.Tally(now)
			if err != nil {
				return nil, err
			}
			if outcome.Event == nil {
				return nil, nil
			}
			envelope, err := electionFinalizedEnvelope(eventID, uc.sourceService(), *outcome.Event)
			if err != nil {
				return nil, err
			}
			return []ports.EventEnvelope{envelope}, nil
		},
	)
	if err != nil {
		logger.Warn("election tally rejected",
			"event", "election_tally_rejected",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"caller_id", callerID,
			"error", err.Error(),
		)
		return TallyResult{}, err
	}

	result := TallyResult{
		Election:    election,
		WinnerIndex: election.Winner,
		Finalized:   election.IsFinalized,
	}
	if index, ok := election.Winner.Get(); ok {
		candidate, _ := election.Candidate(index)
		result.WinnerName = candidate.Name
		result.WinnerVoteCount = candidate.VoteCount
	}
	logger.Info("election finalized",
		"event", "election_finalized",
		"module", "elections/d21-voting",
		"layer", "application",
		"election_id", electionID,
		"winner", election.Winner.String(),
		"winner_vote_count", result.WinnerVoteCount,
		"total_votes", election.TotalVotes(),
	)
	return result, nil
}
