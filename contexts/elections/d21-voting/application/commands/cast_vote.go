package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	application "d21vote/contexts/elections/d21-voting/application"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"
)

type CastVoteCommand struct {
	ElectionID       string
	VoterID          string
	IdempotencyKey   string
	CandidateIndices []int
}

// CastVoteResult carries the ballot after the batch. Event is nil on replay.
type CastVoteResult struct {
	Ballot   entities.Ballot
	Event    *entities.VoteCasted
	Replayed bool
}

// CastVote records one batch of votes for the caller. The ballot is created
// on the first accepted batch; a rejected batch changes nothing.
func (uc ElectionUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	electionID := strings.TrimSpace(cmd.ElectionID)
	voterID := strings.TrimSpace(cmd.VoterID)
	logger.Info("vote cast processing started",
		"event", "election_vote_cast_started",
		"module", "elections/d21-voting",
		"layer", "application",
		"election_id", electionID,
		"voter_id", voterID,
		"batch_size", len(cmd.CandidateIndices),
	)
	if !validIdentities(electionID, voterID) {
		logger.Warn("vote cast validation failed",
			"event", "election_vote_cast_validation_failed",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"voter_id", voterID,
		)
		return CastVoteResult{}, domainerrors.ErrInvalidElectionInput
	}

	now := uc.now()
	requestHash := hashCastVoteCommand(cmd)
	idempotencyKey := scopedIdempotencyKey("cast_vote", electionID, voterID, strings.TrimSpace(cmd.IdempotencyKey))
	if _, found, err := uc.lookupIdempotency(ctx, idempotencyKey, requestHash, now); err != nil {
		logger.Warn("vote cast idempotency check failed",
			"event", "election_vote_cast_idempotency_failed",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"voter_id", voterID,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	} else if found {
		ballot, ok, err := uc.Elections.GetBallot(ctx, electionID, voterID)
		if err != nil {
			return CastVoteResult{}, err
		}
		if !ok {
			return CastVoteResult{}, domainerrors.ErrBallotNotFound
		}
		logger.Info("vote cast replayed",
			"event", "election_vote_cast_replayed",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"voter_id", voterID,
		)
		return CastVoteResult{Ballot: ballot, Replayed: true}, nil
	}

	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CastVoteResult{}, err
	}
	indices := append([]int(nil), cmd.CandidateIndices...)
	var casted entities.VoteCasted
	record := uc.idempotencyRecord(idempotencyKey, requestHash, electionID, now)
	ballot, err := uc.Elections.ApplyVote(ctx, electionID, voterID, record,
		func(election *entities.Election, ballot *entities.Ballot) ([]ports.EventEnvelope, error) {
			event, err := election.CastVotes(ballot, voterID, indices, now)
			if err != nil {
				return nil, err
			}
			envelope, err := voteCastedEnvelope(eventID, uc.sourceService(), event)
			if err != nil {
				return nil, err
			}
			casted = event
			return []ports.EventEnvelope{envelope}, nil
		},
	)
	if err != nil {
		logger.Warn("vote cast rejected",
			"event", "election_vote_cast_rejected",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", electionID,
			"voter_id", voterID,
			"candidate_indices", indices,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	}
	logger.Info("vote cast recorded",
		"event", "election_vote_cast_recorded",
		"module", "elections/d21-voting",
		"layer", "application",
		"election_id", electionID,
		"voter_id", voterID,
		"candidate_indices", indices,
		"votes_cast_count", ballot.VotesCastCount,
	)
	return CastVoteResult{Ballot: ballot, Event: &casted}, nil
}

func hashCastVoteCommand(cmd CastVoteCommand) string {
	payload := map[string]any{
		"election_id":       strings.TrimSpace(cmd.ElectionID),
		"voter_id":          strings.TrimSpace(cmd.VoterID),
		"candidate_indices": cmd.CandidateIndices,
		"op":                "cast_vote",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
