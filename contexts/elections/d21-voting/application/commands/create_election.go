package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	application "d21vote/contexts/elections/d21-voting/application"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
)

type CreateElectionCommand struct {
	AuthorityID    string
	IdempotencyKey string
	StartTime      time.Time
	EndTime        time.Time
	CandidateNames []string
	CandidateCount int
}

type CreateElectionResult struct {
	Election entities.Election
	Replayed bool
}

// CreateElection registers a new election owned by the calling authority.
// The window is stored as supplied; an inverted window is accepted and simply
// never admits a vote.
func (uc ElectionUseCase) CreateElection(ctx context.Context, cmd CreateElectionCommand) (CreateElectionResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	authorityID := strings.TrimSpace(cmd.AuthorityID)
	logger.Info("election create processing started",
		"event", "election_create_started",
		"module", "elections/d21-voting",
		"layer", "application",
		"authority_id", authorityID,
		"candidate_count", cmd.CandidateCount,
	)
	if !validIdentities(authorityID) {
		logger.Warn("election create validation failed",
			"event", "election_create_validation_failed",
			"module", "elections/d21-voting",
			"layer", "application",
			"authority_id", authorityID,
		)
		return CreateElectionResult{}, domainerrors.ErrInvalidElectionInput
	}

	now := uc.now()
	requestHash := hashCreateElectionCommand(cmd)
	idempotencyKey := scopedIdempotencyKey("create_election", authorityID, strings.TrimSpace(cmd.IdempotencyKey))
	record, found, err := uc.lookupIdempotency(ctx, idempotencyKey, requestHash, now)
	if err != nil {
		logger.Warn("election create idempotency check failed",
			"event", "election_create_idempotency_failed",
			"module", "elections/d21-voting",
			"layer", "application",
			"authority_id", authorityID,
			"error", err.Error(),
		)
		return CreateElectionResult{}, err
	}
	if found {
		election, err := uc.Elections.GetElection(ctx, record.ResourceID)
		if err != nil {
			return CreateElectionResult{}, err
		}
		logger.Info("election create replayed",
			"event", "election_create_replayed",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"authority_id", authorityID,
		)
		return CreateElectionResult{Election: election, Replayed: true}, nil
	}

	electionID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return CreateElectionResult{}, err
	}
	election, err := entities.NewElection(entities.NewElectionInput{
		ElectionID:     electionID,
		Authority:      authorityID,
		StartTime:      cmd.StartTime.UTC(),
		EndTime:        cmd.EndTime.UTC(),
		CandidateNames: cmd.CandidateNames,
		CandidateCount: cmd.CandidateCount,
		CreatedAt:      now,
	})
	if err != nil {
		logger.Warn("election create rejected",
			"event", "election_create_rejected",
			"module", "elections/d21-voting",
			"layer", "application",
			"authority_id", authorityID,
			"candidate_count", cmd.CandidateCount,
			"candidate_names", len(cmd.CandidateNames),
			"error", err.Error(),
		)
		return CreateElectionResult{}, err
	}
	if !election.StartTime.Before(election.EndTime) {
		logger.Warn("election window can never accept votes",
			"event", "election_create_window_degenerate",
			"module", "elections/d21-voting",
			"layer", "application",
			"election_id", election.ElectionID,
			"start_time", election.StartTime,
			"end_time", election.EndTime,
		)
	}

	pending := uc.idempotencyRecord(idempotencyKey, requestHash, election.ElectionID, now)
	if err := uc.Elections.CreateElection(ctx, election, pending); err != nil {
		return CreateElectionResult{}, err
	}

	logger.Info("election created",
		"event", "election_created",
		"module", "elections/d21-voting",
		"layer", "application",
		"election_id", election.ElectionID,
		"authority_id", election.Authority,
		"candidate_count", len(election.Candidates),
		"votes_per_voter", election.VotesPerVoter,
	)
	return CreateElectionResult{Election: election}, nil
}

func hashCreateElectionCommand(cmd CreateElectionCommand) string {
	payload := map[string]any{
		"authority_id":    strings.TrimSpace(cmd.AuthorityID),
		"start_time":      cmd.StartTime.UTC().Format(time.RFC3339Nano),
		"end_time":        cmd.EndTime.UTC().Format(time.RFC3339Nano),
		"candidate_names": cmd.CandidateNames,
		"candidate_count": cmd.CandidateCount,
		"op":              "create_election",
	}
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
