package httpadapter

import (
	"context"
	"log/slog"

	application "d21vote/contexts/elections/d21-voting/application"
	"d21vote/contexts/elections/d21-voting/application/commands"
	"d21vote/contexts/elections/d21-voting/application/queries"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	httptransport "d21vote/contexts/elections/d21-voting/transport/http"

	"golang.org/x/text/unicode/norm"
)

type Handler struct {
	Elections commands.ElectionUseCase
	Queries   queries.ElectionQueries
	Logger    *slog.Logger
}

// CreateElectionHandler godoc
// @Summary Create an election
// @Description Registers an election owned by the caller. Candidate names are NFC-normalised before the 50-byte cap is applied.
// @Tags d21-voting
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Authority id"
// @Param Idempotency-Key header string false "Replay protection key"
// @Param request body httptransport.CreateElectionRequest true "Election definition"
// @Success 201 {object} httptransport.ElectionResponse
// @Success 200 {object} httptransport.ElectionResponse "Idempotent replay"
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Failure 422 {object} httptransport.ErrorResponse
// @Router /v1/elections [post]
func (h Handler) CreateElectionHandler(
	ctx context.Context,
	authorityID string,
	idempotencyKey string,
	req httptransport.CreateElectionRequest,
) (httptransport.ElectionResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("create election request received",
		"event", "http_create_election_received",
		"module", "elections/d21-voting",
		"layer", "transport",
		"authority_id", authorityID,
	)

	names := make([]string, 0, len(req.CandidateNames))
	for _, name := range req.CandidateNames {
		names = append(names, norm.NFC.String(name))
	}
	result, err := h.Elections.CreateElection(ctx, commands.CreateElectionCommand{
		AuthorityID:    authorityID,
		IdempotencyKey: idempotencyKey,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		CandidateNames: names,
		CandidateCount: req.CandidateCount,
	})
	if err != nil {
		logger.Error("create election request failed",
			"event", "http_create_election_failed",
			"module", "elections/d21-voting",
			"layer", "transport",
			"authority_id", authorityID,
			"error", err.Error(),
		)
		return httptransport.ElectionResponse{}, err
	}
	response := mapElection(result.Election)
	response.Replayed = result.Replayed
	return response, nil
}

// GetElectionHandler godoc
// @Summary Get an election
// @Tags d21-voting
// @Produce json
// @Param election_id path string true "Election id"
// @Success 200 {object} httptransport.ElectionResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/elections/{election_id} [get]
func (h Handler) GetElectionHandler(ctx context.Context, electionID string) (httptransport.ElectionResponse, error) {
	election, err := h.Queries.GetElection(ctx, electionID)
	if err != nil {
		return httptransport.ElectionResponse{}, err
	}
	return mapElection(election), nil
}

// ListElectionsHandler godoc
// @Summary List elections
// @Tags d21-voting
// @Produce json
// @Success 200 {object} httptransport.ElectionListResponse
// @Router /v1/elections [get]
func (h Handler) ListElectionsHandler(ctx context.Context) (httptransport.ElectionListResponse, error) {
	items, err := h.Queries.ListElections(ctx)
	if err != nil {
		return httptransport.ElectionListResponse{}, err
	}
	response := httptransport.ElectionListResponse{
		Items: make([]httptransport.ElectionResponse, 0, len(items)),
	}
	for _, election := range items {
		response.Items = append(response.Items, mapElection(election))
	}
	return response, nil
}

// CastVoteHandler godoc
// @Summary Cast a batch of votes
// @Description Records one batch of distinct candidate indices for the caller. A rejected batch changes nothing.
// @Tags d21-voting
// @Accept json
// @Produce json
// @Param X-User-Id header string true "Voter id"
// @Param Idempotency-Key header string false "Replay protection key"
// @Param election_id path string true "Election id"
// @Param request body httptransport.CastVoteRequest true "Candidate indices"
// @Success 200 {object} httptransport.CastVoteResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/elections/{election_id}/votes [post]
func (h Handler) CastVoteHandler(
	ctx context.Context,
	electionID string,
	voterID string,
	idempotencyKey string,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("cast vote request received",
		"event", "http_cast_vote_received",
		"module", "elections/d21-voting",
		"layer", "transport",
		"election_id", electionID,
		"voter_id", voterID,
	)

	result, err := h.Elections.CastVote(ctx, commands.CastVoteCommand{
		ElectionID:       electionID,
		VoterID:          voterID,
		IdempotencyKey:   idempotencyKey,
		CandidateIndices: req.CandidateIndices,
	})
	if err != nil {
		logger.Error("cast vote request failed",
			"event", "http_cast_vote_failed",
			"module", "elections/d21-voting",
			"layer", "transport",
			"election_id", electionID,
			"voter_id", voterID,
			"error", err.Error(),
		)
		return httptransport.CastVoteResponse{}, err
	}
	election, err := h.Queries.GetElection(ctx, electionID)
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	response := httptransport.CastVoteResponse{
		Ballot:   mapBallot(result.Ballot, election.VotesPerVoter),
		Replayed: result.Replayed,
	}
	if result.Event != nil {
		response.CandidatesVotedFor = result.Event.CandidatesVotedFor
	}
	return response, nil
}

// GetBallotHandler godoc
// @Summary Get a voter's ballot
// @Tags d21-voting
// @Produce json
// @Param election_id path string true "Election id"
// @Param voter_id path string true "Voter id"
// @Success 200 {object} httptransport.BallotResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/elections/{election_id}/ballots/{voter_id} [get]
func (h Handler) GetBallotHandler(ctx context.Context, electionID string, voterID string) (httptransport.BallotResponse, error) {
	election, err := h.Queries.GetElection(ctx, electionID)
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	ballot, err := h.Queries.GetBallot(ctx, electionID, voterID)
	if err != nil {
		return httptransport.BallotResponse{}, err
	}
	return mapBallot(ballot, election.VotesPerVoter), nil
}

// TallyHandler godoc
// @Summary Tally and finalize an election
// @Description Authority only. Allowed strictly after the end time and at most once.
// @Tags d21-voting
// @Produce json
// @Param X-User-Id header string true "Authority id"
// @Param election_id path string true "Election id"
// @Success 200 {object} httptransport.TallyResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 403 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 409 {object} httptransport.ErrorResponse
// @Router /v1/elections/{election_id}/tally [post]
func (h Handler) TallyHandler(ctx context.Context, electionID string, callerID string) (httptransport.TallyResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	result, err := h.Elections.TallyResults(ctx, commands.TallyResultsCommand{
		ElectionID: electionID,
		CallerID:   callerID,
	})
	if err != nil {
		logger.Error("tally request failed",
			"event", "http_tally_failed",
			"module", "elections/d21-voting",
			"layer", "transport",
			"election_id", electionID,
			"caller_id", callerID,
			"error", err.Error(),
		)
		return httptransport.TallyResponse{}, err
	}
	response := httptransport.TallyResponse{
		ElectionID: result.Election.ElectionID,
		Finalized:  result.Finalized,
	}
	if index, ok := result.WinnerIndex.Get(); ok {
		name := result.WinnerName
		count := result.WinnerVoteCount
		response.WinnerIndex = &index
		response.WinnerName = &name
		response.WinnerVoteCount = &count
	}
	return response, nil
}

// StandingsHandler godoc
// @Summary Live standings
// @Description Candidates ordered by votes, ties broken by lower index. Read only.
// @Tags d21-voting
// @Produce json
// @Param election_id path string true "Election id"
// @Success 200 {object} httptransport.StandingsResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Router /v1/elections/{election_id}/standings [get]
func (h Handler) StandingsHandler(ctx context.Context, electionID string) (httptransport.StandingsResponse, error) {
	result, err := h.Queries.Standings(ctx, electionID)
	if err != nil {
		return httptransport.StandingsResponse{}, err
	}
	response := httptransport.StandingsResponse{
		ElectionID:  result.ElectionID,
		Outcome:     string(result.Outcome),
		WinnerIndex: winnerPointer(result.Winner),
		TotalVotes:  result.TotalVotes,
		Items:       make([]httptransport.StandingItem, 0, len(result.Standings)),
	}
	for i, row := range result.Standings {
		response.Items = append(response.Items, httptransport.StandingItem{
			Rank:           i + 1,
			CandidateIndex: row.CandidateIndex,
			Name:           row.Name,
			VoteCount:      row.VoteCount,
		})
	}
	return response, nil
}

func mapElection(election entities.Election) httptransport.ElectionResponse {
	candidates := make([]httptransport.CandidateResponse, 0, len(election.Candidates))
	for i, candidate := range election.Candidates {
		candidates = append(candidates, httptransport.CandidateResponse{
			Index:     i,
			Name:      candidate.Name,
			VoteCount: candidate.VoteCount,
		})
	}
	return httptransport.ElectionResponse{
		ElectionID:    election.ElectionID,
		Authority:     election.Authority,
		StartTime:     election.StartTime,
		EndTime:       election.EndTime,
		VotesPerVoter: int(election.VotesPerVoter),
		IsFinalized:   election.IsFinalized,
		WinnerIndex:   winnerPointer(election.Winner),
		Outcome:       string(election.Outcome()),
		Candidates:    candidates,
		CreatedAt:     election.CreatedAt,
	}
}

func mapBallot(ballot entities.Ballot, votesPerVoter uint8) httptransport.BallotResponse {
	votedFor := ballot.VotedFor
	if votedFor == nil {
		votedFor = []int{}
	}
	return httptransport.BallotResponse{
		ElectionID:     ballot.ElectionID,
		VoterID:        ballot.VoterID,
		VotesCastCount: int(ballot.VotesCastCount),
		VotedFor:       votedFor,
		RemainingVotes: int(ballot.RemainingVotes(votesPerVoter)),
	}
}

func winnerPointer(winner entities.WinnerIndex) *int {
	index, ok := winner.Get()
	if !ok {
		return nil
	}
	return &index
}
