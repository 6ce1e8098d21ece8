package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateElectionRequest struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CandidateNames []string  `json:"candidate_names"`
	CandidateCount int       `json:"candidate_count"`
}

type CandidateResponse struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	VoteCount uint64 `json:"vote_count"`
}

type ElectionResponse struct {
	ElectionID    string              `json:"election_id"`
	Authority     string              `json:"authority"`
	StartTime     time.Time           `json:"start_time"`
	EndTime       time.Time           `json:"end_time"`
	VotesPerVoter int                 `json:"votes_per_voter"`
	IsFinalized   bool                `json:"is_finalized"`
	WinnerIndex   *int                `json:"winner_index"`
	Outcome       string              `json:"outcome"`
	Candidates    []CandidateResponse `json:"candidates"`
	CreatedAt     time.Time           `json:"created_at"`
	Replayed      bool                `json:"replayed,omitempty"`
}

type ElectionListResponse struct {
	Items []ElectionResponse `json:"items"`
}

type CastVoteRequest struct {
	CandidateIndices []int `json:"candidate_indices"`
}

type BallotResponse struct {
	ElectionID     string `json:"election_id"`
	VoterID        string `json:"voter_id"`
	VotesCastCount int    `json:"votes_cast_count"`
	VotedFor       []int  `json:"voted_for"`
	RemainingVotes int    `json:"remaining_votes"`
}

type CastVoteResponse struct {
	Ballot             BallotResponse `json:"ballot"`
	CandidatesVotedFor []int          `json:"candidates_voted_for,omitempty"`
	Replayed           bool           `json:"replayed"`
}

type TallyResponse struct {
	ElectionID      string  `json:"election_id"`
	Finalized       bool    `json:"finalized"`
	WinnerIndex     *int    `json:"winner_index"`
	WinnerName      *string `json:"winner_name"`
	WinnerVoteCount *uint64 `json:"winner_vote_count"`
}

type StandingItem struct {
	Rank           int    `json:"rank"`
	CandidateIndex int    `json:"candidate_index"`
	Name           string `json:"name"`
	VoteCount      uint64 `json:"vote_count"`
}

type StandingsResponse struct {
	ElectionID  string         `json:"election_id"`
	Outcome     string         `json:"outcome"`
	WinnerIndex *int           `json:"winner_index"`
	TotalVotes  uint64         `json:"total_votes"`
	Items       []StandingItem `json:"items"`
}
