package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	d21voting "d21vote/contexts/elections/d21-voting"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	electionhttp "d21vote/contexts/elections/d21-voting/transport/http"
	"d21vote/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func closedElection() entities.Election {
	now := time.Now().UTC()
	return entities.Election{
		ElectionID:    "closed-1",
		Authority:     "authority-1",
		StartTime:     now.Add(-2 * time.Hour),
		EndTime:       now.Add(-time.Hour),
		VotesPerVoter: entities.VotesPerVoterSmallField,
		Winner:        entities.UnsetWinner(),
		Candidates: []entities.Candidate{
			{Name: "Alice", VoteCount: 4},
			{Name: "Bob", VoteCount: 6},
		},
		CreatedAt: now.Add(-3 * time.Hour),
		UpdatedAt: now.Add(-3 * time.Hour),
	}
}

func newTestServer() *Server {
	module := d21voting.NewInMemoryModule([]entities.Election{closedElection()}, nil, nil)
	return New(module, metrics.New(prometheus.NewRegistry(), "test"), nil, ":0")
}

func doJSON(t *testing.T, server *Server, method string, path string, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-Id", userID)
	}
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) electionhttp.ErrorResponse {
	t.Helper()
	var resp electionhttp.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rr.Body.String(), err)
	}
	return resp
}

func createOpenElection(t *testing.T, server *Server, names ...string) electionhttp.ElectionResponse {
	t.Helper()
	now := time.Now().UTC()
	rr := doJSON(t, server, http.MethodPost, "/v1/elections", "authority-1", electionhttp.CreateElectionRequest{
		StartTime:      now.Add(-time.Hour),
		EndTime:        now.Add(time.Hour),
		CandidateNames: names,
		CandidateCount: len(names),
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp electionhttp.ElectionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode election: %v", err)
	}
	return resp
}

func TestCreateElectionRequiresUser(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/elections", "", electionhttp.CreateElectionRequest{
		CandidateNames: []string{"Alice"},
		CandidateCount: 1,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
	if code := decodeError(t, rr).Code; code != "missing_user" {
		t.Fatalf("expected missing_user, got %s", code)
	}
}

func TestCreateElectionValidationStatuses(t *testing.T) {
	server := newTestServer()
	tests := []struct {
		name   string
		req    electionhttp.CreateElectionRequest
		status int
		code   string
	}{
		{
			name:   "count mismatch",
			req:    electionhttp.CreateElectionRequest{CandidateNames: []string{"Alice", "Bob"}, CandidateCount: 3},
			status: http.StatusUnprocessableEntity,
			code:   "candidate_count_mismatch",
		},
		{
			name:   "name too long",
			req:    electionhttp.CreateElectionRequest{CandidateNames: []string{strings.Repeat("x", 51)}, CandidateCount: 1},
			status: http.StatusUnprocessableEntity,
			code:   "candidate_name_too_long",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, server, http.MethodPost, "/v1/elections", "authority-1", tt.req)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d body=%s", tt.status, rr.Code, rr.Body.String())
			}
			if code := decodeError(t, rr).Code; code != tt.code {
				t.Fatalf("expected %s, got %s", tt.code, code)
			}
		})
	}
}

func TestCreateElectionNormalisesNames(t *testing.T) {
	server := newTestServer()
	// 25 decomposed e-acute sequences are 75 bytes; NFC brings them to 50.
	decomposed := strings.Repeat("e\u0301", 25)
	election := createOpenElection(t, server, decomposed)
	if got := election.Candidates[0].Name; got != strings.Repeat("\u00e9", 25) {
		t.Fatalf("expected NFC name, got %q", got)
	}
}

func TestCreateElectionIdempotencyReplay(t *testing.T) {
	server := newTestServer()
	now := time.Now().UTC().Truncate(time.Second)
	body := electionhttp.CreateElectionRequest{
		StartTime:      now.Add(time.Hour),
		EndTime:        now.Add(2 * time.Hour),
		CandidateNames: []string{"Alice", "Bob"},
		CandidateCount: 2,
	}
	send := func() *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/elections", bytes.NewReader(raw))
		req.Header.Set("X-User-Id", "authority-1")
		req.Header.Set("Idempotency-Key", "idem-1")
		rr := httptest.NewRecorder()
		server.mux.ServeHTTP(rr, req)
		return rr
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 replay, got %d body=%s", second.Code, second.Body.String())
	}

	body.CandidateNames = []string{"Alice", "Carol"}
	third := send()
	if third.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", third.Code, third.Body.String())
	}
}

func TestCastVoteFlow(t *testing.T) {
	server := newTestServer()
	election := createOpenElection(t, server, "Alice", "Bob", "Carol")
	votesPath := "/v1/elections/" + election.ElectionID + "/votes"

	rr := doJSON(t, server, http.MethodPost, votesPath, "voter-1", electionhttp.CastVoteRequest{CandidateIndices: []int{2}})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var vote electionhttp.CastVoteResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &vote); err != nil {
		t.Fatalf("decode vote: %v", err)
	}
	if vote.Ballot.RemainingVotes != 1 || vote.Ballot.VotesCastCount != 1 {
		t.Fatalf("unexpected ballot %+v", vote.Ballot)
	}

	rr = doJSON(t, server, http.MethodPost, votesPath, "voter-1", electionhttp.CastVoteRequest{CandidateIndices: []int{2}})
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "already_voted_for_candidate" {
		t.Fatalf("expected already_voted_for_candidate, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, votesPath, "voter-1", electionhttp.CastVoteRequest{CandidateIndices: []int{0, 0}})
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "duplicate_vote_in_single_tx" {
		t.Fatalf("expected duplicate_vote_in_single_tx, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, votesPath, "voter-1", electionhttp.CastVoteRequest{CandidateIndices: []int{0, 1}})
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "votes_exhausted" {
		t.Fatalf("expected votes_exhausted, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/elections/"+election.ElectionID+"/ballots/voter-1", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/elections/"+election.ElectionID+"/ballots/voter-2", "", nil)
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != "ballot_not_found" {
		t.Fatalf("expected ballot_not_found, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodGet, "/v1/elections/"+election.ElectionID+"/standings", "", nil)
	var standings electionhttp.StandingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &standings); err != nil {
		t.Fatalf("decode standings: %v", err)
	}
	if standings.Items[0].CandidateIndex != 2 || standings.TotalVotes != 1 || standings.Outcome != "open" {
		t.Fatalf("unexpected standings %+v", standings)
	}
}

func TestCastVoteUnknownElection(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodPost, "/v1/elections/missing/votes", "voter-1", electionhttp.CastVoteRequest{CandidateIndices: []int{0}})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCastVoteRejectsMalformedBody(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/v1/elections/closed-1/votes", strings.NewReader(`{"candidate_indices":`))
	req.Header.Set("X-User-Id", "voter-1")
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTallyAuthorization(t *testing.T) {
	server := newTestServer()

	rr := doJSON(t, server, http.MethodPost, "/v1/elections/closed-1/tally", "stranger", nil)
	if rr.Code != http.StatusForbidden || decodeError(t, rr).Code != "unauthorized" {
		t.Fatalf("expected 403 unauthorized, got %d body=%s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/elections/closed-1/tally", "authority-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var tally electionhttp.TallyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &tally); err != nil {
		t.Fatalf("decode tally: %v", err)
	}
	if !tally.Finalized || tally.WinnerIndex == nil || *tally.WinnerIndex != 1 || *tally.WinnerName != "Bob" || *tally.WinnerVoteCount != 6 {
		t.Fatalf("unexpected tally %+v", tally)
	}

	rr = doJSON(t, server, http.MethodPost, "/v1/elections/closed-1/tally", "authority-1", nil)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "election_already_finalized" {
		t.Fatalf("expected election_already_finalized, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestTallyBeforeEndIsConflict(t *testing.T) {
	server := newTestServer()
	election := createOpenElection(t, server, "Alice", "Bob")
	rr := doJSON(t, server, http.MethodPost, "/v1/elections/"+election.ElectionID+"/tally", "authority-1", nil)
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "tally_not_allowed_yet" {
		t.Fatalf("expected tally_not_allowed_yet, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer()
	rr := doJSON(t, server, http.MethodGet, "/healthz", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	doJSON(t, server, http.MethodGet, "/v1/elections", "", nil)
	rr = doJSON(t, server, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `test_http_requests_total{method="GET",route="list_elections",status="200"} 1`) {
		t.Fatalf("missing request counter in metrics output:\n%s", rr.Body.String())
	}
}
