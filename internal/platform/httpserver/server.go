package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	d21voting "d21vote/contexts/elections/d21-voting"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	electionhttp "d21vote/contexts/elections/d21-voting/transport/http"
	_ "d21vote/internal/platform/httpserver/docs"
	"d21vote/internal/platform/metrics"

	httpSwagger "github.com/swaggo/http-swagger"
)

const maxRequestBody = 1 << 20

type Server struct {
	mux       *http.ServeMux
	logger    *slog.Logger
	addr      string
	elections d21voting.Module
	metrics   *metrics.Collector
	http      *http.Server
}

func New(
	elections d21voting.Module,
	collector *metrics.Collector,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}
	if collector == nil {
		collector = metrics.New(nil, "")
	}

	s := &Server{
		mux:       http.NewServeMux(),
		logger:    logger,
		addr:      addr,
		elections: elections,
		metrics:   collector,
	}
	s.registerRoutes()
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping",
		"event", "http_server_stopping",
		"module", "internal/platform/httpserver",
		"layer", "platform",
	)
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.route("POST /v1/elections", "create_election", s.handleCreateElection)
	s.route("GET /v1/elections", "list_elections", s.handleListElections)
	s.route("GET /v1/elections/{election_id}", "get_election", s.handleGetElection)
	s.route("GET /v1/elections/{election_id}/standings", "standings", s.handleStandings)
	s.route("POST /v1/elections/{election_id}/votes", "cast_vote", s.handleCastVote)
	s.route("GET /v1/elections/{election_id}/ballots/{voter_id}", "get_ballot", s.handleGetBallot)
	s.route("POST /v1/elections/{election_id}/tally", "tally", s.handleTally)
}

func (s *Server) route(pattern string, name string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, s.metrics.Instrument(name, handler))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateElection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req electionhttp.CreateElectionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.elections.Handler.CreateElectionHandler(
		r.Context(),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.ListElectionsHandler(r.Context())
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetElection(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.GetElectionHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStandings(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.StandingsHandler(r.Context(), r.PathValue("election_id"))
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req electionhttp.CastVoteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.elections.Handler.CastVoteHandler(
		r.Context(),
		r.PathValue("election_id"),
		userID,
		r.Header.Get("Idempotency-Key"),
		req,
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBallot(w http.ResponseWriter, r *http.Request) {
	resp, err := s.elections.Handler.GetBallotHandler(
		r.Context(),
		r.PathValue("election_id"),
		r.PathValue("voter_id"),
	)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	resp, err := s.elections.Handler.TallyHandler(r.Context(), r.PathValue("election_id"), userID)
	if err != nil {
		writeElectionDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		writeElectionError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return "", false
	}
	return userID, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeElectionError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

func writeElectionDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domainerrors.ErrElectionNotStarted):
		writeElectionError(w, http.StatusConflict, "election_not_started", err.Error())
	case errors.Is(err, domainerrors.ErrElectionAlreadyEnded):
		writeElectionError(w, http.StatusConflict, "election_already_ended", err.Error())
	case errors.Is(err, domainerrors.ErrTallyNotAllowedYet):
		writeElectionError(w, http.StatusConflict, "tally_not_allowed_yet", err.Error())
	case errors.Is(err, domainerrors.ErrElectionAlreadyFinalized):
		writeElectionError(w, http.StatusConflict, "election_already_finalized", err.Error())
	case errors.Is(err, domainerrors.ErrVotesExhausted):
		writeElectionError(w, http.StatusConflict, "votes_exhausted", err.Error())
	case errors.Is(err, domainerrors.ErrAlreadyVotedForCandidate):
		writeElectionError(w, http.StatusConflict, "already_voted_for_candidate", err.Error())
	case errors.Is(err, domainerrors.ErrDuplicateVoteInSingleTx):
		writeElectionError(w, http.StatusBadRequest, "duplicate_vote_in_single_tx", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidCandidateIndex):
		writeElectionError(w, http.StatusBadRequest, "invalid_candidate_index", err.Error())
	case errors.Is(err, domainerrors.ErrCandidateCountMismatch):
		writeElectionError(w, http.StatusUnprocessableEntity, "candidate_count_mismatch", err.Error())
	case errors.Is(err, domainerrors.ErrCandidateNameTooLong):
		writeElectionError(w, http.StatusUnprocessableEntity, "candidate_name_too_long", err.Error())
	case errors.Is(err, domainerrors.ErrInvalidElectionInput):
		writeElectionError(w, http.StatusBadRequest, "invalid_election_input", err.Error())
	case errors.Is(err, domainerrors.ErrUnauthorized):
		writeElectionError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, domainerrors.ErrElectionNotFound):
		writeElectionError(w, http.StatusNotFound, "election_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrBallotNotFound):
		writeElectionError(w, http.StatusNotFound, "ballot_not_found", err.Error())
	case errors.Is(err, domainerrors.ErrIdempotencyConflict):
		writeElectionError(w, http.StatusConflict, "idempotency_conflict", err.Error())
	case errors.Is(err, domainerrors.ErrConflict):
		writeElectionError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeElectionError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeElectionError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, electionhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
