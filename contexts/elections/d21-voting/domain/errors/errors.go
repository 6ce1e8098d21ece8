package errors

import "errors"

// Core election failures. Each one is terminal for the call that produced it
// and leaves every record untouched.
var (
	ErrElectionNotStarted       = errors.New("the election has not started yet")
	ErrElectionAlreadyEnded     = errors.New("the election has already ended")
	ErrElectionAlreadyFinalized = errors.New("the election has already been finalized and a winner declared")
	ErrTallyNotAllowedYet       = errors.New("cannot tally results until the election has ended")
	ErrVotesExhausted           = errors.New("you have already used all your available votes")
	ErrAlreadyVotedForCandidate = errors.New("you cannot vote for the same candidate more than once")
	ErrDuplicateVoteInSingleTx  = errors.New("your vote request contains duplicate candidates in the same transaction")
	ErrInvalidCandidateIndex    = errors.New("the provided candidate index is invalid")
	ErrCandidateCountMismatch   = errors.New("the provided candidate count does not match the candidate list length")
	ErrCandidateNameTooLong     = errors.New("a candidate name is too long")
)

var (
	ErrUnauthorized         = errors.New("caller is not the election authority")
	ErrElectionNotFound     = errors.New("election not found")
	ErrBallotNotFound       = errors.New("ballot not found")
	ErrInvalidElectionInput = errors.New("invalid election input")
	ErrConflict             = errors.New("election record conflict")
	ErrIdempotencyConflict  = errors.New("idempotency key conflict")
)
