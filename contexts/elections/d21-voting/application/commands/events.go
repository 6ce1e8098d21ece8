package commands

import (
	"encoding/json"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	"d21vote/contexts/elections/d21-voting/ports"
)

// VoteCastedPayload is the data section of a vote.casted envelope. Candidates
// keep the order in which the voter submitted them.
type VoteCastedPayload struct {
	Voter              string `json:"voter"`
	Election           string `json:"election"`
	CandidatesVotedFor []int  `json:"candidates_voted_for"`
	Timestamp          int64  `json:"timestamp"`
}

// ElectionFinalizedPayload is the data section of an election.finalized
// envelope. It is only produced when the tally found a winner.
type ElectionFinalizedPayload struct {
	Election        string `json:"election"`
	WinnerIndex     int    `json:"winner_index"`
	WinnerName      string `json:"winner_name"`
	WinnerVoteCount uint64 `json:"winner_vote_count"`
	Timestamp       int64  `json:"timestamp"`
}

func voteCastedEnvelope(eventID string, source string, event entities.VoteCasted) (ports.EventEnvelope, error) {
	return newElectionEnvelope(eventID, ports.TopicVoteCasted, source, event.ElectionID, event.Timestamp, VoteCastedPayload{
		Voter:              event.VoterID,
		Election:           event.ElectionID,
		CandidatesVotedFor: event.CandidatesVotedFor,
		Timestamp:          event.Timestamp.Unix(),
	})
}

func electionFinalizedEnvelope(eventID string, source string, event entities.ElectionFinalized) (ports.EventEnvelope, error) {
	return newElectionEnvelope(eventID, ports.TopicElectionFinalized, source, event.ElectionID, event.Timestamp, ElectionFinalizedPayload{
		Election:        event.ElectionID,
		WinnerIndex:     event.WinnerIndex,
		WinnerName:      event.WinnerName,
		WinnerVoteCount: event.WinnerVoteCount,
		Timestamp:       event.Timestamp.Unix(),
	})
}

func newElectionEnvelope(
	eventID string,
	eventType string,
	source string,
	electionID string,
	occurredAt time.Time,
	data any,
) (ports.EventEnvelope, error) {
	// Every event is partitioned by election so consumers observe votes and
	// the final tally of one election in order.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    source,
		TraceID:          eventID,
		SchemaVersion:    ports.SchemaVersionV1,
		PartitionKeyPath: "election_id",
		PartitionKey:     electionID,
		Data:             payload,
	}, nil
}
