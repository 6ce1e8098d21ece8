package contracts

import (
	"encoding/json"
	"io/fs"
	"sort"
	"testing"
	"time"

	"d21vote/contexts/elections/d21-voting/application/commands"
	"d21vote/internal/shared/events"

	"github.com/stretchr/testify/require"
)

type schema struct {
	Title      string                     `json:"title"`
	Required   []string                   `json:"required"`
	Properties map[string]json.RawMessage `json:"properties"`
}

func loadSchema(t *testing.T, name string) schema {
	t.Helper()
	raw, err := fs.ReadFile(EventsV1, "events/v1/"+name)
	require.NoError(t, err)
	var out schema
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func jsonKeys(t *testing.T, value any) []string {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &fields))
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}

func TestContractJSONArtifactsAreValid(t *testing.T) {
	matches, err := fs.Glob(EventsV1, "events/v1/*.json")
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, path := range matches {
		raw, err := fs.ReadFile(EventsV1, path)
		require.NoError(t, err)
		var payload any
		require.NoErrorf(t, json.Unmarshal(raw, &payload), "invalid json contract file %s", path)
	}
}

func TestPayloadSchemasMatchEmittedFields(t *testing.T) {
	tests := []struct {
		file    string
		topic   string
		payload any
	}{
		{
			file:  "vote.casted.schema.json",
			topic: events.TopicVoteCasted,
			payload: commands.VoteCastedPayload{
				Voter:              "voter-1",
				Election:           "election-1",
				CandidatesVotedFor: []int{1},
				Timestamp:          1,
			},
		},
		{
			file:  "election.finalized.schema.json",
			topic: events.TopicElectionFinalized,
			payload: commands.ElectionFinalizedPayload{
				Election:        "election-1",
				WinnerIndex:     0,
				WinnerName:      "Alice",
				WinnerVoteCount: 1,
				Timestamp:       1,
			},
		},
		{
			file: "envelope.schema.json",
			payload: events.Envelope{
				EventID:    "evt-1",
				EventType:  events.TopicVoteCasted,
				OccurredAt: time.Unix(1, 0).UTC(),
				Data:       json.RawMessage(`{}`),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			doc := loadSchema(t, tt.file)
			if tt.topic != "" {
				require.Equal(t, tt.topic, doc.Title)
			}

			properties := make([]string, 0, len(doc.Properties))
			for key := range doc.Properties {
				properties = append(properties, key)
			}
			require.Equal(t, sortedCopy(properties), jsonKeys(t, tt.payload))
			require.Subset(t, properties, doc.Required)
		})
	}
}
