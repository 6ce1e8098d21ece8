package cache

import (
	"context"
	"testing"
	"time"

	"d21vote/contexts/elections/d21-voting/adapters/memory"
	"d21vote/contexts/elections/d21-voting/domain/entities"
	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/stretchr/testify/require"
)

type countingRepository struct {
	ports.ElectionRepository
	gets int
}

func (r *countingRepository) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	r.gets++
	return r.ElectionRepository.GetElection(ctx, electionID)
}

func TestFinalizedElectionsCachesOnlyFinalized(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	election, err := entities.NewElection(entities.NewElectionInput{
		ElectionID:     "election-1",
		Authority:      "authority-1",
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		CandidateNames: []string{"Alice", "Bob"},
		CandidateCount: 2,
	})
	require.NoError(t, err)

	backing := &countingRepository{ElectionRepository: memory.NewStore([]entities.Election{election})}
	repo, err := NewFinalizedElections(backing, 8)
	require.NoError(t, err)

	_, err = repo.GetElection(ctx, "election-1")
	require.NoError(t, err)
	_, err = repo.GetElection(ctx, "election-1")
	require.NoError(t, err)
	require.Equal(t, 2, backing.gets)
	require.Equal(t, 0, repo.Len())

	finalized, err := repo.ApplyTally(ctx, "election-1", func(e *entities.Election) ([]ports.EventEnvelope, error) {
		_, err := e.Tally(e.EndTime.Add(time.Second))
		return nil, err
	})
	require.NoError(t, err)
	require.True(t, finalized.IsFinalized)
	require.Equal(t, 1, repo.Len())

	cached, err := repo.GetElection(ctx, "election-1")
	require.NoError(t, err)
	require.Equal(t, 2, backing.gets)
	require.Equal(t, finalized, cached)

	cached.Candidates[0].Name = "mutated"
	again, err := repo.GetElection(ctx, "election-1")
	require.NoError(t, err)
	require.Equal(t, "Alice", again.Candidates[0].Name)
}
