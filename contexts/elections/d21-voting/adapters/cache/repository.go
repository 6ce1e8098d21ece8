package cache

import (
	"context"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	"d21vote/contexts/elections/d21-voting/ports"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FinalizedElections decorates an ElectionRepository with an LRU of finalized
// elections. A finalized election never changes again, so a cached copy can
// be served without touching the store. Open elections always pass through.
type FinalizedElections struct {
	ports.ElectionRepository
	cache *lru.Cache[string, entities.Election]
}

func NewFinalizedElections(next ports.ElectionRepository, size int) (*FinalizedElections, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, entities.Election](size)
	if err != nil {
		return nil, err
	}
	return &FinalizedElections{ElectionRepository: next, cache: cache}, nil
}

func (r *FinalizedElections) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	if election, ok := r.cache.Get(electionID); ok {
		return election.Clone(), nil
	}
	election, err := r.ElectionRepository.GetElection(ctx, electionID)
	if err != nil {
		return entities.Election{}, err
	}
	r.remember(election)
	return election, nil
}

func (r *FinalizedElections) ApplyTally(
	ctx context.Context,
	electionID string,
	mutate ports.TallyMutation,
) (entities.Election, error) {
	election, err := r.ElectionRepository.ApplyTally(ctx, electionID, mutate)
	if err != nil {
		return entities.Election{}, err
	}
	r.remember(election)
	return election, nil
}

func (r *FinalizedElections) Len() int {
	return r.cache.Len()
}

func (r *FinalizedElections) remember(election entities.Election) {
	if election.IsFinalized {
		r.cache.Add(election.ElectionID, election.Clone())
	}
}

var _ ports.ElectionRepository = (*FinalizedElections)(nil)
