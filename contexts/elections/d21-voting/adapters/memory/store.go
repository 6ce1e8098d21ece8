package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	seq       uint64
	published bool
}

type ballotKey struct {
	electionID string
	voterID    string
}

// Store keeps elections, ballots, idempotency records and the outbox in
// process memory. A single mutex serializes every mutation, which gives
// ApplyVote and ApplyTally the required read-modify-write atomicity.
type Store struct {
	mu sync.RWMutex

	elections   map[string]entities.Election
	ballots     map[ballotKey]entities.Ballot
	idempotency map[string]ports.IdempotencyRecord
	outbox      map[string]outboxRecord
	outboxSeq   uint64
}

func NewStore(seed []entities.Election) *Store {
	elections := make(map[string]entities.Election, len(seed))
	for _, election := range seed {
		elections[election.ElectionID] = election.Clone()
	}
	return &Store{
		elections:   elections,
		ballots:     make(map[ballotKey]entities.Ballot),
		idempotency: make(map[string]ports.IdempotencyRecord),
		outbox:      make(map[string]outboxRecord),
	}
}

func (s *Store) CreateElection(
	_ context.Context,
	election entities.Election,
	idempotency *ports.IdempotencyRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID := strings.TrimSpace(election.ElectionID)
	if electionID == "" {
		return domainerrors.ErrInvalidElectionInput
	}
	if _, exists := s.elections[electionID]; exists {
		return domainerrors.ErrConflict
	}
	if err := s.checkIdempotency(idempotency); err != nil {
		return err
	}
	s.elections[electionID] = election.Clone()
	s.commitIdempotency(idempotency)
	return nil
}

func (s *Store) GetElection(_ context.Context, electionID string) (entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	election, ok := s.elections[strings.TrimSpace(electionID)]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return election.Clone(), nil
}

func (s *Store) ListElections(_ context.Context) ([]entities.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Election, 0, len(s.elections))
	for _, election := range s.elections {
		items = append(items, election.Clone())
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ElectionID < items[j].ElectionID
	})
	return items, nil
}

func (s *Store) GetBallot(_ context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ballot, ok := s.ballots[ballotKey{electionID: strings.TrimSpace(electionID), voterID: strings.TrimSpace(voterID)}]
	if !ok {
		return entities.Ballot{}, false, nil
	}
	return ballot.Clone(), true, nil
}

func (s *Store) ApplyVote(
	_ context.Context,
	electionID string,
	voterID string,
	idempotency *ports.IdempotencyRecord,
	mutate ports.VoteMutation,
) (entities.Ballot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID = strings.TrimSpace(electionID)
	stored, ok := s.elections[electionID]
	if !ok {
		return entities.Ballot{}, domainerrors.ErrElectionNotFound
	}
	key := ballotKey{electionID: electionID, voterID: strings.TrimSpace(voterID)}

	// Mutate copies so a rejected batch leaves the stored records untouched.
	election := stored.Clone()
	ballot := s.ballots[key].Clone()
	envelopes, err := mutate(&election, &ballot)
	if err != nil {
		return entities.Ballot{}, err
	}
	records, err := s.prepareOutbox(envelopes)
	if err != nil {
		return entities.Ballot{}, err
	}
	if err := s.checkIdempotency(idempotency); err != nil {
		return entities.Ballot{}, err
	}

	s.elections[electionID] = election
	s.ballots[key] = ballot
	s.commitOutbox(records)
	s.commitIdempotency(idempotency)
	return ballot.Clone(), nil
}

func (s *Store) ApplyTally(
	_ context.Context,
	electionID string,
	mutate ports.TallyMutation,
) (entities.Election, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	electionID = strings.TrimSpace(electionID)
	stored, ok := s.elections[electionID]
	if !ok {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	election := stored.Clone()
	envelopes, err := mutate(&election)
	if err != nil {
		return entities.Election{}, err
	}
	records, err := s.prepareOutbox(envelopes)
	if err != nil {
		return entities.Election{}, err
	}

	s.elections[electionID] = election
	s.commitOutbox(records)
	return election.Clone(), nil
}

func (s *Store) prepareOutbox(envelopes []ports.EventEnvelope) ([]outboxRecord, error) {
	records := make([]outboxRecord, 0, len(envelopes))
	for _, envelope := range envelopes {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, err
		}
		outboxID := strings.TrimSpace(envelope.EventID)
		if outboxID == "" {
			outboxID = uuid.NewString()
		}
		if _, exists := s.outbox[outboxID]; exists {
			return nil, domainerrors.ErrConflict
		}
		createdAt := envelope.OccurredAt.UTC()
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		records = append(records, outboxRecord{
			message: ports.OutboxMessage{
				OutboxID:     outboxID,
				EventType:    strings.TrimSpace(envelope.EventType),
				PartitionKey: strings.TrimSpace(envelope.PartitionKey),
				Payload:      payload,
				CreatedAt:    createdAt,
			},
		})
	}
	return records, nil
}

func (s *Store) commitOutbox(records []outboxRecord) {
	for _, record := range records {
		s.outboxSeq++
		record.seq = s.outboxSeq
		s.outbox[record.message.OutboxID] = record
	}
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].seq < rows[j].seq
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkIdempotency(&record); err != nil {
		return err
	}
	s.commitIdempotency(&record)
	return nil
}

// checkIdempotency must run under the write lock.
func (s *Store) checkIdempotency(record *ports.IdempotencyRecord) error {
	if record == nil {
		return nil
	}
	existing, exists := s.idempotency[strings.TrimSpace(record.Key)]
	if exists && (existing.RequestHash != strings.TrimSpace(record.RequestHash) ||
		existing.ResourceID != strings.TrimSpace(record.ResourceID)) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

// commitIdempotency keeps the first record stored under a key.
func (s *Store) commitIdempotency(record *ports.IdempotencyRecord) {
	if record == nil {
		return
	}
	key := strings.TrimSpace(record.Key)
	if _, exists := s.idempotency[key]; exists {
		return
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.ElectionRepository = (*Store)(nil)
	_ ports.IdempotencyStore   = (*Store)(nil)
	_ ports.OutboxRepository   = (*Store)(nil)
	_ ports.Clock              = (*Store)(nil)
	_ ports.IDGenerator        = (*Store)(nil)
)
