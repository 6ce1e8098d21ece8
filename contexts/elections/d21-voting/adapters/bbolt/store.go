package bboltadapter

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	electionsBucket       = []byte("elections")
	ballotsBucket         = []byte("ballots")
	idempotencyBucket     = []byte("idempotency")
	outboxPendingBucket   = []byte("outbox_pending")
	outboxPublishedBucket = []byte("outbox_published")
	outboxIndexBucket     = []byte("outbox_index")
)

// Store is the embedded keyed store. Every ApplyVote and ApplyTally runs in a
// single bbolt write transaction, and bbolt admits one writer at a time.
type Store struct {
	db     *bolt.DB
	logger *slog.Logger
}

// Open opens or creates the database file at path and ensures every bucket
// exists.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			electionsBucket,
			ballotsBucket,
			idempotencyBucket,
			outboxPendingBucket,
			outboxPublishedBucket,
			outboxIndexBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateElection(
	_ context.Context,
	election entities.Election,
	idempotency *ports.IdempotencyRecord,
) error {
	electionID := strings.TrimSpace(election.ElectionID)
	if electionID == "" {
		return domainerrors.ErrInvalidElectionInput
	}
	raw, err := encodeElection(election)
	if err != nil {
		return s.logError("election_store_encode_failed", err, "election_id", electionID)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(electionsBucket)
		if bucket.Get([]byte(electionID)) != nil {
			return domainerrors.ErrConflict
		}
		if err := bucket.Put([]byte(electionID), raw); err != nil {
			return err
		}
		return putIdempotency(tx, idempotency)
	})
	if err != nil && !isPassThrough(err) {
		return s.logError("election_store_create_failed", err, "election_id", electionID)
	}
	return err
}

func (s *Store) GetElection(_ context.Context, electionID string) (entities.Election, error) {
	electionID = strings.TrimSpace(electionID)
	var election entities.Election
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		election, err = readElection(tx, electionID)
		return err
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrElectionNotFound) {
			return entities.Election{}, err
		}
		return entities.Election{}, s.logError("election_store_get_failed", err, "election_id", electionID)
	}
	return election, nil
}

func (s *Store) ListElections(_ context.Context) ([]entities.Election, error) {
	items := make([]entities.Election, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(electionsBucket).ForEach(func(k, v []byte) error {
			election, err := decodeElection(string(k), v)
			if err != nil {
				return err
			}
			items = append(items, election)
			return nil
		})
	})
	if err != nil {
		return nil, s.logError("election_store_list_failed", err)
	}
	return items, nil
}

func (s *Store) GetBallot(_ context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	electionID = strings.TrimSpace(electionID)
	voterID = strings.TrimSpace(voterID)
	var (
		ballot entities.Ballot
		found  bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		ballot, found, err = readBallot(tx, electionID, voterID)
		return err
	})
	if err != nil {
		return entities.Ballot{}, false, s.logError("election_store_get_ballot_failed", err,
			"election_id", electionID,
			"voter_id", voterID,
		)
	}
	return ballot, found, nil
}

func (s *Store) ApplyVote(
	_ context.Context,
	electionID string,
	voterID string,
	idempotency *ports.IdempotencyRecord,
	mutate ports.VoteMutation,
) (entities.Ballot, error) {
	electionID = strings.TrimSpace(electionID)
	voterID = strings.TrimSpace(voterID)
	var result entities.Ballot
	err := s.db.Update(func(tx *bolt.Tx) error {
		election, err := readElection(tx, electionID)
		if err != nil {
			return err
		}
		ballot, _, err := readBallot(tx, electionID, voterID)
		if err != nil {
			return err
		}
		envelopes, err := mutate(&election, &ballot)
		if err != nil {
			return err
		}
		if err := writeElection(tx, election); err != nil {
			return err
		}
		raw, err := encodeBallot(ballot)
		if err != nil {
			return err
		}
		if err := tx.Bucket(ballotsBucket).Put(ballotKey(electionID, voterID), raw); err != nil {
			return err
		}
		if err := appendOutbox(tx, envelopes); err != nil {
			return err
		}
		if err := putIdempotency(tx, idempotency); err != nil {
			return err
		}
		result = ballot
		return nil
	})
	if err != nil {
		if isPassThrough(err) {
			return entities.Ballot{}, err
		}
		return entities.Ballot{}, s.logError("election_store_apply_vote_failed", err,
			"election_id", electionID,
			"voter_id", voterID,
		)
	}
	return result, nil
}

func (s *Store) ApplyTally(
	_ context.Context,
	electionID string,
	mutate ports.TallyMutation,
) (entities.Election, error) {
	electionID = strings.TrimSpace(electionID)
	var result entities.Election
	err := s.db.Update(func(tx *bolt.Tx) error {
		election, err := readElection(tx, electionID)
		if err != nil {
			return err
		}
		envelopes, err := mutate(&election)
		if err != nil {
			return err
		}
		if err := writeElection(tx, election); err != nil {
			return err
		}
		if err := appendOutbox(tx, envelopes); err != nil {
			return err
		}
		result = election
		return nil
	})
	if err != nil {
		if isPassThrough(err) {
			return entities.Election{}, err
		}
		return entities.Election{}, s.logError("election_store_apply_tally_failed", err, "election_id", electionID)
	}
	return result, nil
}

type idempotencyValue struct {
	RequestHash string    `json:"request_hash"`
	ResourceID  string    `json:"resource_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var (
		record ports.IdempotencyRecord
		found  bool
	)
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(idempotencyBucket)
		raw := bucket.Get([]byte(key))
		if raw == nil {
			return nil
		}
		var value idempotencyValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		if !value.ExpiresAt.IsZero() && !now.UTC().Before(value.ExpiresAt) {
			return bucket.Delete([]byte(key))
		}
		record = ports.IdempotencyRecord{
			Key:         key,
			RequestHash: value.RequestHash,
			ResourceID:  value.ResourceID,
			ExpiresAt:   value.ExpiresAt.UTC(),
		}
		found = true
		return nil
	})
	if err != nil {
		return ports.IdempotencyRecord{}, false, s.logError("election_store_idempotency_get_failed", err,
			"idempotency_key", key,
		)
	}
	return record, found, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putIdempotency(tx, &record)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		return s.logError("election_store_idempotency_put_failed", err, "idempotency_key", strings.TrimSpace(record.Key))
	}
	return err
}

// putIdempotency keeps the first record stored under a key and refuses a
// different request under the same key.
func putIdempotency(tx *bolt.Tx, record *ports.IdempotencyRecord) error {
	if record == nil {
		return nil
	}
	key := []byte(strings.TrimSpace(record.Key))
	value := idempotencyValue{
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	bucket := tx.Bucket(idempotencyBucket)
	if raw := bucket.Get(key); raw != nil {
		var existing idempotencyValue
		if err := json.Unmarshal(raw, &existing); err != nil {
			return err
		}
		if existing.RequestHash != value.RequestHash || existing.ResourceID != value.ResourceID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return bucket.Put(key, raw)
}

type outboxValue struct {
	OutboxID     string    `json:"outbox_id"`
	EventType    string    `json:"event_type"`
	PartitionKey string    `json:"partition_key"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
	PublishedAt  time.Time `json:"published_at"`
}

// ListPendingOutbox walks the pending bucket in key order; keys are the
// bucket sequence, so that is creation order.
func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, limit)
	err := s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(outboxPendingBucket).Cursor()
		for k, v := cursor.First(); k != nil && len(items) < limit; k, v = cursor.Next() {
			var value outboxValue
			if err := json.Unmarshal(v, &value); err != nil {
				return err
			}
			items = append(items, ports.OutboxMessage{
				OutboxID:     value.OutboxID,
				EventType:    value.EventType,
				PartitionKey: value.PartitionKey,
				Payload:      value.Payload,
				CreatedAt:    value.CreatedAt.UTC(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.logError("election_store_list_pending_outbox_failed", err, "limit", limit)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	outboxID = strings.TrimSpace(outboxID)
	err := s.db.Update(func(tx *bolt.Tx) error {
		seq := tx.Bucket(outboxIndexBucket).Get([]byte(outboxID))
		if seq == nil {
			return domainerrors.ErrConflict
		}
		pending := tx.Bucket(outboxPendingBucket)
		raw := pending.Get(seq)
		if raw == nil {
			return domainerrors.ErrConflict
		}
		var value outboxValue
		if err := json.Unmarshal(raw, &value); err != nil {
			return err
		}
		value.PublishedAt = publishedAt.UTC()
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := tx.Bucket(outboxPublishedBucket).Put(seq, encoded); err != nil {
			return err
		}
		return pending.Delete(seq)
	})
	if err != nil && !errors.Is(err, domainerrors.ErrConflict) {
		return s.logError("election_store_mark_outbox_published_failed", err, "outbox_id", outboxID)
	}
	return err
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "elections/d21-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("election store operation failed", fields...)
	return err
}

func readElection(tx *bolt.Tx, electionID string) (entities.Election, error) {
	raw := tx.Bucket(electionsBucket).Get([]byte(electionID))
	if raw == nil {
		return entities.Election{}, domainerrors.ErrElectionNotFound
	}
	return decodeElection(electionID, raw)
}

func writeElection(tx *bolt.Tx, election entities.Election) error {
	raw, err := encodeElection(election)
	if err != nil {
		return err
	}
	return tx.Bucket(electionsBucket).Put([]byte(election.ElectionID), raw)
}

// readBallot returns a zero ballot when none exists yet. A stored ballot whose
// ids do not match the requested pair is a key collision and is refused.
func readBallot(tx *bolt.Tx, electionID string, voterID string) (entities.Ballot, bool, error) {
	raw := tx.Bucket(ballotsBucket).Get(ballotKey(electionID, voterID))
	if raw == nil {
		return entities.Ballot{}, false, nil
	}
	ballot, err := decodeBallot(raw)
	if err != nil {
		return entities.Ballot{}, false, err
	}
	if ballot.ElectionID != electionID || ballot.VoterID != voterID {
		return entities.Ballot{}, false, domainerrors.ErrConflict
	}
	return ballot, true, nil
}

func appendOutbox(tx *bolt.Tx, envelopes []ports.EventEnvelope) error {
	pending := tx.Bucket(outboxPendingBucket)
	index := tx.Bucket(outboxIndexBucket)
	for _, envelope := range envelopes {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		value := outboxValue{
			OutboxID:     strings.TrimSpace(envelope.EventID),
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		}
		if value.OutboxID == "" {
			value.OutboxID = uuid.NewString()
		}
		if index.Get([]byte(value.OutboxID)) != nil {
			return domainerrors.ErrConflict
		}
		next, err := pending.NextSequence()
		if err != nil {
			return err
		}
		seq := binary.BigEndian.AppendUint64(nil, next)
		encoded, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if err := pending.Put(seq, encoded); err != nil {
			return err
		}
		if err := index.Put([]byte(value.OutboxID), seq); err != nil {
			return err
		}
	}
	return nil
}

// isPassThrough reports whether err is a typed election failure that callers
// branch on. Those are returned as-is and not logged as store failures.
func isPassThrough(err error) bool {
	for _, target := range []error{
		domainerrors.ErrElectionNotFound,
		domainerrors.ErrElectionNotStarted,
		domainerrors.ErrElectionAlreadyEnded,
		domainerrors.ErrElectionAlreadyFinalized,
		domainerrors.ErrTallyNotAllowedYet,
		domainerrors.ErrVotesExhausted,
		domainerrors.ErrAlreadyVotedForCandidate,
		domainerrors.ErrDuplicateVoteInSingleTx,
		domainerrors.ErrInvalidCandidateIndex,
		domainerrors.ErrUnauthorized,
		domainerrors.ErrConflict,
		domainerrors.ErrIdempotencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

var (
	_ ports.ElectionRepository = (*Store)(nil)
	_ ports.IdempotencyStore   = (*Store)(nil)
	_ ports.OutboxRepository   = (*Store)(nil)
)
