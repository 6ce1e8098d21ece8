package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates every table the repository reads and writes.
func Migrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(
		&electionModel{},
		&candidateModel{},
		&ballotModel{},
		&idempotencyModel{},
		&outboxModel{},
	)
}

func (r *Repository) CreateElection(
	ctx context.Context,
	election entities.Election,
	idempotency *ports.IdempotencyRecord,
) error {
	row := electionModelFromEntity(election)
	candidates := candidateModelsFromEntity(election)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(candidates) > 0 {
			if err := tx.Create(&candidates).Error; err != nil {
				return err
			}
		}
		return putIdempotency(tx, idempotency)
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrIdempotencyConflict) {
			return err
		}
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return r.logError("election_repo_create_failed", err,
			"election_id", row.ID,
			"authority_id", row.Authority,
		)
	}
	return nil
}

func (r *Repository) GetElection(ctx context.Context, electionID string) (entities.Election, error) {
	election, err := loadElection(r.db.WithContext(ctx), strings.TrimSpace(electionID), false)
	if err != nil {
		if errors.Is(err, domainerrors.ErrElectionNotFound) {
			return entities.Election{}, err
		}
		return entities.Election{}, r.logError("election_repo_get_failed", err, "election_id", strings.TrimSpace(electionID))
	}
	return election, nil
}

func (r *Repository) ListElections(ctx context.Context) ([]entities.Election, error) {
	var rows []electionModel
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_failed", err)
	}
	if len(rows) == 0 {
		return []entities.Election{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var candidates []candidateModel
	if err := r.db.WithContext(ctx).
		Where("election_id IN ?", ids).
		Order("election_id ASC, position ASC").
		Find(&candidates).Error; err != nil {
		return nil, r.logError("election_repo_list_candidates_failed", err)
	}
	byElection := make(map[string][]candidateModel, len(rows))
	for _, candidate := range candidates {
		byElection[candidate.ElectionID] = append(byElection[candidate.ElectionID], candidate)
	}
	items := make([]entities.Election, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity(byElection[row.ID]))
	}
	return items, nil
}

func (r *Repository) GetBallot(ctx context.Context, electionID string, voterID string) (entities.Ballot, bool, error) {
	var row ballotModel
	err := r.db.WithContext(ctx).
		Where("election_id = ? AND voter_id = ?", strings.TrimSpace(electionID), strings.TrimSpace(voterID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Ballot{}, false, nil
		}
		return entities.Ballot{}, false, r.logError("election_repo_get_ballot_failed", err,
			"election_id", strings.TrimSpace(electionID),
			"voter_id", strings.TrimSpace(voterID),
		)
	}
	ballot, err := row.toEntity()
	if err != nil {
		return entities.Ballot{}, false, r.logError("election_repo_decode_ballot_failed", err,
			"election_id", row.ElectionID,
			"voter_id", row.VoterID,
		)
	}
	return ballot, true, nil
}

// ApplyVote locks the election row for the duration of the transaction, so
// batches and the tally for one election are serialized.
func (r *Repository) ApplyVote(
	ctx context.Context,
	electionID string,
	voterID string,
	idempotency *ports.IdempotencyRecord,
	mutate ports.VoteMutation,
) (entities.Ballot, error) {
	electionID = strings.TrimSpace(electionID)
	voterID = strings.TrimSpace(voterID)
	var result entities.Ballot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		election, err := loadElection(tx, electionID, true)
		if err != nil {
			return err
		}
		var ballotRow ballotModel
		ballot := entities.Ballot{}
		existing := true
		if err := tx.Where("election_id = ? AND voter_id = ?", electionID, voterID).
			First(&ballotRow).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			existing = false
		} else {
			ballot, err = ballotRow.toEntity()
			if err != nil {
				return err
			}
		}

		before := election.Clone()
		envelopes, err := mutate(&election, &ballot)
		if err != nil {
			return err
		}
		if err := saveCandidateCounts(tx, before, election); err != nil {
			return err
		}
		if err := tx.Model(&electionModel{}).
			Where("id = ?", electionID).
			Update("updated_at", election.UpdatedAt.UTC()).Error; err != nil {
			return err
		}
		row, err := ballotModelFromEntity(electionID, voterID, ballot)
		if err != nil {
			return err
		}
		if existing {
			if err := tx.Model(&ballotModel{}).
				Where("election_id = ? AND voter_id = ?", electionID, voterID).
				Updates(map[string]any{
					"votes_cast_count": row.VotesCastCount,
					"voted_for":        row.VotedFor,
					"updated_at":       row.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		} else if err := tx.Create(&row).Error; err != nil {
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
		if isDomainError(err) {
			return entities.Ballot{}, err
		}
		if isUniqueViolation(err) {
			return entities.Ballot{}, domainerrors.ErrConflict
		}
		return entities.Ballot{}, r.logError("election_repo_apply_vote_failed", err,
			"election_id", electionID,
			"voter_id", voterID,
		)
	}
	return result, nil
}

func (r *Repository) ApplyTally(
	ctx context.Context,
	electionID string,
	mutate ports.TallyMutation,
) (entities.Election, error) {
	electionID = strings.TrimSpace(electionID)
	var result entities.Election
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		election, err := loadElection(tx, electionID, true)
		if err != nil {
			return err
		}
		envelopes, err := mutate(&election)
		if err != nil {
			return err
		}
		row := electionModelFromEntity(election)
		if err := tx.Model(&electionModel{}).
			Where("id = ?", electionID).
			Updates(map[string]any{
				"is_finalized": row.IsFinalized,
				"winner_index": row.WinnerIndex,
				"updated_at":   row.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		if err := appendOutbox(tx, envelopes); err != nil {
			return err
		}
		result = election
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return entities.Election{}, err
		}
		return entities.Election{}, r.logError("election_repo_apply_tally_failed", err, "election_id", electionID)
	}
	return result, nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("election_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && !now.UTC().Before(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("election_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		ResourceID:  row.ResourceID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	err := putIdempotency(r.db.WithContext(ctx), &record)
	if err != nil && !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		return r.logError("election_repo_idempotency_put_failed", err, "idempotency_key", strings.TrimSpace(record.Key))
	}
	return err
}

// putIdempotency keeps the first row stored under a key and refuses a
// different request under the same key. Inside a transaction the conflict
// rolls back the change it was meant to protect.
func putIdempotency(db *gorm.DB, record *ports.IdempotencyRecord) error {
	if record == nil {
		return nil
	}
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		ResourceID:  strings.TrimSpace(record.ResourceID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	create := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return create.Error
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing idempotencyModel
	if err := db.Where("key = ?", row.Key).First(&existing).Error; err != nil {
		return err
	}
	if existing.RequestHash != row.RequestHash || existing.ResourceID != row.ResourceID {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("seq ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "elections/d21-voting",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("election repository operation failed", fields...)
	return err
}

func loadElection(db *gorm.DB, electionID string, forUpdate bool) (entities.Election, error) {
	query := db
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row electionModel
	if err := query.Where("id = ?", electionID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, domainerrors.ErrElectionNotFound
		}
		return entities.Election{}, err
	}
	var candidates []candidateModel
	if err := db.Where("election_id = ?", electionID).
		Order("position ASC").
		Find(&candidates).Error; err != nil {
		return entities.Election{}, err
	}
	return row.toEntity(candidates), nil
}

// saveCandidateCounts writes only the candidates whose counters moved.
func saveCandidateCounts(tx *gorm.DB, before entities.Election, after entities.Election) error {
	for i, candidate := range after.Candidates {
		if i < len(before.Candidates) && before.Candidates[i].VoteCount == candidate.VoteCount {
			continue
		}
		if err := tx.Model(&candidateModel{}).
			Where("election_id = ? AND position = ?", after.ElectionID, i).
			Update("vote_count", int64(candidate.VoteCount)).Error; err != nil {
			return err
		}
	}
	return nil
}

func appendOutbox(tx *gorm.DB, envelopes []ports.EventEnvelope) error {
	for _, envelope := range envelopes {
		payload, err := json.Marshal(envelope)
		if err != nil {
			return err
		}
		row := outboxModel{
			OutboxID:     strings.TrimSpace(envelope.EventID),
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			Status:       outboxStatusPending,
			CreatedAt:    envelope.OccurredAt.UTC(),
		}
		if row.OutboxID == "" {
			row.OutboxID = uuid.NewString()
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

type electionModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	Authority     string    `gorm:"column:authority;index"`
	StartTime     time.Time `gorm:"column:start_time"`
	EndTime       time.Time `gorm:"column:end_time"`
	VotesPerVoter int16     `gorm:"column:votes_per_voter"`
	IsFinalized   bool      `gorm:"column:is_finalized"`
	WinnerIndex   *int16    `gorm:"column:winner_index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (electionModel) TableName() string {
	return "elections"
}

func electionModelFromEntity(election entities.Election) electionModel {
	row := electionModel{
		ID:            strings.TrimSpace(election.ElectionID),
		Authority:     strings.TrimSpace(election.Authority),
		StartTime:     election.StartTime.UTC(),
		EndTime:       election.EndTime.UTC(),
		VotesPerVoter: int16(election.VotesPerVoter),
		IsFinalized:   election.IsFinalized,
		CreatedAt:     election.CreatedAt.UTC(),
		UpdatedAt:     election.UpdatedAt.UTC(),
	}
	if index, ok := election.Winner.Get(); ok {
		value := int16(index)
		row.WinnerIndex = &value
	}
	return row
}

func (m electionModel) toEntity(candidates []candidateModel) entities.Election {
	election := entities.Election{
		ElectionID:    m.ID,
		Authority:     m.Authority,
		StartTime:     m.StartTime.UTC(),
		EndTime:       m.EndTime.UTC(),
		VotesPerVoter: uint8(m.VotesPerVoter),
		IsFinalized:   m.IsFinalized,
		Winner:        entities.UnsetWinner(),
		Candidates:    make([]entities.Candidate, 0, len(candidates)),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
	if m.WinnerIndex != nil {
		election.Winner = entities.WinnerAt(int(*m.WinnerIndex))
	}
	for _, candidate := range candidates {
		election.Candidates = append(election.Candidates, entities.Candidate{
			Name:      candidate.Name,
			VoteCount: uint64(candidate.VoteCount),
		})
	}
	return election
}

type candidateModel struct {
	ElectionID string `gorm:"column:election_id;primaryKey"`
	Position   int16  `gorm:"column:position;primaryKey"`
	Name       string `gorm:"column:name;size:50"`
	VoteCount  int64  `gorm:"column:vote_count"`
}

func (candidateModel) TableName() string {
	return "election_candidates"
}

func candidateModelsFromEntity(election entities.Election) []candidateModel {
	rows := make([]candidateModel, 0, len(election.Candidates))
	for i, candidate := range election.Candidates {
		rows = append(rows, candidateModel{
			ElectionID: strings.TrimSpace(election.ElectionID),
			Position:   int16(i),
			Name:       candidate.Name,
			VoteCount:  int64(candidate.VoteCount),
		})
	}
	return rows
}

type ballotModel struct {
	ElectionID     string    `gorm:"column:election_id;primaryKey"`
	VoterID        string    `gorm:"column:voter_id;primaryKey"`
	VotesCastCount int16     `gorm:"column:votes_cast_count"`
	VotedFor       []byte    `gorm:"column:voted_for;type:jsonb"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (ballotModel) TableName() string {
	return "election_ballots"
}

func ballotModelFromEntity(electionID string, voterID string, ballot entities.Ballot) (ballotModel, error) {
	votedFor := ballot.VotedFor
	if votedFor == nil {
		votedFor = []int{}
	}
	raw, err := json.Marshal(votedFor)
	if err != nil {
		return ballotModel{}, err
	}
	return ballotModel{
		ElectionID:     electionID,
		VoterID:        voterID,
		VotesCastCount: int16(ballot.VotesCastCount),
		VotedFor:       raw,
		UpdatedAt:      ballot.UpdatedAt.UTC(),
	}, nil
}

func (m ballotModel) toEntity() (entities.Ballot, error) {
	var votedFor []int
	if len(m.VotedFor) > 0 {
		if err := json.Unmarshal(m.VotedFor, &votedFor); err != nil {
			return entities.Ballot{}, err
		}
	}
	return entities.Ballot{
		VoterID:        m.VoterID,
		ElectionID:     m.ElectionID,
		VotesCastCount: uint8(m.VotesCastCount),
		VotedFor:       votedFor,
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	ResourceID  string    `gorm:"column:resource_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "election_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	Seq          int64      `gorm:"column:seq;autoIncrement"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key;index"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "election_outbox"
}

// isDomainError reports whether err is one of the typed election failures a
// mutation may return. Those pass through untouched and unlogged.
func isDomainError(err error) bool {
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
		domainerrors.ErrIdempotencyConflict,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var (
	_ ports.ElectionRepository = (*Repository)(nil)
	_ ports.IdempotencyStore   = (*Repository)(nil)
	_ ports.OutboxRepository   = (*Repository)(nil)
)
