package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"d21vote/contexts/elections/d21-voting/domain/entities"
	domainerrors "d21vote/contexts/elections/d21-voting/domain/errors"
	"d21vote/contexts/elections/d21-voting/ports"
)

// ElectionUseCase orchestrates the three election commands: creation by an
// authority, vote casting, and the authority-only tally. State changes and
// their outbox events are committed together by the repository.
type ElectionUseCase struct {
	Elections      ports.ElectionRepository
	Idempotency    ports.IdempotencyStore
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	SourceService  string
	Logger         *slog.Logger
}

func (uc ElectionUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc ElectionUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc ElectionUseCase) sourceService() string {
	if strings.TrimSpace(uc.SourceService) == "" {
		return "d21-voting"
	}
	return strings.TrimSpace(uc.SourceService)
}

// lookupIdempotency returns the stored record when key was already used for
// the same request, or ErrIdempotencyConflict when it was used for another.
// An empty key disables replay protection.
func (uc ElectionUseCase) lookupIdempotency(
	ctx context.Context,
	key string,
	requestHash string,
	now time.Time,
) (ports.IdempotencyRecord, bool, error) {
	if key == "" || uc.Idempotency == nil {
		return ports.IdempotencyRecord{}, false, nil
	}
	record, found, err := uc.Idempotency.Get(ctx, key, now)
	if err != nil || !found {
		return ports.IdempotencyRecord{}, false, err
	}
	if record.RequestHash != requestHash {
		return ports.IdempotencyRecord{}, false, domainerrors.ErrIdempotencyConflict
	}
	return record, true, nil
}

// idempotencyRecord builds the record the repository commits together with
// the change. It is nil when replay protection is off for the call.
func (uc ElectionUseCase) idempotencyRecord(
	key string,
	requestHash string,
	resourceID string,
	now time.Time,
) *ports.IdempotencyRecord {
	if key == "" || uc.Idempotency == nil {
		return nil
	}
	return &ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		ResourceID:  resourceID,
		ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
	}
}

// scopedIdempotencyKey namespaces a client key by operation and caller so two
// callers can never collide on the same key.
func scopedIdempotencyKey(op string, parts ...string) string {
	for _, part := range parts {
		if part == "" {
			return ""
		}
	}
	return op + ":" + strings.Join(parts, ":")
}

func validIdentities(ids ...string) bool {
	for _, id := range ids {
		if !entities.ValidIdentity(id) {
			return false
		}
	}
	return true
}
