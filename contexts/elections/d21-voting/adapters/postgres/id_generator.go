package postgresadapter

import (
	"context"

	"d21vote/contexts/elections/d21-voting/ports"

	"github.com/google/uuid"
)

// UUIDGenerator issues random v4 identifiers for elections and events.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var (
	_ ports.Clock       = SystemClock{}
	_ ports.IDGenerator = UUIDGenerator{}
)
