package projector

import (
	"context"

	"github.com/escrow-settlement/internal/domain/escrow"
)

// ProjectionService writes escrow lifecycle events to the read model.
type ProjectionService interface {
	Project(ctx context.Context, event *escrow.Event) error
}
