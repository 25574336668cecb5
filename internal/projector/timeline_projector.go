// Package projector consumes escrow lifecycle events and builds the per
// transaction timeline kept in MongoDB.
package projector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrow-settlement/internal/domain/escrow"
	"github.com/escrow-settlement/internal/domain/timeline"
	"github.com/escrow-settlement/internal/platform/metrics"
)

// TimelineProjector implements ProjectionService on a timeline.Repository
type TimelineProjector struct {
	repo   timeline.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewTimelineProjector(logger *slog.Logger, repo timeline.Repository) *TimelineProjector {
	return &TimelineProjector{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Project appends the event to the timeline. A redelivered event is already
// there and counts as projected.
func (p *TimelineProjector) Project(ctx context.Context, event *escrow.Event) error {
	entry := timeline.FromEvent(event, p.now().UTC())

	if err := p.repo.Append(ctx, entry); err != nil {
		if errors.Is(err, timeline.ErrDuplicateEntry{}) {
			metrics.ProjectedEventsTotal.WithLabelValues("duplicate").Inc()
			p.logger.Debug("Event already projected, skipping",
				"event_id", entry.EventID,
				"tx_ref", entry.TxRef,
			)
			return nil
		}
		metrics.ProjectedEventsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to project event %s: %w", entry.EventID, err)
	}

	metrics.ProjectedEventsTotal.WithLabelValues("projected").Inc()
	return nil
}
