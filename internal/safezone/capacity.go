package safezone

import (
	"context"
	"log/slog"

	"safezone-api-server/internal/auth"
	"safezone-api-server/internal/events"
	"safezone-api-server/internal/metrics"
	"safezone-api-server/pkg/e"
)

// SetOccupancy records the number of people currently sheltered and applies
// the status transition of models.NextStatus atomically in the store. The
// value is not clamped to [0, max].
func (s *Service) SetOccupancy(ctx context.Context, id string, current *int) (*View, error) {
	const op = "safezone.Service.SetOccupancy"
	if err := s.authz.Authorize(ctx, auth.OpSetOccupancy); err != nil {
		return nil, e.Wrap(op, err)
	}
	if current == nil {
		return nil, e.InvalidArgument(op, "current occupancy is required")
	}

	before, after, err := s.repo.SetOccupancy(ctx, id, *current)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	ev := events.Event{
		Type:   events.OccupancyChanged,
		ZoneID: id,
		Zone:   after,
		From:   before.Status,
		To:     after.Status,
	}
	if ev.StatusChanged() {
		metrics.StatusTransitionsTotal.WithLabelValues(string(ev.From), string(ev.To)).Inc()
		s.logger.Info("safe zone status changed",
			slog.String("id", id),
			slog.String("from", string(ev.From)),
			slog.String("to", string(ev.To)),
			slog.Int("current", after.Capacity.Current),
			slog.Int("max", after.Capacity.Max))
	}

	s.changed(ctx, ev)
	v := NewView(*after, nil)
	return &v, nil
}
