package safezone

import (
	"context"
	"log/slog"

	"safezone-api-server/internal/metrics"
	"safezone-api-server/internal/models"
	"safezone-api-server/internal/store"
	"safezone-api-server/pkg/e"
)

type CapacityStats struct {
	Total     int64 `json:"total"`
	Occupied  int64 `json:"occupied"`
	Available int64 `json:"available"`
}

// Stats counts active zones only.
type Stats struct {
	Total    int64         `json:"total"`
	Active   int64         `json:"active"`
	Full     int64         `json:"full"`
	Capacity CapacityStats `json:"capacity"`
}

// Stats reads through the stats cache when one is configured. Cache errors
// are logged and the figures are computed from the store.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	const op = "safezone.Service.Stats"

	if s.stats != nil {
		cached, ok, err := s.stats.Get(ctx)
		switch {
		case err != nil:
			s.logger.Warn("stats cache read failed", slog.Any("error", err))
		case ok:
			metrics.StatsCacheHitsTotal.Inc()
			return cached, nil
		default:
			metrics.StatsCacheMissesTotal.Inc()
		}
	}

	st, err := s.computeStats(ctx)
	if err != nil {
		return Stats{}, e.Wrap(op, err)
	}

	if s.stats != nil {
		if err := s.stats.Set(ctx, st); err != nil {
			s.logger.Warn("stats cache write failed", slog.Any("error", err))
		}
	}
	return st, nil
}

func (s *Service) computeStats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error

	if st.Total, err = s.repo.CountActive(ctx, store.Filter{}); err != nil {
		return Stats{}, err
	}
	if st.Active, err = s.repo.CountActive(ctx, store.Filter{Status: models.StatusActive}); err != nil {
		return Stats{}, err
	}
	if st.Full, err = s.repo.CountActive(ctx, store.Filter{Status: models.StatusFull}); err != nil {
		return Stats{}, err
	}

	totals, err := s.repo.SumCapacity(ctx, store.Filter{})
	if err != nil {
		return Stats{}, err
	}
	st.Capacity = CapacityStats{
		Total:     totals.Total,
		Occupied:  totals.Occupied,
		Available: totals.Total - totals.Occupied,
	}
	return st, nil
}
