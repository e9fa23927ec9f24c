package couriers

import (
	"context"

	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/pkg/config"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/types"
)

// GeoIndex is the location lookup backing candidate selection. The Redis
// client satisfies it.
type GeoIndex interface {
	Nearby(ctx context.Context, point types.Point, radiusKM float64) ([]uuid.UUID, error)
}

// BusyLister reports couriers that currently hold an accepted assignment.
type BusyLister interface {
	ActivelyDelivering(ctx context.Context) (map[uuid.UUID]bool, error)
}

// Selector picks eligible couriers for a delivery broadcast: near the drop
// point, not already carrying an accepted assignment.
type Selector struct {
	geo      GeoIndex
	busy     BusyLister
	radiusKM float64
	logg     *logger.Logger
}

func NewSelector(geo GeoIndex, busy BusyLister, cfg config.DispatchConfig, logg *logger.Logger) *Selector {
	return &Selector{
		geo:      geo,
		busy:     busy,
		radiusKM: cfg.SearchRadiusKM,
		logg:     logg,
	}
}

// Candidates returns courier ids ordered nearest first. An empty result is
// not an error: it means no courier is currently eligible.
func (s *Selector) Candidates(ctx context.Context, dropPoint types.Point) ([]uuid.UUID, error) {
	if err := dropPoint.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid drop point")
	}

	nearby, err := s.geo.Nearby(ctx, dropPoint, s.radiusKM)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "courier location lookup failed")
	}
	if len(nearby) == 0 {
		return nil, nil
	}

	busy, err := s.busy.ActivelyDelivering(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "busy courier lookup failed")
	}

	eligible := make([]uuid.UUID, 0, len(nearby))
	for _, id := range nearby {
		if busy[id] {
			continue
		}
		eligible = append(eligible, id)
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"nearby":   len(nearby),
			"eligible": len(eligible),
		})
		s.logg.Info(logCtx, "courier candidates selected")
	}
	return eligible, nil
}
