package notification

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
)

type CoordinatorSource interface {
	ListActiveByRegion(ctx context.Context, region call.Region) ([]*Coordinator, error)
}

// Router picks the coordinators who hear about a call.
type Router struct {
	coordinators CoordinatorSource
	logger       *slog.Logger
}

func NewRouter(coordinators CoordinatorSource, logger *slog.Logger) *Router {
	return &Router{coordinators: coordinators, logger: logger}
}

// Route returns the active coordinators of the call's region that cover its
// province. When none cover it, every active coordinator of the region is
// returned.
func (r *Router) Route(ctx context.Context, c CallSummary) ([]*Coordinator, error) {
	candidates, err := r.coordinators.ListActiveByRegion(ctx, call.Region(c.Region))
	if err != nil {
		return nil, err
	}

	matched := make([]*Coordinator, 0, len(candidates))
	for _, coord := range candidates {
		if coord.IsActive && coord.CoversProvince(c.Province) {
			matched = append(matched, coord)
		}
	}
	if len(matched) > 0 {
		return matched, nil
	}

	fallback := make([]*Coordinator, 0, len(candidates))
	for _, coord := range candidates {
		if coord.IsActive {
			fallback = append(fallback, coord)
		}
	}
	if len(fallback) == 0 {
		r.logger.Warn("no active coordinator for region", "region", c.Region, "call_number", c.CallNumber)
	} else {
		r.logger.Debug("no coordinator covers province, using region fallback",
			"region", c.Region, "province", c.Province, "coordinators", len(fallback))
	}
	return fallback, nil
}
