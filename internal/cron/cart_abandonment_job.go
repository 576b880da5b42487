package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const defaultAbandonAfter = 30 * 24 * time.Hour

type cartMarker interface {
	MarkAbandoned(ctx context.Context, idleSince time.Time) (int64, error)
}

type CartAbandonmentJobParams struct {
	Logger  *logger.Logger
	Carts   cartMarker
	Clock   clock.Clock
	Metrics *metrics.JobMetrics
	// After is how long a cart may sit without activity before it is
	// flagged abandoned.
	After time.Duration
}

// cartAbandonmentJob flags idle non-empty carts as abandoned. Lines are kept;
// the next cart mutation reactivates the cart.
type cartAbandonmentJob struct {
	logg    *logger.Logger
	carts   cartMarker
	clock   clock.Clock
	metrics *metrics.JobMetrics
	after   time.Duration
}

func NewCartAbandonmentJob(params CartAbandonmentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.Clock == nil {
		params.Clock = clock.System{}
	}
	if params.After <= 0 {
		params.After = defaultAbandonAfter
	}
	return &cartAbandonmentJob{
		logg:    params.Logger,
		carts:   params.Carts,
		clock:   params.Clock,
		metrics: params.Metrics,
		after:   params.After,
	}, nil
}

func (j *cartAbandonmentJob) Name() string { return "cart-abandonment" }

func (j *cartAbandonmentJob) Run(ctx context.Context) error {
	idleSince := j.clock.Now().Add(-j.after)
	marked, err := j.carts.MarkAbandoned(ctx, idleSince)
	if err != nil {
		return fmt.Errorf("mark abandoned carts: %w", err)
	}
	j.metrics.AddProcessed(j.Name(), "abandoned", int(marked))
	j.logg.InfoWith(ctx, "idle carts marked abandoned", map[string]any{
		"idle_since": idleSince,
		"carts":      marked,
	})
	return nil
}
