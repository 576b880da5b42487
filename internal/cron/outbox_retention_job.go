package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxAttempts  = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	Clock      clock.Clock
	Metrics    *metrics.JobMetrics
	// Retention is how long published and dead-lettered rows are kept.
	Retention time.Duration
	// TerminalAttempts is the publisher's attempt ceiling.
	TerminalAttempts int
}

type outboxRetentionJob struct {
	logg             *logger.Logger
	db               txRunner
	repo             outboxPurger
	clock            clock.Clock
	metrics          *metrics.JobMetrics
	retention        time.Duration
	terminalAttempts int
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if params.Clock == nil {
		params.Clock = clock.System{}
	}
	if params.Retention <= 0 {
		params.Retention = defaultOutboxRetention
	}
	if params.TerminalAttempts <= 0 {
		params.TerminalAttempts = defaultOutboxAttempts
	}
	return &outboxRetentionJob{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		clock:            params.Clock,
		metrics:          params.Metrics,
		retention:        params.Retention,
		terminalAttempts: params.TerminalAttempts,
	}, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.clock.Now().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.terminalAttempts)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.metrics.AddProcessed(j.Name(), "deleted", int(deleted))
	j.logg.InfoWith(ctx, "outbox retention cleanup complete", map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	return nil
}
