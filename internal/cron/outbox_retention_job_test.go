package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/clock"
	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

func TestOutboxRetentionJobPurgesOldDeliveredAndDeadRows(t *testing.T) {
	client, conn := dbtest.Client(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-time.Hour)

	seed := func(created time.Time, published bool, attempts int) models.OutboxEvent {
		row := models.OutboxEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			Payload:       json.RawMessage(`{}`),
			CreatedAt:     created,
			AttemptCount:  attempts,
		}
		if published {
			row.PublishedAt = &created
		}
		require.NoError(t, conn.Create(&row).Error)
		return row
	}
	seed(old, true, 0)
	seed(old, false, 10)
	pending := seed(old, false, 2)
	fresh := seed(recent, true, 0)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:           logger.Nop(),
		DB:               client,
		Repository:       outbox.NewRepository(conn),
		Clock:            clock.NewManual(now),
		TerminalAttempts: 10,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var left []models.OutboxEvent
	require.NoError(t, conn.Order("created_at").Find(&left).Error)
	require.Len(t, left, 2)
	ids := []any{left[0].ID, left[1].ID}
	assert.Contains(t, ids, pending.ID)
	assert.Contains(t, ids, fresh.ID)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTx{},
		Repository: failingPurger{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestOutboxRetentionJobRequiresDeps(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{DB: passthroughTx{}, Repository: failingPurger{}})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.Nop(), Repository: failingPurger{}})
	assert.Error(t, err)
}

type failingPurger struct{}

func (failingPurger) DeletePublishedBefore(context.Context, *gorm.DB, time.Time, int) (int64, error) {
	return 0, errors.New("boom")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
