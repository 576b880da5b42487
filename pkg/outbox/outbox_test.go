package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func TestEmitStoresEnvelopeAndRegistryResolvesIt(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	svc := NewService(repo, logger.Nop())

	orderID := uuid.New()
	buyerID := uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: buyerID, Role: "user"},
			Data: OrderCreatedEvent{
				OrderID:    orderID,
				BuyerID:    buyerID,
				ItemCount:  2,
				TotalPrice: decimal.RequireFromString("30.00"),
			},
		})
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)

	resolved, err := NewRegistry().Resolve(rows[0])
	require.NoError(t, err)
	assert.Equal(t, currentVersion, resolved.Envelope.Version)
	assert.NotEmpty(t, resolved.Envelope.EventID)

	payload, ok := resolved.Payload.(*OrderCreatedEvent)
	require.True(t, ok)
	assert.Equal(t, orderID, payload.OrderID)
	assert.True(t, payload.TotalPrice.Equal(decimal.RequireFromString("30")))
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{})
	require.Error(t, err)
}

func TestRegistryRejectsUnknownAndMismatchedRows(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Resolve(models.OutboxEvent{EventType: "bogus", AggregateType: enums.AggregateOrder})
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))

	_, err = reg.Resolve(models.OutboxEvent{EventType: enums.EventReturnRequested, AggregateType: enums.AggregateOrder})
	require.True(t, errors.As(err, &nonRetry))

	_, err = reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		Payload:       json.RawMessage(`{not json`),
	})
	require.True(t, errors.As(err, &nonRetry))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventOrderCreated, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	rows, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("pubsub down")))

	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "pubsub down", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[0].ID, errors.New("gave up"), 3))
	rows, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
