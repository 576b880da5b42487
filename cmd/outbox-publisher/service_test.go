package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderCreatedRow(t, 0),
		orderCreatedRow(t, 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), nil, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	require.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Empty(t, repo.terminal)
}

func TestServiceProcessBatchSetsMessageAttributes(t *testing.T) {
	row := orderCreatedRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), nil, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	require.Equal(t, []byte(row.Payload), msg.Data)
	require.Equal(t, string(enums.EventOrderCreated), msg.Attributes["event_type"])
	require.Equal(t, string(enums.AggregateOrder), msg.Attributes["aggregate_type"])
	require.Equal(t, row.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.NotEmpty(t, msg.Attributes["event_id"])
}

func TestServiceProcessBatchMarksUnresolvableRowsTerminal(t *testing.T) {
	row := orderCreatedRow(t, 0)
	row.AggregateType = enums.AggregateReturnRequest
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), nil, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	require.Empty(t, repo.published)
	require.Empty(t, pub.messages)
}

func TestServiceProcessBatchMarksTerminalWithoutPublisher(t *testing.T) {
	row := orderCreatedRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	service := newTestService(t, repo, nil, outbox.NewRegistry(), nil, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
}

func TestServiceProcessBatchMarksTerminalAtMaxAttempts(t *testing.T) {
	row := orderCreatedRow(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
	}}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	require.Empty(t, repo.failed)
	require.Equal(t, 2, repo.terminalAttempts)
}

func TestServiceProcessBatchReturnsMarkErrors(t *testing.T) {
	repo := &fakeRepo{
		events:     []models.OutboxEvent{orderCreatedRow(t, 0)},
		publishErr: errors.New("db gone"),
	}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), nil, nil)

	processed, err := service.processBatch(context.Background())
	require.Error(t, err)
	require.True(t, processed)
	require.Contains(t, err.Error(), "mark published")
}

func TestServiceProcessBatchEmpty(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, outbox.NewRegistry(), nil, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestServiceProcessBatchRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	jobMetrics := metrics.NewJobMetrics(reg)

	unresolvable := orderCreatedRow(t, 0)
	unresolvable.EventType = enums.OutboxEventType("order_exploded")
	repo := &fakeRepo{events: []models.OutboxEvent{
		orderCreatedRow(t, 0),
		orderCreatedRow(t, 0),
		unresolvable,
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{},
		fakePublishResult{err: errors.New("transient")},
	}}
	service := newTestService(t, repo, pub, outbox.NewRegistry(), nil, jobMetrics)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "job_items_processed_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, map[string]float64{"published": 1, "failed": 1, "terminal": 1}, counts)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, outbox.NewRegistry(), nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := service.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.EqualError(t, err, "config is required")

	_, err = NewService(ServiceParams{Config: &config.Config{}, Logger: logger.Nop()})
	require.EqualError(t, err, "database client is required")
}

func TestNextBackoffCaps(t *testing.T) {
	base := 100 * time.Millisecond
	require.Equal(t, 200*time.Millisecond, nextBackoff(base, base, time.Second))
	require.Equal(t, time.Second, nextBackoff(800*time.Millisecond, base, time.Second))
	require.Equal(t, 200*time.Millisecond, nextBackoff(0, base, time.Second))
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, registry registryResolver, outboxCfgOverride *config.OutboxConfig, jobMetrics *metrics.JobMetrics) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 10,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{Outbox: outboxCfg}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:     cfg,
		Logger:     logg,
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: repo,
		Registry:   registry,
		PublisherFactory: func() publisher {
			if pub == nil {
				return nil
			}
			return pub
		},
		Metrics: jobMetrics,
	})
	require.NoError(t, err)
	return service
}

func orderCreatedRow(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(outbox.OrderCreatedEvent{
		OrderID:   orderID,
		BuyerID:   uuid.New(),
		ItemCount: 1,
		OrderDate: time.Now().UTC(),
	})
	require.NoError(tb, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
	publishErr       error
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) DomainPublisher() *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}
