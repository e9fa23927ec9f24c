package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

type stubRepo struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	fetchErr  error
}

func (r *stubRepo) FetchUnpublished(int, int) ([]models.OutboxEvent, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	out := r.rows
	r.rows = nil
	return out, nil
}

func (r *stubRepo) MarkPublished(id uuid.UUID) error {
	r.published = append(r.published, id)
	return nil
}

func (r *stubRepo) MarkFailed(id uuid.UUID, _ error) error {
	r.failed = append(r.failed, id)
	return nil
}

type stubResult struct {
	err error
}

func (r stubResult) Get(context.Context) (string, error) {
	return "msg-id", r.err
}

type stubPublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *stubPublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return stubResult{err: p.err}
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func testService(t *testing.T, repo *stubRepo, pub *stubPublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:    &config.Config{},
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        okPinger{},
		PubSub:    okPinger{},
		Repo:      repo,
		Publisher: pub,
	})
	require.NoError(t, err)
	return svc
}

func outboxRow(t *testing.T) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"hello": "world"})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRefundIssued,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	row := outboxRow(t)
	repo := &stubRepo{rows: []models.OutboxEvent{row}}
	pub := &stubPublisher{}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "refund_issued", pub.messages[0].Attributes["event_type"])
	assert.Equal(t, row.AggregateID.String(), pub.messages[0].Attributes["aggregate_id"])
	assert.Equal(t, []uuid.UUID{row.ID}, repo.published)
	assert.Empty(t, repo.failed)
}

func TestProcessBatchMarksFailureAndContinues(t *testing.T) {
	first, second := outboxRow(t), outboxRow(t)
	repo := &stubRepo{rows: []models.OutboxEvent{first, second}}
	pub := &stubPublisher{err: errors.New("topic unavailable")}
	svc := testService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)

	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, repo.failed)
	assert.Empty(t, repo.published)
}

func TestProcessBatchEmptyIsIdle(t *testing.T) {
	svc := testService(t, &stubRepo{}, &stubPublisher{})

	processed, err := svc.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestNextBackoffIsCappedAndDoubles(t *testing.T) {
	assert.Equal(t, 2*jitterWindow, nextBackoff(jitterWindow, jitterWindow, maxBackoff))
	assert.Equal(t, maxBackoff, nextBackoff(maxBackoff, 0, maxBackoff))
	assert.Equal(t, 2*jitterWindow, nextBackoff(0, jitterWindow, maxBackoff))
}
