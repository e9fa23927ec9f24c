package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
)

type stubRepo struct {
	rows []models.Notification
	err  error
}

func (r *stubRepo) Insert(_ context.Context, notification *models.Notification) error {
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, *notification)
	return nil
}

func envelopeWith(t *testing.T, data any) outbox.PayloadEnvelope {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: raw}
}

func TestRefundEventNotifiesBuyer(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)
	buyer := uuid.New()

	err := svc.Handle(context.Background(), enums.EventRefundIssued,
		envelopeWith(t, refundData{BuyerID: buyer.String(), Amount: "300.00"}))
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, buyer, repo.rows[0].UserID)
	assert.Equal(t, enums.NotificationRefundIssued, repo.rows[0].Kind)
	assert.Contains(t, repo.rows[0].Body, "300.00")
}

func TestOrderStatusOnlyDispatchNotifies(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)
	buyer := uuid.New()

	err := svc.Handle(context.Background(), enums.EventOrderStatusUpdated,
		envelopeWith(t, orderStatusData{Status: "delivered", BuyerID: buyer.String()}))
	require.NoError(t, err)
	assert.Empty(t, repo.rows)

	err = svc.Handle(context.Background(), enums.EventOrderStatusUpdated,
		envelopeWith(t, orderStatusData{Status: "out_for_delivery", BuyerID: buyer.String()}))
	require.NoError(t, err)
	require.Len(t, repo.rows, 1)
	assert.Equal(t, enums.NotificationOrderDispatched, repo.rows[0].Kind)
}

func TestAssignmentAcceptedNotifiesCourier(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)
	courier := uuid.New()

	err := svc.Handle(context.Background(), enums.EventAssignmentAccepted,
		envelopeWith(t, assignmentAcceptedData{OrderID: uuid.NewString(), CourierID: courier.String()}))
	require.NoError(t, err)

	require.Len(t, repo.rows, 1)
	assert.Equal(t, courier, repo.rows[0].UserID)
	assert.Equal(t, enums.NotificationAssignmentAccepted, repo.rows[0].Kind)
}

func TestUnknownEventsAreSkipped(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo, nil)

	err := svc.Handle(context.Background(), enums.EventAssignmentCancelled, envelopeWith(t, map[string]string{}))
	require.NoError(t, err)
	assert.Empty(t, repo.rows)
}

func TestConsumerAckPolicy(t *testing.T) {
	repo := &stubRepo{}
	consumer := NewConsumer(nil, NewService(repo, nil), nil)
	buyer := uuid.New()

	envelope := envelopeWith(t, refundData{BuyerID: buyer.String(), Amount: "10.00"})
	raw, err := json.Marshal(envelope)
	require.NoError(t, err)

	// happy path acks
	assert.True(t, consumer.process(context.Background(), map[string]string{"event_type": "refund_issued"}, raw))

	// unknown event type is poison, ack
	assert.True(t, consumer.process(context.Background(), map[string]string{"event_type": "mystery"}, raw))

	// garbage payload is poison, ack
	assert.True(t, consumer.process(context.Background(), map[string]string{"event_type": "refund_issued"}, []byte("{")))

	// malformed domain data is poison, ack
	bad, err := json.Marshal(envelopeWith(t, refundData{BuyerID: "not-a-uuid"}))
	require.NoError(t, err)
	assert.True(t, consumer.process(context.Background(), map[string]string{"event_type": "refund_issued"}, bad))

	// repo failure is transient, nack
	repo.err = errors.New("db down")
	assert.False(t, consumer.process(context.Background(), map[string]string{"event_type": "refund_issued"}, raw))
}
