package notifications

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
)

type repository interface {
	Insert(ctx context.Context, notification *models.Notification) error
}

// Service turns published domain events into in-app notification rows and
// hands them to the delivery channels. Channel failures are logged, never
// propagated: a missed push must not block the event stream.
type Service struct {
	repo repository
	logg *logger.Logger
}

func NewService(repo repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

type refundData struct {
	BuyerID string `json:"buyer_id"`
	Amount  string `json:"amount"`
}

type orderStatusData struct {
	Status  string `json:"status"`
	BuyerID string `json:"buyer_id"`
}

type assignmentAcceptedData struct {
	OrderID   string `json:"order_id"`
	CourierID string `json:"courier_id"`
}

// Handle maps one published event to zero or more notifications. Unknown
// event types are skipped, not failed, so new producers never wedge the
// subscription.
func (s *Service) Handle(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	switch eventType {
	case enums.EventRefundIssued:
		return s.handleRefund(ctx, envelope)
	case enums.EventOrderStatusUpdated:
		return s.handleOrderStatus(ctx, envelope)
	case enums.EventAssignmentAccepted:
		return s.handleAssignmentAccepted(ctx, envelope)
	default:
		return nil
	}
}

func (s *Service) handleRefund(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var data refundData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed refund payload")
	}
	buyerID, err := uuid.Parse(data.BuyerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer id")
	}
	return s.deliver(ctx, &models.Notification{
		UserID: buyerID,
		Kind:   enums.NotificationRefundIssued,
		Title:  "Refund issued",
		Body:   "Your order was cancelled and " + data.Amount + " was returned to your wallet.",
	})
}

func (s *Service) handleOrderStatus(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var data orderStatusData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed order status payload")
	}
	if data.Status != string(enums.OrderStatusOutForDelivery) {
		return nil
	}
	buyerID, err := uuid.Parse(data.BuyerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid buyer id")
	}
	return s.deliver(ctx, &models.Notification{
		UserID: buyerID,
		Kind:   enums.NotificationOrderDispatched,
		Title:  "Order on its way",
		Body:   "Your order is out for delivery.",
	})
}

func (s *Service) handleAssignmentAccepted(ctx context.Context, envelope outbox.PayloadEnvelope) error {
	var data assignmentAcceptedData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed assignment payload")
	}
	courierID, err := uuid.Parse(data.CourierID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid courier id")
	}
	return s.deliver(ctx, &models.Notification{
		UserID: courierID,
		Kind:   enums.NotificationAssignmentAccepted,
		Title:  "Delivery confirmed",
		Body:   "You are assigned to order " + data.OrderID + ".",
	})
}

func (s *Service) deliver(ctx context.Context, notification *models.Notification) error {
	notification.ID = uuid.New()
	if err := s.repo.Insert(ctx, notification); err != nil {
		return err
	}
	// External channels (push, SMS) hang off here; a failure there is logged
	// by the channel itself and never bubbles up.
	if s.logg != nil {
		logCtx := s.logg.WithUserID(ctx, notification.UserID.String())
		logCtx = s.logg.WithField(logCtx, "kind", notification.Kind)
		s.logg.Info(logCtx, "notification delivered")
	}
	return nil
}
