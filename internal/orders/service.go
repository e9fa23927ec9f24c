package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/milletlink/milletlink-backend/internal/dispatch"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
	"github.com/milletlink/milletlink-backend/pkg/types"
)

type repository interface {
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Save(ctx context.Context, tx *gorm.DB, order *models.Order) error
	RestockItems(ctx context.Context, tx *gorm.DB, items []models.OrderLineItem) error
	CreditWallet(ctx context.Context, tx *gorm.DB, userID uuid.UUID, amount decimal.Decimal) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type candidateSelector interface {
	Candidates(ctx context.Context, dropPoint types.Point) ([]uuid.UUID, error)
}

type dispatcher interface {
	BroadcastTx(ctx context.Context, tx *gorm.DB, order *models.Order, candidates []uuid.UUID) (*models.DeliveryAssignment, error)
	Announce(ctx context.Context, order *models.Order, assignment *models.DeliveryAssignment)
	CancelTx(ctx context.Context, tx *gorm.DB, assignment *models.DeliveryAssignment, at time.Time) error
	CompleteTx(ctx context.Context, tx *gorm.DB, assignmentID, courierID uuid.UUID, at time.Time) error
	Find(ctx context.Context, assignmentID uuid.UUID) (*models.DeliveryAssignment, error)
}

type pusher interface {
	PushToUser(ctx context.Context, userID uuid.UUID, event string, data any) int
}

// Service drives the order lifecycle. Transitions are monotonic and
// idempotent: re-requesting the state an order already reached is a no-op,
// moving a terminal order anywhere else is a conflict.
type Service struct {
	tx         txRunner
	repo       repository
	events     eventEmitter
	selector   candidateSelector
	dispatcher dispatcher
	push       pusher
	logg       *logger.Logger
}

func NewService(tx txRunner, repo repository, events eventEmitter, selector candidateSelector, d dispatcher, push pusher, logg *logger.Logger) *Service {
	return &Service{
		tx:         tx,
		repo:       repo,
		events:     events,
		selector:   selector,
		dispatcher: d,
		push:       push,
		logg:       logg,
	}
}

// TransitionResult reports what a transition did. NoCandidates flags a
// dispatch request that found no eligible courier; the status change still
// lands.
type TransitionResult struct {
	Order        *models.Order
	Assignment   *models.DeliveryAssignment
	NoCandidates bool
	NoOp         bool
}

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:        {enums.OrderStatusOutForDelivery, enums.OrderStatusCancelled},
	enums.OrderStatusOutForDelivery: {enums.OrderStatusDelivered, enums.OrderStatusCancelled},
}

func transitionAllowed(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Transition moves an order to newStatus, running the side effects the target
// state demands.
func (s *Service) Transition(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, reason string) (*TransitionResult, error) {
	if !newStatus.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}

	order, err := s.repo.Find(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if isNoOpTransition(order.Status, newStatus) {
		return &TransitionResult{Order: order, NoOp: true}, nil
	}
	if !transitionAllowed(order.Status, newStatus) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order cannot move to requested status").
			WithDetails(map[string]string{"from": string(order.Status), "to": string(newStatus)})
	}

	switch newStatus {
	case enums.OrderStatusCancelled:
		return s.cancel(ctx, order, reason)
	case enums.OrderStatusOutForDelivery:
		return s.dispatchForDelivery(ctx, order)
	case enums.OrderStatusDelivered:
		return s.markDelivered(ctx, order)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status cannot be requested directly")
	}
}

// Re-requesting a reached state is idempotent. A cancelled order settles as
// refunded, so a repeat cancel of a refunded order is also a no-op.
func isNoOpTransition(current, requested enums.OrderStatus) bool {
	if current == requested {
		return true
	}
	return requested == enums.OrderStatusCancelled &&
		(current == enums.OrderStatusCancelled || current == enums.OrderStatusRefunded)
}

// cancel unwinds the order atomically: restock every line item, close any
// open assignment, credit the buyer's wallet, settle the order as refunded.
func (s *Service) cancel(ctx context.Context, order *models.Order, reason string) (*TransitionResult, error) {
	now := time.Now().UTC()

	var assignment *models.DeliveryAssignment
	if order.AssignmentID != nil {
		found, err := s.dispatcher.Find(ctx, *order.AssignmentID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		assignment = found
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.RestockItems(ctx, tx, order.Items); err != nil {
			return err
		}
		if assignment != nil {
			if err := s.dispatcher.CancelTx(ctx, tx, assignment, now); err != nil {
				return err
			}
		}
		if err := s.repo.CreditWallet(ctx, tx, order.BuyerID, order.TotalAmount); err != nil {
			return err
		}

		order.Status = enums.OrderStatusRefunded
		order.CancelledAt = &now
		if reason != "" {
			order.CancellationReason = &reason
		}
		if err := s.repo.Save(ctx, tx, order); err != nil {
			return err
		}

		if err := s.emitStatusUpdated(ctx, tx, order); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Data: map[string]any{
				"buyer_id": order.BuyerID.String(),
				"amount":   order.TotalAmount.StringFixed(2),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.pushStatus(ctx, order)
	return &TransitionResult{Order: order, Assignment: assignment}, nil
}

// dispatchForDelivery marks the order out for delivery and broadcasts it to
// nearby idle couriers. Finding nobody is a valid outcome: the status change
// lands either way and the caller sees NoCandidates.
func (s *Service) dispatchForDelivery(ctx context.Context, order *models.Order) (*TransitionResult, error) {
	dropPoint := types.Point{Lat: order.DeliveryLat, Lng: order.DeliveryLng}
	candidates, err := s.selector.Candidates(ctx, dropPoint)
	if err != nil {
		return nil, err
	}

	var assignment *models.DeliveryAssignment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order.Status = enums.OrderStatusOutForDelivery
		if len(candidates) > 0 {
			created, err := s.dispatcher.BroadcastTx(ctx, tx, order, candidates)
			if err != nil {
				return err
			}
			assignment = created
			order.AssignmentID = &created.ID
		}
		if err := s.repo.Save(ctx, tx, order); err != nil {
			return err
		}
		return s.emitStatusUpdated(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if assignment != nil {
		s.dispatcher.Announce(ctx, order, assignment)
	} else if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Warn(logCtx, "no eligible couriers for dispatch")
	}

	s.pushStatus(ctx, order)
	return &TransitionResult{
		Order:        order,
		Assignment:   assignment,
		NoCandidates: assignment == nil,
	}, nil
}

func (s *Service) markDelivered(ctx context.Context, order *models.Order) (*TransitionResult, error) {
	now := time.Now().UTC()

	var assignment *models.DeliveryAssignment
	if order.AssignmentID != nil {
		found, err := s.dispatcher.Find(ctx, *order.AssignmentID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		assignment = found
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if assignment != nil && assignment.Status == enums.AssignmentStatusAccepted && assignment.AssignedTo != nil {
			if err := s.dispatcher.CompleteTx(ctx, tx, assignment.ID, *assignment.AssignedTo, now); err != nil {
				return err
			}
		}
		order.Status = enums.OrderStatusDelivered
		if err := s.repo.Save(ctx, tx, order); err != nil {
			return err
		}
		return s.emitStatusUpdated(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	s.pushStatus(ctx, order)
	return &TransitionResult{Order: order, Assignment: assignment}, nil
}

func (s *Service) emitStatusUpdated(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: map[string]any{
			"status":   string(order.Status),
			"buyer_id": order.BuyerID.String(),
		},
	})
}

type orderStatusPayload struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

func (s *Service) pushStatus(ctx context.Context, order *models.Order) {
	if s.push == nil {
		return
	}
	s.push.PushToUser(ctx, order.BuyerID, dispatch.EventOrderStatusUpdate, orderStatusPayload{
		OrderID: order.ID.String(),
		Status:  string(order.Status),
	})
}
