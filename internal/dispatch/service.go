package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/milletlink/milletlink-backend/pkg/db/models"
	dbtypes "github.com/milletlink/milletlink-backend/pkg/db/types"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/outbox"
)

// Wire event names pushed over the relay.
const (
	EventNewAssignment     = "new-assignment"
	EventOrderStatusUpdate = "order-status-update"
)

type repository interface {
	Create(ctx context.Context, tx *gorm.DB, assignment *models.DeliveryAssignment) error
	Find(ctx context.Context, id uuid.UUID) (*models.DeliveryAssignment, error)
	AcceptIfBroadcasted(ctx context.Context, tx *gorm.DB, id, courierID uuid.UUID, at time.Time) (bool, error)
	MarkCancelled(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkCompleted(ctx context.Context, tx *gorm.DB, id, courierID uuid.UUID, at time.Time) (bool, error)
	ActivelyDelivering(ctx context.Context) (map[uuid.UUID]bool, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Pusher delivers an event to every live connection of a user. Delivery is
// best effort; the return value is the number of connections reached.
type Pusher interface {
	PushToUser(ctx context.Context, userID uuid.UUID, event string, data any) int
}

// Service arbitrates delivery assignments: broadcast to candidates, exactly
// one accept, idempotent cancel.
type Service struct {
	tx     txRunner
	repo   repository
	events eventEmitter
	push   Pusher
	logg   *logger.Logger
}

func NewService(tx txRunner, repo repository, events eventEmitter, push Pusher, logg *logger.Logger) *Service {
	return &Service{tx: tx, repo: repo, events: events, push: push, logg: logg}
}

type assignmentPayload struct {
	AssignmentID string  `json:"assignmentId"`
	OrderID      string  `json:"orderId"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	Amount       string  `json:"amount"`
}

type orderStatusPayload struct {
	OrderID   string `json:"orderId"`
	Status    string `json:"status"`
	CourierID string `json:"courierId,omitempty"`
}

// BroadcastTx creates the assignment row inside the caller's transaction and
// queues the broadcast event. The live fan-out happens in Announce, after the
// transaction commits.
func (s *Service) BroadcastTx(ctx context.Context, tx *gorm.DB, order *models.Order, candidates []uuid.UUID) (*models.DeliveryAssignment, error) {
	if len(candidates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "broadcast requires at least one candidate")
	}
	assignment := &models.DeliveryAssignment{
		ID:            uuid.New(),
		OrderID:       order.ID,
		BroadcastedTo: dbtypes.UUIDArray(candidates),
		Status:        enums.AssignmentStatusBroadcasted,
	}
	if err := s.repo.Create(ctx, tx, assignment); err != nil {
		return nil, err
	}
	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAssignmentBroadcast,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		Data: map[string]any{
			"order_id":   order.ID.String(),
			"candidates": len(candidates),
		},
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// Announce pushes the open assignment to every candidate's live connections.
func (s *Service) Announce(ctx context.Context, order *models.Order, assignment *models.DeliveryAssignment) {
	if s.push == nil {
		return
	}
	payload := assignmentPayload{
		AssignmentID: assignment.ID.String(),
		OrderID:      order.ID.String(),
		Lat:          order.DeliveryLat,
		Lon:          order.DeliveryLng,
		Amount:       order.TotalAmount.StringFixed(2),
	}
	reached := 0
	for _, courierID := range assignment.BroadcastedTo {
		reached += s.push.PushToUser(ctx, courierID, EventNewAssignment, payload)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"assignment_id": assignment.ID.String(),
			"candidates":    len(assignment.BroadcastedTo),
			"reached":       reached,
		})
		s.logg.Info(logCtx, "assignment broadcasted")
	}
}

// Accept resolves the race between couriers answering the same broadcast. The
// winner is whoever lands the conditional update; everyone else gets a
// precise rejection: NotFound for a missing assignment, Unauthorized for a
// courier that was never offered it, Conflict for a closed one.
func (s *Service) Accept(ctx context.Context, assignmentID, courierID uuid.UUID) (*models.DeliveryAssignment, error) {
	assignment, err := s.repo.Find(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		won, err := s.repo.AcceptIfBroadcasted(ctx, tx, assignmentID, courierID, now)
		if err != nil {
			return err
		}
		if !won {
			if !assignment.BroadcastedTo.Contains(courierID) {
				return pkgerrors.New(pkgerrors.CodeUnauthorized, "courier was not offered this assignment")
			}
			return pkgerrors.New(pkgerrors.CodeConflict, "assignment is no longer open")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAssignmentAccepted,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignmentID,
			Actor:         &outbox.ActorRef{UserID: courierID, Role: models.RoleCourier},
			Data: map[string]any{
				"order_id":   assignment.OrderID.String(),
				"courier_id": courierID.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	assignment.AssignedTo = &courierID
	assignment.Status = enums.AssignmentStatusAccepted
	assignment.AcceptedAt = &now

	s.notifyBuyer(ctx, assignment, courierID)
	return assignment, nil
}

func (s *Service) notifyBuyer(ctx context.Context, assignment *models.DeliveryAssignment, courierID uuid.UUID) {
	if s.push == nil {
		return
	}
	order, err := s.repo.FindOrder(ctx, assignment.OrderID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "skipping buyer push, order lookup failed")
		}
		return
	}
	s.push.PushToUser(ctx, order.BuyerID, EventOrderStatusUpdate, orderStatusPayload{
		OrderID:   order.ID.String(),
		Status:    string(order.Status),
		CourierID: courierID.String(),
	})
}

// CancelTx cancels an open assignment inside the caller's transaction.
// Cancelling an already-cancelled assignment is a no-op; a completed one
// cannot be reopened.
func (s *Service) CancelTx(ctx context.Context, tx *gorm.DB, assignment *models.DeliveryAssignment, at time.Time) error {
	switch assignment.Status {
	case enums.AssignmentStatusCancelled:
		return nil
	case enums.AssignmentStatusCompleted:
		return pkgerrors.New(pkgerrors.CodeConflict, "completed assignment cannot be cancelled")
	}
	if err := s.repo.MarkCancelled(ctx, tx, assignment.ID, at); err != nil {
		return err
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventAssignmentCancelled,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		Data: map[string]any{
			"order_id": assignment.OrderID.String(),
		},
	})
}

// Cancel is the standalone cancel entry point used by the internal API.
func (s *Service) Cancel(ctx context.Context, assignmentID uuid.UUID) error {
	assignment, err := s.repo.Find(ctx, assignmentID)
	if err != nil {
		return err
	}
	wasCancelled := assignment.Status == enums.AssignmentStatusCancelled

	now := time.Now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.CancelTx(ctx, tx, assignment, now)
	})
	if err != nil {
		return err
	}

	if !wasCancelled && assignment.AssignedTo != nil && s.push != nil {
		s.push.PushToUser(ctx, *assignment.AssignedTo, EventOrderStatusUpdate, orderStatusPayload{
			OrderID: assignment.OrderID.String(),
			Status:  string(enums.OrderStatusCancelled),
		})
	}
	return nil
}

// CompleteTx closes an accepted assignment when its order is delivered.
func (s *Service) CompleteTx(ctx context.Context, tx *gorm.DB, assignmentID, courierID uuid.UUID, at time.Time) error {
	done, err := s.repo.MarkCompleted(ctx, tx, assignmentID, courierID, at)
	if err != nil {
		return err
	}
	if !done {
		return pkgerrors.New(pkgerrors.CodeConflict, "assignment is not held by this courier")
	}
	return nil
}

// Find loads an assignment by id.
func (s *Service) Find(ctx context.Context, assignmentID uuid.UUID) (*models.DeliveryAssignment, error) {
	return s.repo.Find(ctx, assignmentID)
}

// ActivelyDelivering reports couriers ineligible for new broadcasts.
// Satisfies the candidate selector's BusyLister.
func (s *Service) ActivelyDelivering(ctx context.Context) (map[uuid.UUID]bool, error) {
	return s.repo.ActivelyDelivering(ctx)
}
