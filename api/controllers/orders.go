package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/api/responses"
	"github.com/milletlink/milletlink-backend/api/validators"
	"github.com/milletlink/milletlink-backend/internal/orders"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

type orderTransitioner interface {
	Transition(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, reason string) (*orders.TransitionResult, error)
}

type TransitionOrderBody struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// TransitionOrder is the internal mutation surface the commerce backend calls
// when an order changes state.
func TransitionOrder(svc orderTransitioner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}

		var body TransitionOrderBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		result, err := svc.Transition(r.Context(), orderID, status, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{
			"orderId":      result.Order.ID.String(),
			"status":       string(result.Order.Status),
			"noOp":         result.NoOp,
			"noCandidates": result.NoCandidates,
		}
		if result.Assignment != nil {
			payload["assignmentId"] = result.Assignment.ID.String()
			payload["broadcastedTo"] = len(result.Assignment.BroadcastedTo)
		}
		responses.WriteSuccess(w, payload)
	}
}
