package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/api/responses"
	"github.com/milletlink/milletlink-backend/api/validators"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

type assignmentService interface {
	Accept(ctx context.Context, assignmentID, courierID uuid.UUID) (*models.DeliveryAssignment, error)
	Cancel(ctx context.Context, assignmentID uuid.UUID) error
	Find(ctx context.Context, assignmentID uuid.UUID) (*models.DeliveryAssignment, error)
}

type AcceptAssignmentBody struct {
	CourierID string `json:"courierId" validate:"required,uuid"`
}

// AcceptAssignment settles the courier race for a broadcast. Exactly one
// caller wins; the rest see a conflict.
func AcceptAssignment(svc assignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid assignment id"))
			return
		}

		var body AcceptAssignmentBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		courierID, _ := uuid.Parse(body.CourierID)

		assignment, err := svc.Accept(r.Context(), assignmentID, courierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignmentPayload(assignment))
	}
}

func CancelAssignment(svc assignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid assignment id"))
			return
		}
		if err := svc.Cancel(r.Context(), assignmentID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

func GetAssignment(svc assignmentService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assignmentID, err := uuid.Parse(chi.URLParam(r, "assignmentID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid assignment id"))
			return
		}
		assignment, err := svc.Find(r.Context(), assignmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, assignmentPayload(assignment))
	}
}

func assignmentPayload(assignment *models.DeliveryAssignment) map[string]any {
	payload := map[string]any{
		"assignmentId":  assignment.ID.String(),
		"orderId":       assignment.OrderID.String(),
		"status":        string(assignment.Status),
		"broadcastedTo": len(assignment.BroadcastedTo),
	}
	if assignment.AssignedTo != nil {
		payload["courierId"] = assignment.AssignedTo.String()
	}
	if assignment.AcceptedAt != nil {
		payload["acceptedAt"] = assignment.AcceptedAt
	}
	return payload
}
