package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/internal/orders"
	"github.com/milletlink/milletlink-backend/pkg/db/models"
	dbtypes "github.com/milletlink/milletlink-backend/pkg/db/types"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
	"github.com/milletlink/milletlink-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

type testTransitioner struct {
	fn func(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, reason string) (*orders.TransitionResult, error)
}

func (s *testTransitioner) Transition(ctx context.Context, orderID uuid.UUID, newStatus enums.OrderStatus, reason string) (*orders.TransitionResult, error) {
	return s.fn(ctx, orderID, newStatus, reason)
}

func TestTransitionOrderSuccess(t *testing.T) {
	orderID := uuid.New()
	assignmentID := uuid.New()
	svc := &testTransitioner{
		fn: func(_ context.Context, id uuid.UUID, status enums.OrderStatus, reason string) (*orders.TransitionResult, error) {
			if id != orderID {
				t.Fatalf("unexpected order %s", id)
			}
			if status != enums.OrderStatusOutForDelivery {
				t.Fatalf("unexpected status %s", status)
			}
			if reason != "" {
				t.Fatalf("unexpected reason %q", reason)
			}
			return &orders.TransitionResult{
				Order: &models.Order{ID: orderID, Status: enums.OrderStatusOutForDelivery},
				Assignment: &models.DeliveryAssignment{
					ID:            assignmentID,
					OrderID:       orderID,
					BroadcastedTo: dbtypes.UUIDArray{uuid.New(), uuid.New()},
				},
			}, nil
		},
	}

	body := strings.NewReader(`{"status":"out_for_delivery"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/orders/"+orderID.String()+"/transition", body)
	req = addRouteParam(req, "orderID", orderID.String())
	resp := httptest.NewRecorder()
	TransitionOrder(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["assignmentId"] != assignmentID.String() {
		t.Fatalf("missing assignment id in %v", envelope.Data)
	}
	if envelope.Data["broadcastedTo"] != float64(2) {
		t.Fatalf("unexpected broadcast count %v", envelope.Data["broadcastedTo"])
	}
}

func TestTransitionOrderRejectsUnknownStatus(t *testing.T) {
	svc := &testTransitioner{
		fn: func(context.Context, uuid.UUID, enums.OrderStatus, string) (*orders.TransitionResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	body := strings.NewReader(`{"status":"teleported"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/orders/"+uuid.NewString()+"/transition", body)
	req = addRouteParam(req, "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	TransitionOrder(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTransitionOrderInvalidID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/orders/nope/transition", strings.NewReader(`{"status":"cancelled"}`))
	req = addRouteParam(req, "orderID", "nope")
	resp := httptest.NewRecorder()
	TransitionOrder(&testTransitioner{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestTransitionOrderConflictPassesThrough(t *testing.T) {
	svc := &testTransitioner{
		fn: func(context.Context, uuid.UUID, enums.OrderStatus, string) (*orders.TransitionResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "transition not allowed")
		},
	}

	body := strings.NewReader(`{"status":"delivered"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/orders/"+uuid.NewString()+"/transition", body)
	req = addRouteParam(req, "orderID", uuid.NewString())
	resp := httptest.NewRecorder()
	TransitionOrder(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}
