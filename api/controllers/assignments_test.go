package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/milletlink/milletlink-backend/pkg/db/models"
	dbtypes "github.com/milletlink/milletlink-backend/pkg/db/types"
	"github.com/milletlink/milletlink-backend/pkg/enums"
	pkgerrors "github.com/milletlink/milletlink-backend/pkg/errors"
)

type testAssignmentService struct {
	acceptFn func(ctx context.Context, assignmentID, courierID uuid.UUID) (*models.DeliveryAssignment, error)
	cancelFn func(ctx context.Context, assignmentID uuid.UUID) error
	findFn   func(ctx context.Context, assignmentID uuid.UUID) (*models.DeliveryAssignment, error)
}

func (s *testAssignmentService) Accept(ctx context.Context, assignmentID, courierID uuid.UUID) (*models.DeliveryAssignment, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, assignmentID, courierID)
	}
	return nil, nil
}

func (s *testAssignmentService) Cancel(ctx context.Context, assignmentID uuid.UUID) error {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, assignmentID)
	}
	return nil
}

func (s *testAssignmentService) Find(ctx context.Context, assignmentID uuid.UUID) (*models.DeliveryAssignment, error) {
	if s.findFn != nil {
		return s.findFn(ctx, assignmentID)
	}
	return nil, nil
}

func TestAcceptAssignmentSuccess(t *testing.T) {
	assignmentID := uuid.New()
	courierID := uuid.New()
	acceptedAt := time.Now()
	svc := &testAssignmentService{
		acceptFn: func(_ context.Context, aid, cid uuid.UUID) (*models.DeliveryAssignment, error) {
			if aid != assignmentID {
				t.Fatalf("unexpected assignment %s", aid)
			}
			if cid != courierID {
				t.Fatalf("unexpected courier %s", cid)
			}
			return &models.DeliveryAssignment{
				ID:            assignmentID,
				OrderID:       uuid.New(),
				Status:        enums.AssignmentStatusAccepted,
				AssignedTo:    &courierID,
				AcceptedAt:    &acceptedAt,
				BroadcastedTo: dbtypes.UUIDArray{courierID},
			}, nil
		},
	}

	body := strings.NewReader(`{"courierId":"` + courierID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/assignments/"+assignmentID.String()+"/accept", body)
	req = addRouteParam(req, "assignmentID", assignmentID.String())
	resp := httptest.NewRecorder()
	AcceptAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["courierId"] != courierID.String() {
		t.Fatalf("missing courier in %v", envelope.Data)
	}
	if envelope.Data["status"] != string(enums.AssignmentStatusAccepted) {
		t.Fatalf("unexpected status %v", envelope.Data["status"])
	}
}

func TestAcceptAssignmentLoserGetsConflict(t *testing.T) {
	svc := &testAssignmentService{
		acceptFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.DeliveryAssignment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "assignment already taken")
		},
	}

	body := strings.NewReader(`{"courierId":"` + uuid.NewString() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/assignments/"+uuid.NewString()+"/accept", body)
	req = addRouteParam(req, "assignmentID", uuid.NewString())
	resp := httptest.NewRecorder()
	AcceptAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAcceptAssignmentRejectsBadCourierID(t *testing.T) {
	svc := &testAssignmentService{
		acceptFn: func(context.Context, uuid.UUID, uuid.UUID) (*models.DeliveryAssignment, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	body := strings.NewReader(`{"courierId":"not-a-uuid"}`)
	req := httptest.NewRequest(http.MethodPost, "/internal/v1/assignments/"+uuid.NewString()+"/accept", body)
	req = addRouteParam(req, "assignmentID", uuid.NewString())
	resp := httptest.NewRecorder()
	AcceptAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCancelAssignmentSuccess(t *testing.T) {
	assignmentID := uuid.New()
	called := false
	svc := &testAssignmentService{
		cancelFn: func(_ context.Context, aid uuid.UUID) error {
			called = true
			if aid != assignmentID {
				t.Fatalf("unexpected assignment %s", aid)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/assignments/"+assignmentID.String()+"/cancel", nil)
	req = addRouteParam(req, "assignmentID", assignmentID.String())
	resp := httptest.NewRecorder()
	CancelAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if !called {
		t.Fatal("expected service called")
	}
}

func TestGetAssignmentNotFound(t *testing.T) {
	svc := &testAssignmentService{
		findFn: func(context.Context, uuid.UUID) (*models.DeliveryAssignment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "assignment not found")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/internal/v1/assignments/"+uuid.NewString(), nil)
	req = addRouteParam(req, "assignmentID", uuid.NewString())
	resp := httptest.NewRecorder()
	GetAssignment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
