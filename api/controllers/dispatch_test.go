package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type testDispatchQueue struct {
	enqueueFn    func(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) (*models.DispatchItem, error)
	cancelItemFn func(ctx context.Context, itemID uuid.UUID) error
	statusFn     func(ctx context.Context) (*dispatch.QueueStatus, error)
}

func (q *testDispatchQueue) Enqueue(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) (*models.DispatchItem, error) {
	if q.enqueueFn != nil {
		return q.enqueueFn(ctx, registrationID, kind, scheduledAt)
	}
	return nil, nil
}

func (q *testDispatchQueue) CancelItem(ctx context.Context, itemID uuid.UUID) error {
	if q.cancelItemFn != nil {
		return q.cancelItemFn(ctx, itemID)
	}
	return nil
}

func (q *testDispatchQueue) GetQueueStatus(ctx context.Context) (*dispatch.QueueStatus, error) {
	if q.statusFn != nil {
		return q.statusFn(ctx)
	}
	return &dispatch.QueueStatus{}, nil
}

type testDispatchSweeper struct {
	sweepFn func(ctx context.Context) (*dispatch.SweepResult, error)
	retryFn func(ctx context.Context) (*dispatch.MaintenanceResult, error)
}

func (s *testDispatchSweeper) RunPendingSweep(ctx context.Context) (*dispatch.SweepResult, error) {
	if s.sweepFn != nil {
		return s.sweepFn(ctx)
	}
	return &dispatch.SweepResult{}, nil
}

func (s *testDispatchSweeper) RunFailedRetrySweep(ctx context.Context) (*dispatch.MaintenanceResult, error) {
	if s.retryFn != nil {
		return s.retryFn(ctx)
	}
	return &dispatch.MaintenanceResult{}, nil
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestEnqueueDispatchItemSuccess(t *testing.T) {
	registrationID := uuid.New()
	queue := &testDispatchQueue{
		enqueueFn: func(_ context.Context, rid uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) (*models.DispatchItem, error) {
			if rid != registrationID {
				t.Fatalf("unexpected registration %s", rid)
			}
			if kind != enums.DispatchKindPaymentReminder {
				t.Fatalf("unexpected kind %s", kind)
			}
			if scheduledAt == nil {
				t.Fatal("expected scheduled_at")
			}
			return &models.DispatchItem{ID: uuid.New(), RegistrationID: rid, Kind: kind}, nil
		},
	}

	body := `{"registration_id":"` + registrationID.String() + `","kind":"payment_reminder","scheduled_at":"2026-09-01T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/items", strings.NewReader(body))
	resp := httptest.NewRecorder()

	EnqueueDispatchItem(queue, discardLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
}

func TestEnqueueDispatchItemRejectsUnknownKind(t *testing.T) {
	body := `{"registration_id":"` + uuid.NewString() + `","kind":"carrier_pigeon"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/items", strings.NewReader(body))
	resp := httptest.NewRecorder()

	EnqueueDispatchItem(&testDispatchQueue{}, discardLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestEnqueueDispatchItemDuplicateReturnsExisting(t *testing.T) {
	existing := &models.DispatchItem{ID: uuid.New(), Kind: enums.DispatchKindBibNumber}
	queue := &testDispatchQueue{
		enqueueFn: func(context.Context, uuid.UUID, enums.DispatchKind, *time.Time) (*models.DispatchItem, error) {
			return existing, nil
		},
	}

	body := `{"registration_id":"` + uuid.NewString() + `","kind":"bib_number"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/items", strings.NewReader(body))
	resp := httptest.NewRecorder()

	EnqueueDispatchItem(queue, discardLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data models.DispatchItem `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ID != existing.ID {
		t.Fatalf("expected existing item %s, got %s", existing.ID, envelope.Data.ID)
	}
}

func TestCancelDispatchItem(t *testing.T) {
	itemID := uuid.New()
	called := false
	queue := &testDispatchQueue{
		cancelItemFn: func(_ context.Context, id uuid.UUID) error {
			called = true
			if id != itemID {
				t.Fatalf("unexpected item %s", id)
			}
			return nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/items/"+itemID.String()+"/cancel", nil)
	req = withURLParam(req, "itemID", itemID.String())
	resp := httptest.NewRecorder()

	CancelDispatchItem(queue, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !called {
		t.Fatal("expected cancel called")
	}
}

func TestCancelDispatchItemProcessingConflict(t *testing.T) {
	queue := &testDispatchQueue{
		cancelItemFn: func(context.Context, uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "dispatch item is already processing")
		},
	}

	itemID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/items/"+itemID+"/cancel", nil)
	req = withURLParam(req, "itemID", itemID)
	resp := httptest.NewRecorder()

	CancelDispatchItem(queue, discardLogger())(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestDispatchStatus(t *testing.T) {
	queue := &testDispatchQueue{
		statusFn: func(context.Context) (*dispatch.QueueStatus, error) {
			return &dispatch.QueueStatus{
				Counts:      map[enums.DispatchStatus]int64{enums.DispatchStatusPending: 4},
				EligibleNow: 2,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dispatch/status", nil)
	resp := httptest.NewRecorder()

	DispatchStatus(queue, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data dispatch.QueueStatus `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.EligibleNow != 2 {
		t.Fatalf("unexpected eligible count %d", envelope.Data.EligibleNow)
	}
	if envelope.Data.Counts[enums.DispatchStatusPending] != 4 {
		t.Fatalf("unexpected pending count %d", envelope.Data.Counts[enums.DispatchStatusPending])
	}
}

func TestTriggerSweep(t *testing.T) {
	sweeper := &testDispatchSweeper{
		sweepFn: func(context.Context) (*dispatch.SweepResult, error) {
			return &dispatch.SweepResult{Claimed: 3, Sent: 2, Retried: 1}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/sweep", nil)
	resp := httptest.NewRecorder()

	TriggerSweep(sweeper, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data dispatch.SweepResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Sent != 2 {
		t.Fatalf("unexpected sent count %d", envelope.Data.Sent)
	}
}

func TestTriggerFailedRetry(t *testing.T) {
	sweeper := &testDispatchSweeper{
		retryFn: func(context.Context) (*dispatch.MaintenanceResult, error) {
			return &dispatch.MaintenanceResult{Requeued: 5, Released: 1}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/dispatch/retry-failed", nil)
	resp := httptest.NewRecorder()

	TriggerFailedRetry(sweeper, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data dispatch.MaintenanceResult `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Requeued != 5 {
		t.Fatalf("unexpected requeued count %d", envelope.Data.Requeued)
	}
}
