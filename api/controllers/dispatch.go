package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/api/responses"
	"github.com/marcvilanova/raceday-backend/api/validators"
	"github.com/marcvilanova/raceday-backend/internal/dispatch"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type dispatchQueue interface {
	Enqueue(ctx context.Context, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) (*models.DispatchItem, error)
	CancelItem(ctx context.Context, itemID uuid.UUID) error
	GetQueueStatus(ctx context.Context) (*dispatch.QueueStatus, error)
}

type dispatchSweeper interface {
	RunPendingSweep(ctx context.Context) (*dispatch.SweepResult, error)
	RunFailedRetrySweep(ctx context.Context) (*dispatch.MaintenanceResult, error)
}

type enqueueItemRequest struct {
	RegistrationID string     `json:"registration_id" validate:"required,uuid"`
	Kind           string     `json:"kind" validate:"required"`
	ScheduledAt    *time.Time `json:"scheduled_at,omitempty"`
}

// EnqueueDispatchItem admits a notification item for a registration.
func EnqueueDispatchItem(queue dispatchQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch queue unavailable"))
			return
		}

		var req enqueueItemRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		registrationID, err := uuid.Parse(req.RegistrationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid registration id"))
			return
		}

		kind, err := enums.ParseDispatchKind(req.Kind)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid dispatch kind"))
			return
		}

		item, err := queue.Enqueue(r.Context(), registrationID, kind, req.ScheduledAt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

// TriggerSweep runs one pending sweep pass on demand.
func TriggerSweep(sweeper dispatchSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch sweeper unavailable"))
			return
		}

		result, err := sweeper.RunPendingSweep(r.Context())
		if err != nil {
			// Per-item send failures are already reflected in the result;
			// surface both so the caller sees partial progress.
			if result != nil {
				responses.WriteSuccess(w, map[string]any{"result": result, "error": err.Error()})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// TriggerFailedRetry requeues failed items and releases stuck claims.
func TriggerFailedRetry(sweeper dispatchSweeper, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sweeper == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch sweeper unavailable"))
			return
		}

		result, err := sweeper.RunFailedRetrySweep(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// CancelDispatchItem withdraws a pending item.
func CancelDispatchItem(queue dispatchQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch queue unavailable"))
			return
		}

		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		if err := queue.CancelItem(r.Context(), itemID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "cancelled"})
	}
}

// DispatchStatus reports queue depth by status.
func DispatchStatus(queue dispatchQueue, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if queue == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dispatch queue unavailable"))
			return
		}

		status, err := queue.GetQueueStatus(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, status)
	}
}
