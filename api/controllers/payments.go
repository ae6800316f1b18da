package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/api/responses"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type paymentConfirmer interface {
	ConfirmPaymentByID(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error)
}

// ConfirmPayment flips a registration to paid and returns its assigned BIB.
func ConfirmPayment(svc paymentConfirmer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		registrationID, err := uuid.Parse(chi.URLParam(r, "registrationID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid registration id"))
			return
		}

		registration, err := svc.ConfirmPaymentByID(r.Context(), registrationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"registration_id": registration.ID.String(),
			"payment_status":  registration.PaymentStatus,
			"bib_number":      registration.BibNumber,
			"paid_at":         registration.PaidAt,
		})
	}
}
