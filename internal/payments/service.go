package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

// BibEnqueuer stages the BIB notification inside the payment transaction.
type BibEnqueuer interface {
	EnqueueTx(ctx context.Context, tx *gorm.DB, registrationID uuid.UUID, kind enums.DispatchKind, scheduledAt *time.Time) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the payments service.
type ServiceParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Repo     Repository
	Enqueuer BibEnqueuer
}

// Service confirms payments and assigns BIB numbers. A BIB is the distance
// prefix plus a per-distance sequence, issued in payment order.
type Service struct {
	logg     *logger.Logger
	db       txRunner
	repo     Repository
	enqueuer BibEnqueuer
	now      func() time.Time
}

// NewService wires the payments service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "db runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payments repository required")
	}
	if params.Enqueuer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dispatch enqueuer required")
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repo,
		enqueuer: params.Enqueuer,
		now:      time.Now,
	}, nil
}

// ConfirmPayment marks the registration behind a transaction reference as
// paid, assigns the next BIB for its distance, and queues the BIB
// notification. All three happen in one transaction.
func (s *Service) ConfirmPayment(ctx context.Context, transactionRef string) (*models.Registration, error) {
	registration, err := s.repo.GetByTransactionRef(ctx, transactionRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading registration")
	}
	if registration == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no registration for this transaction reference")
	}
	return s.confirm(ctx, registration)
}

// ConfirmPaymentByID is ConfirmPayment keyed on the registration id instead of
// its transaction reference.
func (s *Service) ConfirmPaymentByID(ctx context.Context, registrationID uuid.UUID) (*models.Registration, error) {
	registration, err := s.repo.GetByID(ctx, registrationID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading registration")
	}
	if registration == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "registration not found")
	}
	return s.confirm(ctx, registration)
}

func (s *Service) confirm(ctx context.Context, registration *models.Registration) (*models.Registration, error) {
	if registration.PaymentStatus != enums.PaymentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment already confirmed")
	}

	var bib string
	paidAt := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		distance, err := txRepo.GetDistance(ctx, registration.DistanceID)
		if err != nil {
			return fmt.Errorf("loading distance: %w", err)
		}
		if distance == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "registration references a missing distance")
		}

		assigned, err := txRepo.CountAssignedBibs(ctx, distance.ID)
		if err != nil {
			return fmt.Errorf("counting assigned bibs: %w", err)
		}
		bib = fmt.Sprintf("%s%03d", distance.BibPrefix, assigned+1)

		marked, err := txRepo.MarkPaid(ctx, registration.ID, bib, paidAt)
		if err != nil {
			return fmt.Errorf("marking paid: %w", err)
		}
		if !marked {
			// Lost a race with a concurrent confirmation.
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already confirmed")
		}

		return s.enqueuer.EnqueueTx(ctx, tx, registration.ID, enums.DispatchKindBibNumber, nil)
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirming payment")
	}

	registration.PaymentStatus = enums.PaymentStatusPaid
	registration.BibNumber = &bib
	registration.PaidAt = &paidAt

	ctx = s.logg.WithFields(ctx, map[string]any{
		"registration_id": registration.ID.String(),
		"transaction_ref": registration.TransactionRef,
		"bib_number":      bib,
	})
	s.logg.Info(ctx, "payment confirmed")
	return registration, nil
}
