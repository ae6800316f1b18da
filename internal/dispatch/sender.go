package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/shopspring/decimal"

	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
)

// Sender hands one notification to the delivery transport and returns the
// transport's message id.
type Sender interface {
	Send(ctx context.Context, item *models.DispatchItem, registration *models.Registration) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// notificationEnvelope is the payload the downstream notification worker
// renders and delivers. Template names the downstream rendering template;
// kind-specific fields are set only by the handler for that kind.
type notificationEnvelope struct {
	ItemID         string           `json:"item_id"`
	RegistrationID string           `json:"registration_id"`
	Kind           string           `json:"kind"`
	Template       string           `json:"template"`
	Email          string           `json:"email"`
	FirstName      string           `json:"first_name"`
	LastName       string           `json:"last_name"`
	TransactionRef string           `json:"transaction_ref,omitempty"`
	AmountDue      *decimal.Decimal `json:"amount_due,omitempty"`
	BibNumber      *string          `json:"bib_number,omitempty"`
	EnqueuedAt     time.Time        `json:"enqueued_at"`
}

// envelopeBuilder assembles the payload for one notification kind.
type envelopeBuilder func(item *models.DispatchItem, registration *models.Registration) notificationEnvelope

// newEnvelopeBuilders registers one handler per kind. Adding a kind means
// adding one entry here.
func newEnvelopeBuilders() map[enums.DispatchKind]envelopeBuilder {
	return map[enums.DispatchKind]envelopeBuilder{
		enums.DispatchKindRegistrationConfirm: buildRegistrationConfirm,
		enums.DispatchKindBibNumber:           buildBibNumber,
		enums.DispatchKindPaymentReminder:     buildPaymentReminder,
		enums.DispatchKindRaceDayInfo:         buildRaceDayInfo,
	}
}

func baseEnvelope(item *models.DispatchItem, registration *models.Registration) notificationEnvelope {
	return notificationEnvelope{
		ItemID:         item.ID.String(),
		RegistrationID: registration.ID.String(),
		Kind:           string(item.Kind),
		Template:       string(item.Kind),
		Email:          registration.Email,
		FirstName:      registration.FirstName,
		LastName:       registration.LastName,
		EnqueuedAt:     item.CreatedAt,
	}
}

func buildRegistrationConfirm(item *models.DispatchItem, registration *models.Registration) notificationEnvelope {
	envelope := baseEnvelope(item, registration)
	envelope.TransactionRef = registration.TransactionRef
	envelope.AmountDue = &registration.AmountDue
	return envelope
}

func buildBibNumber(item *models.DispatchItem, registration *models.Registration) notificationEnvelope {
	envelope := baseEnvelope(item, registration)
	envelope.BibNumber = registration.BibNumber
	return envelope
}

func buildPaymentReminder(item *models.DispatchItem, registration *models.Registration) notificationEnvelope {
	envelope := baseEnvelope(item, registration)
	envelope.TransactionRef = registration.TransactionRef
	envelope.AmountDue = &registration.AmountDue
	return envelope
}

func buildRaceDayInfo(item *models.DispatchItem, registration *models.Registration) notificationEnvelope {
	return baseEnvelope(item, registration)
}

// PubSubSender publishes notification envelopes to the configured topic.
type PubSubSender struct {
	pub      publisher
	builders map[enums.DispatchKind]envelopeBuilder
}

// NewPubSubSender wraps a Pub/Sub publisher handle.
func NewPubSubSender(p *gcppubsub.Publisher) *PubSubSender {
	sender := &PubSubSender{builders: newEnvelopeBuilders()}
	if p != nil {
		sender.pub = &gcpPublisher{Publisher: p}
	}
	return sender
}

func (s *PubSubSender) Send(ctx context.Context, item *models.DispatchItem, registration *models.Registration) (string, error) {
	if s == nil || s.pub == nil {
		return "", errors.New("notification publisher not configured")
	}

	build, ok := s.builders[item.Kind]
	if !ok {
		return "", fmt.Errorf("no handler registered for dispatch kind %q", item.Kind)
	}

	data, err := json.Marshal(build(item, registration))
	if err != nil {
		return "", fmt.Errorf("encoding notification envelope: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"item_id":         item.ID.String(),
			"registration_id": registration.ID.String(),
			"kind":            string(item.Kind),
			"priority":        fmt.Sprintf("%d", item.Priority),
		},
	}

	result := s.pub.Publish(ctx, msg)
	if result == nil {
		return "", errors.New("publisher returned nil result")
	}
	return result.Get(ctx)
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
