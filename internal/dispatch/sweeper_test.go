package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	"github.com/marcvilanova/raceday-backend/pkg/enums"
	"github.com/marcvilanova/raceday-backend/pkg/metrics"
)

type fakeSender struct {
	err  error
	sent []uuid.UUID
}

func (s *fakeSender) Send(_ context.Context, item *models.DispatchItem, _ *models.Registration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, item.ID)
	return "msg-" + item.ID.String()[:8], nil
}

func newTestSweeper(t *testing.T, conn *gorm.DB, sender Sender) *Sweeper {
	t.Helper()

	sweeper, err := NewSweeper(SweeperParams{
		Logger:  testLogger(),
		Repo:    NewRepository(conn),
		Sender:  sender,
		Metrics: metrics.NewDispatchMetrics(nil),
		Config: config.DispatchConfig{
			SweepBatchSize:       10,
			MaxRetries:           3,
			FailedRetryBatch:     100,
			StuckProcessingAfter: 15 * time.Minute,
			SentRetentionDays:    90,
			PublishTimeout:       time.Second,
		},
	})
	require.NoError(t, err)
	return sweeper
}

func TestSweeperRunPendingSweep_sendsByPriority(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sender := &fakeSender{}
	sweeper := newTestSweeper(t, conn, sender)

	now := time.Now().UTC()
	regA := newTestRegistration(t, conn)
	regB := newTestRegistration(t, conn)
	reminder := newTestItem(t, conn, regA.ID, enums.DispatchKindPaymentReminder, enums.DispatchStatusPending, now.Add(-2*time.Hour))
	confirm := newTestItem(t, conn, regB.ID, enums.DispatchKindRegistrationConfirm, enums.DispatchStatusPending, now.Add(-time.Hour))

	result, err := sweeper.RunPendingSweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Claimed)
	assert.Equal(t, 2, result.Sent)
	require.Len(t, sender.sent, 2)
	assert.Equal(t, confirm.ID, sender.sent[0], "high priority goes first")
	assert.Equal(t, reminder.ID, sender.sent[1])

	repo := NewRepository(conn)
	for _, id := range []uuid.UUID{confirm.ID, reminder.ID} {
		item, err := repo.GetItem(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, enums.DispatchStatusSent, item.Status)
		require.NotNil(t, item.MessageID)
	}
}

func TestSweeperRunPendingSweep_retryUntilTerminal(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sender := &fakeSender{err: errors.New("transport unavailable")}
	sweeper := newTestSweeper(t, conn, sender)
	repo := NewRepository(conn)
	ctx := context.Background()

	reg := newTestRegistration(t, conn)
	item := newTestItem(t, conn, reg.ID, enums.DispatchKindRegistrationConfirm, enums.DispatchStatusPending, time.Now().UTC())

	// Two failing sweeps burn retries but keep the item pending.
	for attempt := 1; attempt <= 2; attempt++ {
		result, err := sweeper.RunPendingSweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retried, "attempt %d", attempt)
		assert.Zero(t, result.Failed)

		reloaded, err := repo.GetItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, enums.DispatchStatusPending, reloaded.Status)
		assert.Equal(t, attempt, reloaded.RetryCount)
	}

	// The third failure is terminal.
	result, err := sweeper.RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.Retried)

	reloaded, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DispatchStatusFailed, reloaded.Status)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "transport unavailable", *reloaded.LastError)

	// A failed item never re-enters the sweep.
	result, err = sweeper.RunPendingSweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Claimed)
}

func TestSweeperRunPendingSweep_missingRegistration(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sender := &fakeSender{}
	sweeper := newTestSweeper(t, conn, sender)

	item := newTestItem(t, conn, uuid.New(), enums.DispatchKindRegistrationConfirm, enums.DispatchStatusPending, time.Now().UTC())

	result, err := sweeper.RunPendingSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Retried)
	assert.Empty(t, sender.sent)

	reloaded, err := NewRepository(conn).GetItem(context.Background(), item.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastError)
	assert.Equal(t, "registration not found", *reloaded.LastError)
}

func TestSweeperRunPendingSweep_honorsSchedule(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sender := &fakeSender{}
	sweeper := newTestSweeper(t, conn, sender)

	now := time.Now().UTC()
	reg := newTestRegistration(t, conn)
	deferred := newTestItem(t, conn, reg.ID, enums.DispatchKindRaceDayInfo, enums.DispatchStatusPending, now)
	require.NoError(t, conn.Model(deferred).Update("scheduled_at", now.Add(time.Hour)).Error)

	result, err := sweeper.RunPendingSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Claimed)
	assert.Empty(t, sender.sent)
}

func TestSweeperRunFailedRetrySweep(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sweeper := newTestSweeper(t, conn, &fakeSender{})
	repo := NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	regA := newTestRegistration(t, conn)
	regB := newTestRegistration(t, conn)
	failed := newTestItem(t, conn, regA.ID, enums.DispatchKindRegistrationConfirm, enums.DispatchStatusFailed, now)
	require.NoError(t, conn.Model(failed).Update("retry_count", 3).Error)
	stuck := newTestItem(t, conn, regB.ID, enums.DispatchKindBibNumber, enums.DispatchStatusProcessing, now.Add(-time.Hour))

	result, err := sweeper.RunFailedRetrySweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Requeued)
	assert.Equal(t, int64(1), result.Released)

	reloaded, err := repo.GetItem(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DispatchStatusPending, reloaded.Status)
	assert.Zero(t, reloaded.RetryCount)

	reloaded, err = repo.GetItem(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.DispatchStatusPending, reloaded.Status)
}

func TestSweeperPurgeSent(t *testing.T) {
	conn := setupDispatchTestDB(t)
	sweeper := newTestSweeper(t, conn, &fakeSender{})

	now := time.Now().UTC()
	regA := newTestRegistration(t, conn)
	regB := newTestRegistration(t, conn)
	newTestItem(t, conn, regA.ID, enums.DispatchKindRegistrationConfirm, enums.DispatchStatusSent, now.AddDate(0, 0, -120))
	newTestItem(t, conn, regB.ID, enums.DispatchKindRegistrationConfirm, enums.DispatchStatusSent, now)

	purged, err := sweeper.PurgeSent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
