package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	err      error
	runs     int
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

type fakeLock struct {
	acquired   bool
	acquireErr error
	releases   int
}

func (l *fakeLock) Acquire(_ context.Context) (bool, error) {
	return l.acquired, l.acquireErr
}

func (l *fakeLock) Release(_ context.Context) error {
	l.releases++
	return nil
}

func staticLockFactory(lock Lock, err error) LockFactory {
	return func(string) (Lock, error) {
		return lock, err
	}
}

func testCronLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, locks LockFactory, jobs ...Job) *Service {
	t.Helper()

	service, err := NewService(ServiceParams{
		Logger:   testCronLogger(),
		Registry: NewRegistry(jobs...),
		Locks:    locks,
	})
	require.NoError(t, err)
	return service
}

func TestNewService_requiresLockFactory(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testCronLogger()})
	require.Error(t, err)
}

func TestRunJob_runsWhenLockAcquired(t *testing.T) {
	job := &fakeJob{name: "test-job", schedule: "* * * * *"}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, staticLockFactory(lock, nil), job)

	service.runJob(context.Background(), job)

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestRunJob_skipsWhenLockHeld(t *testing.T) {
	job := &fakeJob{name: "test-job", schedule: "* * * * *"}
	lock := &fakeLock{acquired: false}
	service := newTestService(t, staticLockFactory(lock, nil), job)

	service.runJob(context.Background(), job)

	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 0, lock.releases)
}

func TestRunJob_skipsOnAcquireError(t *testing.T) {
	job := &fakeJob{name: "test-job", schedule: "* * * * *"}
	lock := &fakeLock{acquireErr: errors.New("redis down")}
	service := newTestService(t, staticLockFactory(lock, nil), job)

	service.runJob(context.Background(), job)

	assert.Equal(t, 0, job.runs)
}

func TestRunJob_releasesLockOnJobError(t *testing.T) {
	job := &fakeJob{name: "test-job", schedule: "* * * * *", err: errors.New("boom")}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, staticLockFactory(lock, nil), job)

	service.runJob(context.Background(), job)

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestRun_rejectsInvalidSchedule(t *testing.T) {
	job := &fakeJob{name: "broken", schedule: "not a cron expression"}
	service := newTestService(t, staticLockFactory(&fakeLock{acquired: true}, nil), job)

	err := service.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRun_stopsOnContextCancel(t *testing.T) {
	service := newTestService(t, staticLockFactory(&fakeLock{acquired: true}, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- service.Run(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop after cancel")
	}
}
