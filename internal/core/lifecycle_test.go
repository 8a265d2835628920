package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainsnap/internal/types"
)

type fakeService struct {
	mu         sync.Mutex
	active     bool
	calls      []string
	stopErr    error
	startFails int
	started    chan struct{}
}

func newFakeService(active bool) *fakeService {
	return &fakeService{active: active, started: make(chan struct{}, 8)}
}

func (f *fakeService) Stop(ctx context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	if f.stopErr != nil {
		return f.stopErr
	}
	f.active = false
	return nil
}

func (f *fakeService) Start(ctx context.Context, service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "start")
	if f.startFails > 0 {
		f.startFails--
		return errors.New("unit failed to start")
	}
	f.active = true
	f.started <- struct{}{}
	return nil
}

func (f *fakeService) IsActive(ctx context.Context, service string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, nil
}

func (f *fakeService) isActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeHandles struct {
	handles []types.OpenHandle
	err     error
}

func (f fakeHandles) OpenHandles(ctx context.Context, dir string) ([]types.OpenHandle, error) {
	return f.handles, f.err
}

func newTestController(service *fakeService, handles fakeHandles) LifecycleController {
	controller := NewLifecycleController(service, handles)
	controller.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	controller.NewBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return controller
}

func testCaptureRequest() CaptureRequest {
	return CaptureRequest{
		ServiceName:     "ckb",
		DataDir:         "/var/lib/ckb/data",
		QuiesceDelay:    10 * time.Second,
		RestartAttempts: 3,
	}
}

func TestCaptureStopsArchivesAndRestarts(t *testing.T) {
	service := newFakeService(true)
	controller := newTestController(service, fakeHandles{})

	var activeDuringArchive bool
	result, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		activeDuringArchive = service.isActive()
		return nil
	})
	require.NoError(t, err)
	assert.True(t, result.WasActive)
	assert.True(t, result.Archived)
	assert.False(t, activeDuringArchive)
	assert.True(t, service.isActive())
	assert.Equal(t, []string{"stop", "start"}, service.callLog())
}

func TestCaptureInactiveServiceIsLeftAlone(t *testing.T) {
	service := newFakeService(false)
	controller := newTestController(service, fakeHandles{})

	result, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		return nil
	})
	require.NoError(t, err)
	assert.False(t, result.WasActive)
	assert.Empty(t, service.callLog())
	assert.False(t, service.isActive())
}

func TestCaptureOpenHandlesAbortAndRestart(t *testing.T) {
	service := newFakeService(true)
	controller := newTestController(service, fakeHandles{handles: []types.OpenHandle{
		{PID: 4242, Name: "ckb", Path: "/var/lib/ckb/data/db/LOCK"},
	}})

	archived := false
	_, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		archived = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, archived)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.Contains(t, err.Error(), "database still locked")
	assert.True(t, service.isActive())
}

func TestCaptureStopFailureStillRestarts(t *testing.T) {
	service := newFakeService(true)
	service.stopErr = errors.New("systemctl timed out")
	controller := newTestController(service, fakeHandles{})

	_, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		t.Fatal("archive must not run when stop fails")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stop node service")
	assert.Equal(t, []string{"stop", "start"}, service.callLog())
}

func TestCaptureArchiveFailureRestarts(t *testing.T) {
	service := newFakeService(true)
	controller := newTestController(service, fakeHandles{})
	boom := errors.New("disk full")

	result, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, result.Archived)
	assert.True(t, service.isActive())
}

func TestCaptureReleaseRestartsBeforeArchiveReturns(t *testing.T) {
	service := newFakeService(true)
	controller := newTestController(service, fakeHandles{})

	_, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		release()
		select {
		case <-service.started:
		case <-time.After(5 * time.Second):
			return errors.New("service was not started after release")
		}
		release()
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop", "start"}, service.callLog())
}

func TestCaptureRestartsAfterCancellation(t *testing.T) {
	service := newFakeService(true)
	controller := newTestController(service, fakeHandles{})
	ctx, cancel := context.WithCancel(t.Context())

	_, err := controller.Capture(ctx, testCaptureRequest(), func(ctx context.Context, release func()) error {
		cancel()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, service.isActive())
}

func TestCaptureRetriesRestart(t *testing.T) {
	service := newFakeService(true)
	service.startFails = 2
	controller := newTestController(service, fakeHandles{})

	_, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"stop", "start", "start", "start"}, service.callLog())
	assert.True(t, service.isActive())
}

func TestCaptureRestartExhausted(t *testing.T) {
	service := newFakeService(true)
	service.startFails = 5
	controller := newTestController(service, fakeHandles{})

	_, err := controller.Capture(t.Context(), testCaptureRequest(), func(ctx context.Context, release func()) error {
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to restart node service")
}

func TestCaptureRejectsEmptyServiceName(t *testing.T) {
	controller := newTestController(newFakeService(true), fakeHandles{})
	_, err := controller.Capture(t.Context(), CaptureRequest{}, func(ctx context.Context, release func()) error {
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
