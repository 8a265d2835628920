package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/ports"
)

const defaultRestartTimeout = 2 * time.Minute

// LifecycleController owns the window in which the node service is down.
type LifecycleController struct {
	Service    ports.ServicePort
	Handles    ports.HandleInspectorPort
	Sleep      func(ctx context.Context, d time.Duration) error
	Clock      func() time.Time
	NewBackOff func() backoff.BackOff
}

type CaptureRequest struct {
	ServiceName     string
	DataDir         string
	QuiesceDelay    time.Duration
	RestartAttempts int
}

type CaptureResult struct {
	WasActive bool
	Downtime  time.Duration
	Archived  bool
}

// ArchiveFunc runs while the service is stopped. release restarts the
// service early and may be called at most once; later calls are no-ops.
type ArchiveFunc func(ctx context.Context, release func()) error

func NewLifecycleController(service ports.ServicePort, handles ports.HandleInspectorPort) LifecycleController {
	return LifecycleController{
		Service: service,
		Handles: handles,
	}
}

// Capture stops the service, waits for it to quiesce, checks the database
// is no longer held open, runs archive and brings the service back. Every
// path that stopped the service attempts to start it again, including
// cancellation of ctx.
func (c LifecycleController) Capture(ctx context.Context, req CaptureRequest, archive ArchiveFunc) (CaptureResult, error) {
	if c.Service == nil || c.Handles == nil {
		return CaptureResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("lifecycle controller requires service and handle ports")
	}
	if strings.TrimSpace(req.ServiceName) == "" {
		return CaptureResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("service name is empty")
	}
	logger := log.Ctx(ctx)
	result := CaptureResult{}

	active, err := c.Service.IsActive(ctx, req.ServiceName)
	if err != nil {
		return result, err
	}
	result.WasActive = active

	restart := c.newRestarter(ctx, req, active)
	stoppedAt := c.now()
	if active {
		logger.Info().Str("service", req.ServiceName).Msg("stopping node service")
		if err := c.Service.Stop(ctx, req.ServiceName); err != nil {
			stopErr := errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to stop node service").
				WithCause(err)
			return result, withRestart(stopErr, restart.wait())
		}
	} else {
		logger.Warn().Str("service", req.ServiceName).Msg("node service not active; archiving without stop")
	}

	if err := c.quiesce(ctx, req, active); err != nil {
		return result, withRestart(err, restart.wait())
	}

	archiveErr := archive(ctx, restart.release)
	result.Archived = archiveErr == nil
	restartErr := restart.wait()
	if active {
		result.Downtime = restart.restartedAt().Sub(stoppedAt)
		logger.Info().
			Str("service", req.ServiceName).
			Dur("downtime", result.Downtime).
			Msg("node service restarted")
	}
	if archiveErr != nil {
		return result, withRestart(archiveErr, restartErr)
	}
	return result, restartErr
}

func withRestart(err error, restartErr error) error {
	if restartErr == nil {
		return err
	}
	return errors.Join(err, restartErr)
}

func (c LifecycleController) quiesce(ctx context.Context, req CaptureRequest, stopped bool) error {
	if stopped && req.QuiesceDelay > 0 {
		if err := c.sleep(ctx, req.QuiesceDelay); err != nil {
			return err
		}
	}
	handles, err := c.Handles.OpenHandles(ctx, req.DataDir)
	if err != nil {
		return err
	}
	if len(handles) > 0 {
		holders := make([]string, 0, len(handles))
		for _, handle := range handles {
			holders = append(holders, fmt.Sprintf("%s[%d]:%s", handle.Name, handle.PID, handle.Path))
		}
		return errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("database still locked").
			WithCause(fmt.Errorf("open handles: %s", strings.Join(holders, ", ")))
	}
	log.Ctx(ctx).Debug().Str("dir", req.DataDir).Msg("database quiesced")
	return nil
}

func (c LifecycleController) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c LifecycleController) now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

type restarter struct {
	once   sync.Once
	done   chan struct{}
	err    error
	at     time.Time
	start  func() error
	clock  func() time.Time
	needed bool
}

func (c LifecycleController) newRestarter(ctx context.Context, req CaptureRequest, needed bool) *restarter {
	// Restart must survive interruption of the run itself.
	restartCtx := context.WithoutCancel(ctx)
	attempts := req.RestartAttempts
	if attempts <= 0 {
		attempts = 1
	}
	start := func() error {
		opCtx, cancel := context.WithTimeout(restartCtx, defaultRestartTimeout)
		defer cancel()
		var policy backoff.BackOff
		if c.NewBackOff != nil {
			policy = c.NewBackOff()
		} else {
			policy = backoff.NewExponentialBackOff()
		}
		policy = backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), opCtx)
		err := backoff.Retry(func() error {
			startErr := c.Service.Start(opCtx, req.ServiceName)
			if startErr != nil {
				log.Ctx(ctx).Warn().Err(startErr).Str("service", req.ServiceName).Msg("service start attempt failed")
			}
			return startErr
		}, policy)
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to restart node service").
				WithCause(err)
		}
		return nil
	}
	return &restarter{
		done:   make(chan struct{}),
		start:  start,
		clock:  c.now,
		needed: needed,
	}
}

// release starts the service in the background; the archive stream keeps
// flowing while the node comes back.
func (r *restarter) release() {
	r.once.Do(func() {
		if !r.needed {
			r.at = r.clock()
			close(r.done)
			return
		}
		go func() {
			r.err = r.start()
			r.at = r.clock()
			close(r.done)
		}()
	})
}

func (r *restarter) wait() error {
	r.release()
	<-r.done
	return r.err
}

func (r *restarter) restartedAt() time.Time {
	<-r.done
	return r.at
}
