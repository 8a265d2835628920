package adapters

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/gofrs/flock"

	"chainsnap/internal/ports"
)

// FlockRunLockAdapter holds an advisory lock file for the whole run.
type FlockRunLockAdapter struct {
	lock *flock.Flock
}

func NewFlockRunLockAdapter(path string) (FlockRunLockAdapter, error) {
	if strings.TrimSpace(path) == "" {
		return FlockRunLockAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("lock file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return FlockRunLockAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create lock directory").
			WithCause(err)
	}
	return FlockRunLockAdapter{lock: flock.New(path)}, nil
}

func (a FlockRunLockAdapter) TryLock() (bool, error) {
	locked, err := a.lock.TryLock()
	if err != nil {
		return false, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to acquire run lock").
			WithCause(err)
	}
	return locked, nil
}

func (a FlockRunLockAdapter) Unlock() error {
	if err := a.lock.Unlock(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to release run lock").
			WithCause(err)
	}
	return nil
}

var _ ports.RunLockPort = FlockRunLockAdapter{}
