package adapters

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"

	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// ProcessHandleAdapter walks the process table for open files below a
// directory. Processes whose descriptors cannot be read are skipped, and a
// scan that could read none of them logs a warning.
type ProcessHandleAdapter struct {
	IgnorePIDs []int32
}

func NewProcessHandleAdapter() ProcessHandleAdapter {
	return ProcessHandleAdapter{IgnorePIDs: []int32{int32(os.Getpid())}}
}

func (a ProcessHandleAdapter) OpenHandles(ctx context.Context, dir string) ([]types.OpenHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	root, err := resolveDir(dir)
	if err != nil {
		return nil, err
	}
	processes, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to list processes").
			WithCause(err)
	}
	targets := make([]scanTarget, 0, len(processes))
	for _, proc := range processes {
		if slices.Contains(a.IgnorePIDs, proc.Pid) {
			continue
		}
		targets = append(targets, scanTarget{pid: proc.Pid, files: proc.OpenFilesWithContext, name: proc.NameWithContext})
	}
	return scanHandles(ctx, root, targets), nil
}

type scanTarget struct {
	pid   int32
	files func(ctx context.Context) ([]process.OpenFilesStat, error)
	name  func(ctx context.Context) (string, error)
}

// scanHandles collects open files below root. A scan that could read no
// process at all proves nothing about the database, so it is reported.
func scanHandles(ctx context.Context, root string, targets []scanTarget) []types.OpenHandle {
	logger := log.Ctx(ctx)
	var handles []types.OpenHandle
	skipped := 0
	for _, target := range targets {
		files, err := target.files(ctx)
		if err != nil {
			skipped++
			continue
		}
		for _, file := range files {
			if !withinDir(root, file.Path) {
				continue
			}
			name, _ := target.name(ctx)
			handles = append(handles, types.OpenHandle{PID: target.pid, Name: name, Path: file.Path})
		}
	}
	if skipped > 0 && skipped == len(targets) {
		logger.Warn().
			Str("dir", root).
			Int("unreadable_processes", skipped).
			Msg("no process descriptors were readable; open handle check is blind, run with privileges to enforce it")
	}
	logger.Debug().
		Str("dir", root).
		Int("handles", len(handles)).
		Int("unreadable_processes", skipped).
		Msg("open handle scan complete")
	return handles
}

func resolveDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("data directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid data directory").
			WithCause(err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

func withinDir(root string, path string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

var _ ports.HandleInspectorPort = ProcessHandleAdapter{}
