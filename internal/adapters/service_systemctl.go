package adapters

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/ports"
	"chainsnap/internal/shared"
)

// systemctl is-active exit status for a unit that is known but not running.
const systemctlInactiveExit = 3

// SystemctlServiceAdapter drives a systemd unit. Command may carry a
// wrapper such as "sudo systemctl".
type SystemctlServiceAdapter struct {
	Command []string
}

func NewSystemctlServiceAdapter(command string) SystemctlServiceAdapter {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{"systemctl"}
	}
	return SystemctlServiceAdapter{Command: fields}
}

func (a SystemctlServiceAdapter) Stop(ctx context.Context, service string) error {
	return a.runAction(ctx, "stop", service)
}

func (a SystemctlServiceAdapter) Start(ctx context.Context, service string) error {
	return a.runAction(ctx, "start", service)
}

func (a SystemctlServiceAdapter) IsActive(ctx context.Context, service string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateUnit(service); err != nil {
		return false, err
	}
	output, err := a.command(ctx, "is-active", service).CombinedOutput()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == systemctlInactiveExit {
		return false, nil
	}
	state := strings.TrimSpace(string(output))
	if state == "inactive" || state == "failed" {
		return false, nil
	}
	return false, errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg("failed to query service state").
		WithCause(shared.CommandError(output, err))
}

func (a SystemctlServiceAdapter) runAction(ctx context.Context, action string, service string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateUnit(service); err != nil {
		return err
	}
	output, err := a.command(ctx, action, service).CombinedOutput()
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("systemctl " + action + " failed").
			WithCause(shared.CommandError(output, err))
	}
	return nil
}

func (a SystemctlServiceAdapter) command(ctx context.Context, args ...string) *exec.Cmd {
	command := a.Command
	if len(command) == 0 {
		command = []string{"systemctl"}
	}
	full := append(append([]string{}, command[1:]...), args...)
	return exec.CommandContext(ctx, command[0], full...)
}

func validateUnit(service string) error {
	if strings.TrimSpace(service) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("service name is empty")
	}
	if strings.HasPrefix(service, "-") || strings.ContainsAny(service, " \t\n") {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid service name: " + service)
	}
	return nil
}

var _ ports.ServicePort = SystemctlServiceAdapter{}
