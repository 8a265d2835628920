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

const gpgStatusPrefix = "[GNUPG:] "

// GPGSignerAdapter shells out to gpg for detached signatures. The same
// adapter verifies them using the status-fd protocol.
type GPGSignerAdapter struct {
	Binary string
	Home   string
}

func NewGPGSignerAdapter(binary string, home string) GPGSignerAdapter {
	if binary == "" {
		binary = "gpg"
	}
	return GPGSignerAdapter{Binary: binary, Home: home}
}

func (a GPGSignerAdapter) Backend() string {
	return "gpg"
}

func (a GPGSignerAdapter) Sign(ctx context.Context, checksumPath string, signaturePath string, keySelector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(checksumPath) == "" || strings.TrimSpace(signaturePath) == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("checksum and signature paths are required")
	}
	args := a.baseArgs()
	args = append(args, "--yes")
	if strings.TrimSpace(keySelector) != "" {
		args = append(args, "--local-user", keySelector)
	}
	args = append(args, "--detach-sign", "--output", signaturePath, checksumPath)
	if _, err := a.run(ctx, args...); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("gpg signing failed").
			WithCause(err)
	}
	return nil
}

func (a GPGSignerAdapter) Verify(ctx context.Context, signaturePath string, checksumPath string) (ports.SignatureCheck, error) {
	if err := ctx.Err(); err != nil {
		return ports.SignatureCheck{}, err
	}
	args := append(a.baseArgs(), "--status-fd", "1", "--verify", signaturePath, checksumPath)
	output, runErr := a.run(ctx, args...)
	check := parseGPGStatus(output)
	if runErr != nil || !check.Valid {
		cause := runErr
		if cause == nil {
			cause = shared.CommandError(output, errors.New("no valid signature status"))
		}
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("gpg verification failed").
			WithCause(cause)
	}
	return check, nil
}

func (a GPGSignerAdapter) baseArgs() []string {
	args := []string{"--batch", "--no-tty"}
	if strings.TrimSpace(a.Home) != "" {
		args = append(args, "--homedir", a.Home)
	}
	return args
}

func (a GPGSignerAdapter) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, shared.CommandError(output, err)
	}
	return output, nil
}

// parseGPGStatus reads VALIDSIG and GOODSIG lines. A BADSIG, ERRSIG,
// EXPKEYSIG or REVKEYSIG line makes the result invalid.
func parseGPGStatus(output []byte) ports.SignatureCheck {
	check := ports.SignatureCheck{}
	valid := false
	good := false
	for _, line := range strings.Split(string(output), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, gpgStatusPrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(line, gpgStatusPrefix))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "VALIDSIG":
			if len(fields) < 2 {
				continue
			}
			valid = true
			check.Identity = fields[1]
			// the primary key fingerprint is the last field when present
			if len(fields) >= 11 {
				check.Identity = fields[10]
			}
		case "GOODSIG":
			good = true
			if len(fields) >= 3 {
				check.UserID = strings.Join(fields[2:], " ")
			}
		case "BADSIG", "ERRSIG", "EXPKEYSIG", "REVKEYSIG":
			return ports.SignatureCheck{}
		}
	}
	check.Valid = valid && good && check.Identity != ""
	check.Identity = shared.NormalizeIdentity(check.Identity)
	return check
}

var (
	_ ports.SignerPort            = GPGSignerAdapter{}
	_ ports.SignatureVerifierPort = GPGSignerAdapter{}
)
