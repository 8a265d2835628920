package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/policies"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// Verifier re-validates a downloaded archive before it is trusted. The
// checksum must pass before the signature is looked at.
type Verifier struct {
	Digest     ports.DigestPort
	Signatures ports.SignatureVerifierPort
	Trust      policies.TrustPolicy
}

type VerifyInput struct {
	ArchivePath      string
	ChecksumPath     string
	SignaturePath    string
	ExpectedIdentity string
	RequireSignature bool
}

func NewVerifier(digest ports.DigestPort, signatures ports.SignatureVerifierPort, trust policies.TrustPolicy) Verifier {
	return Verifier{Digest: digest, Signatures: signatures, Trust: trust}
}

// Verify returns the final state. A nil error means the state is trusted.
func (v Verifier) Verify(ctx context.Context, in VerifyInput) (types.VerifyOutcome, error) {
	outcome := types.VerifyOutcome{State: types.VerifyStateChecksumPending}
	if v.Digest == nil {
		return outcome, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("verifier requires a digest port")
	}
	archivePath := strings.TrimSpace(in.ArchivePath)
	if archivePath == "" {
		return outcome, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("archive path is required")
	}
	checksumPath := in.ChecksumPath
	if checksumPath == "" {
		checksumPath = archivePath + ".sha256"
	}
	signaturePath := in.SignaturePath
	if signaturePath == "" {
		signaturePath = checksumPath + ".sig"
	}

	content, err := os.ReadFile(checksumPath)
	if err != nil {
		return outcome, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("checksum file not found").
			WithCause(err)
	}
	expected, named, err := ParseChecksumLine(string(content))
	if err != nil {
		outcome.State = types.VerifyStateChecksumFailed
		return outcome, checksumMismatch(err)
	}
	outcome.Expected = expected
	if named != filepath.Base(archivePath) {
		outcome.State = types.VerifyStateChecksumFailed
		return outcome, checksumMismatch(errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("checksum file names " + named))
	}
	actual, err := v.Digest.DigestFile(ctx, archivePath)
	if err != nil {
		return outcome, err
	}
	outcome.Digest = actual
	if !strings.EqualFold(actual, expected) {
		outcome.State = types.VerifyStateChecksumFailed
		return outcome, checksumMismatch(nil)
	}
	outcome.State = types.VerifyStateChecksumOK
	log.Ctx(ctx).Debug().Str("digest", actual).Msg("checksum verified")

	if _, err := os.Stat(signaturePath); err != nil {
		if !os.IsNotExist(err) || in.RequireSignature {
			outcome.State = types.VerifyStateSignatureInvalid
			return outcome, signatureInvalid(err)
		}
		outcome.State = types.VerifyStateSignatureSkipped
		outcome.ChecksumOnly = true
		return outcome, nil
	}
	if v.Signatures == nil {
		return outcome, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("signature present but no signature verifier configured")
	}
	check, err := v.Signatures.Verify(ctx, signaturePath, checksumPath)
	if err != nil || !check.Valid {
		outcome.State = types.VerifyStateSignatureInvalid
		return outcome, signatureInvalid(err)
	}
	outcome.Signer = check.Identity
	outcome.SignerUserID = check.UserID
	if !v.Trust.Accepts(check.Identity, in.ExpectedIdentity) {
		outcome.State = types.VerifyStateIdentityMismatch
		return outcome, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("signer identity mismatch: " + check.Identity)
	}
	outcome.State = types.VerifyStateSignatureOK
	return outcome, nil
}

func checksumMismatch(cause error) error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodeFailedPrecondition).
		WithMsg("checksum mismatch")
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}

func signatureInvalid(cause error) error {
	builder := errbuilder.New().
		WithCode(errbuilder.CodePermissionDenied).
		WithMsg("signature invalid")
	if cause != nil {
		return builder.WithCause(cause)
	}
	return builder
}
