package adapters

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/ports"
)

// DetectingSignatureVerifier picks the verifier from the signature file
// contents: ed25519 documents are JSON, anything else goes to gpg.
type DetectingSignatureVerifier struct {
	GPG     ports.SignatureVerifierPort
	Ed25519 ports.SignatureVerifierPort
}

func NewDetectingSignatureVerifier(gpg ports.SignatureVerifierPort, ed ports.SignatureVerifierPort) DetectingSignatureVerifier {
	return DetectingSignatureVerifier{GPG: gpg, Ed25519: ed}
}

func (d DetectingSignatureVerifier) Verify(ctx context.Context, signaturePath string, checksumPath string) (ports.SignatureCheck, error) {
	file, err := os.Open(signaturePath)
	if err != nil {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open signature file").
			WithCause(err)
	}
	head := make([]byte, 64)
	n, err := io.ReadFull(file, head)
	_ = file.Close()
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read signature file").
			WithCause(err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(head[:n]), []byte("{")) {
		return d.Ed25519.Verify(ctx, signaturePath, checksumPath)
	}
	return d.GPG.Verify(ctx, signaturePath, checksumPath)
}

var _ ports.SignatureVerifierPort = DetectingSignatureVerifier{}
