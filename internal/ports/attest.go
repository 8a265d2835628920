package ports

import (
	"context"
	"hash"
)

// DigestPort supplies the content hash used for checksum files.
type DigestPort interface {
	New() hash.Hash
	Algorithm() string
	DigestFile(ctx context.Context, path string) (string, error)
}

// SignerPort produces a detached signature over a checksum file.
type SignerPort interface {
	Sign(ctx context.Context, checksumPath string, signaturePath string, keySelector string) error
	Backend() string
}

// SignatureVerifierPort validates a detached signature and reports the signer.
type SignatureVerifierPort interface {
	Verify(ctx context.Context, signaturePath string, checksumPath string) (SignatureCheck, error)
}

type SignatureCheck struct {
	Valid    bool
	Identity string
	UserID   string
}
