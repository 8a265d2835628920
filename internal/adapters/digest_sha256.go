package adapters

import (
	"context"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/ZanzyTHEbar/errbuilder-go"
	sha256 "github.com/minio/sha256-simd"

	"chainsnap/internal/ports"
)

type SHA256DigestAdapter struct{}

func NewSHA256DigestAdapter() SHA256DigestAdapter {
	return SHA256DigestAdapter{}
}

func (SHA256DigestAdapter) New() hash.Hash {
	return sha256.New()
}

func (SHA256DigestAdapter) Algorithm() string {
	return "sha256"
}

func (a SHA256DigestAdapter) DigestFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("file not found: " + path).
				WithCause(err)
		}
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open file for digest").
			WithCause(err)
	}
	defer file.Close()
	hasher := a.New()
	if _, err := io.Copy(hasher, contextReader{ctx: ctx, r: file}); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to hash file").
			WithCause(err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

var _ ports.DigestPort = SHA256DigestAdapter{}
