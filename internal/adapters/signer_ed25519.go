package adapters

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"golang.org/x/crypto/ed25519"

	"chainsnap/internal/ports"
)

const (
	ed25519Alg            = "ed25519"
	ed25519IdentityPrefix = "ed25519:"
)

// ed25519Signature is the detached signature document written next to the
// checksum file. The public key travels with it; trust comes from
// matching the reported identity.
type ed25519Signature struct {
	Alg string `json:"alg"`
	Pub string `json:"pub"`
	Sig string `json:"sig"`
}

// Ed25519SignerAdapter signs with a private key read from the file named
// by the key selector.
type Ed25519SignerAdapter struct{}

func NewEd25519SignerAdapter() Ed25519SignerAdapter {
	return Ed25519SignerAdapter{}
}

func (Ed25519SignerAdapter) Backend() string {
	return ed25519Alg
}

func (a Ed25519SignerAdapter) Sign(ctx context.Context, checksumPath string, signaturePath string, keySelector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := LoadEd25519Key(keySelector)
	if err != nil {
		return err
	}
	message, err := os.ReadFile(checksumPath)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read checksum file").
			WithCause(err)
	}
	doc := ed25519Signature{
		Alg: ed25519Alg,
		Pub: hex.EncodeToString(key.Public().(ed25519.PublicKey)),
		Sig: base64.StdEncoding.EncodeToString(ed25519.Sign(key, message)),
	}
	content, err := json.Marshal(doc)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode signature").
			WithCause(err)
	}
	if err := os.WriteFile(signaturePath, append(content, '\n'), 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write signature file").
			WithCause(err)
	}
	return nil
}

func (a Ed25519SignerAdapter) Verify(ctx context.Context, signaturePath string, checksumPath string) (ports.SignatureCheck, error) {
	if err := ctx.Err(); err != nil {
		return ports.SignatureCheck{}, err
	}
	content, err := os.ReadFile(signaturePath)
	if err != nil {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read signature file").
			WithCause(err)
	}
	var doc ed25519Signature
	if err := json.Unmarshal(content, &doc); err != nil || doc.Alg != ed25519Alg {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("unsupported signature format")
	}
	pub, err := hex.DecodeString(doc.Pub)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("invalid ed25519 public key")
	}
	sig, err := base64.StdEncoding.DecodeString(doc.Sig)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("invalid ed25519 signature encoding")
	}
	message, err := os.ReadFile(checksumPath)
	if err != nil {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read checksum file").
			WithCause(err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), message, sig) {
		return ports.SignatureCheck{}, errbuilder.New().
			WithCode(errbuilder.CodePermissionDenied).
			WithMsg("ed25519 signature does not match")
	}
	return ports.SignatureCheck{Valid: true, Identity: Ed25519Identity(pub)}, nil
}

// Ed25519Identity renders the signer identity reported for a public key.
func Ed25519Identity(pub []byte) string {
	return ed25519IdentityPrefix + hex.EncodeToString(pub)
}

// LoadEd25519Key reads a hex or base64 encoded seed or full private key.
func LoadEd25519Key(path string) (ed25519.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("ed25519 key file is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read ed25519 key file").
			WithCause(err)
	}
	raw := decodeKeyMaterial(strings.TrimSpace(string(content)))
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("ed25519 key must be a 32 byte seed or 64 byte private key")
	}
}

func decodeKeyMaterial(value string) []byte {
	if raw, err := hex.DecodeString(value); err == nil {
		return raw
	}
	if raw, err := base64.StdEncoding.DecodeString(value); err == nil {
		return raw
	}
	return nil
}

var (
	_ ports.SignerPort            = Ed25519SignerAdapter{}
	_ ports.SignatureVerifierPort = Ed25519SignerAdapter{}
)
