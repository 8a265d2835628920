package policies

import (
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"gopkg.in/yaml.v3"

	"chainsnap/internal/shared"
)

// minimumIDLength is a gpg long key id; shorter ids collide in practice.
const minimumIDLength = 16

const ed25519Prefix = "ED25519:"

// TrustPolicy decides whether a validated signer may be trusted.
type TrustPolicy struct {
	Allowed []string
}

type trustFile struct {
	TrustedSigners []string `yaml:"trusted_signers"`
}

func NewTrustPolicy(allowed []string) TrustPolicy {
	var normalized []string
	for _, value := range allowed {
		identity := shared.NormalizeIdentity(value)
		if identity == "" {
			continue
		}
		normalized = append(normalized, identity)
	}
	return TrustPolicy{Allowed: normalized}
}

// LoadTrustPolicy reads a YAML document with a trusted_signers list.
func LoadTrustPolicy(path string) (TrustPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return TrustPolicy{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return TrustPolicy{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to read trust file").
			WithCause(err)
	}
	var doc trustFile
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return TrustPolicy{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to parse trust file").
			WithCause(err)
	}
	return NewTrustPolicy(doc.TrustedSigners), nil
}

// Accepts reports whether identity satisfies the expected identity (when
// given) and the allow-list (when configured).
func (p TrustPolicy) Accepts(identity string, expected string) bool {
	normalized := shared.NormalizeIdentity(identity)
	if normalized == "" {
		return false
	}
	if strings.TrimSpace(expected) != "" && !IdentityMatches(normalized, expected) {
		return false
	}
	if len(p.Allowed) == 0 {
		return true
	}
	for _, allowed := range p.Allowed {
		if IdentityMatches(normalized, allowed) {
			return true
		}
	}
	return false
}

// IdentityMatches compares a reported signer identity with an expectation.
// An expectation may be the full identity or, for gpg fingerprints, a long
// key id suffix of it. ed25519 identities only match in full.
func IdentityMatches(identity string, expected string) bool {
	have := shared.NormalizeIdentity(identity)
	want := shared.NormalizeIdentity(expected)
	if have == "" || want == "" {
		return false
	}
	if have == want {
		return true
	}
	if strings.HasPrefix(have, ed25519Prefix) {
		return false
	}
	if len(want) >= minimumIDLength && strings.HasSuffix(have, want) {
		return true
	}
	return false
}
