package types

type VerifyOutcome struct {
	State        VerifyState
	Digest       string
	Expected     string
	Signer       string
	SignerUserID string
	ChecksumOnly bool
}
