package types

type ArtifactKind string

const (
	ArtifactKindArchive   ArtifactKind = "archive"
	ArtifactKindChecksum  ArtifactKind = "checksum"
	ArtifactKindSignature ArtifactKind = "signature"
	ArtifactKindMetadata  ArtifactKind = "metadata"
)

// ArtifactKinds lists every kind in publish order.
var ArtifactKinds = []ArtifactKind{
	ArtifactKindArchive,
	ArtifactKindChecksum,
	ArtifactKindSignature,
	ArtifactKindMetadata,
}

type ArchiveMode string

const (
	ArchiveModeFile   ArchiveMode = "file"
	ArchiveModeStream ArchiveMode = "stream"
)

type SignBackend string

const (
	SignBackendGPG     SignBackend = "gpg"
	SignBackendEd25519 SignBackend = "ed25519"
)

type StoreBackend string

const (
	StoreBackendFile StoreBackend = "file"
	StoreBackendGCS  StoreBackend = "gcs"
	StoreBackendNone StoreBackend = "none"
)

type VerifyState string

const (
	VerifyStateChecksumPending  VerifyState = "checksum-pending"
	VerifyStateChecksumOK       VerifyState = "checksum-ok"
	VerifyStateSignatureSkipped VerifyState = "signature-skipped"
	VerifyStateSignatureOK      VerifyState = "signature-ok"
	VerifyStateChecksumFailed   VerifyState = "checksum-failed"
	VerifyStateSignatureInvalid VerifyState = "signature-invalid"
	VerifyStateIdentityMismatch VerifyState = "signature-identity-mismatch"
)

// Terminal reports whether no further transition is possible.
func (s VerifyState) Terminal() bool {
	switch s {
	case VerifyStateSignatureSkipped, VerifyStateSignatureOK,
		VerifyStateChecksumFailed, VerifyStateSignatureInvalid, VerifyStateIdentityMismatch:
		return true
	}
	return false
}

// Trusted reports whether the archive may be used.
func (s VerifyState) Trusted() bool {
	return s == VerifyStateSignatureOK || s == VerifyStateSignatureSkipped
}
