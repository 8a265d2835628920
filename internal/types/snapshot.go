package types

import "time"

// UnknownHeight is recorded when the node could not report its tip.
const UnknownHeight int64 = 0

const CompressionZstd = "zstd"

type ArtifactURLs struct {
	Archive   string
	Checksum  string
	Signature string
	Metadata  string
}

// Snapshot is one generation of the database archive.
type Snapshot struct {
	Network     string
	Height      int64
	HeightKnown bool
	Date        time.Time
	Stem        string
	SizeBytes   int64
	Compression string
	SHA256      string
	NodeVersion string
	URLs        ArtifactURLs
	CreatedAt   time.Time
}

// LocalArtifacts holds the staged file paths of a generation.
type LocalArtifacts struct {
	Archive   string
	Checksum  string
	Signature string
	Metadata  string
}

func (a LocalArtifacts) Path(kind ArtifactKind) string {
	switch kind {
	case ArtifactKindArchive:
		return a.Archive
	case ArtifactKindChecksum:
		return a.Checksum
	case ArtifactKindSignature:
		return a.Signature
	case ArtifactKindMetadata:
		return a.Metadata
	}
	return ""
}

type ObjectInfo struct {
	Key     string
	Size    int64
	Updated time.Time
}

type NodeInfo struct {
	Height      int64
	HeightKnown bool
	Version     string
}

type ArchiveStats struct {
	Files      int
	InputBytes int64
	Written    int64
}

type OpenHandle struct {
	PID  int32
	Name string
	Path string
}
