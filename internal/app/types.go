package app

import (
	"time"

	"chainsnap/internal/types"
)

type CreateRequest struct {
	SkipPublish bool
	SkipPrune   bool
}

type CreateResult struct {
	RunID        string
	Snapshot     types.Snapshot
	Artifacts    types.LocalArtifacts
	WasActive    bool
	Downtime     time.Duration
	Streamed     bool
	Published    bool
	PointerURL   string
	PrunedRemote []string
	PrunedLocal  []string
}

type PublishRequest struct {
	Stem         string
	VerifyDigest bool
}

type PublishResult struct {
	Stem       string
	Keys       []string
	PointerURL string
}

type PruneTarget string

const (
	PruneTargetRemote PruneTarget = "remote"
	PruneTargetLocal  PruneTarget = "local"
)

type PruneRequest struct {
	Target   PruneTarget
	KeepLast int
	DryRun   bool
}

type PruneResult struct {
	Target      PruneTarget
	KeepCount   int
	DeleteCount int
	Kept        []string
	Deleted     []string
	DryRun      bool
}

type VerifyRequest struct {
	ArchivePath      string
	ExpectedIdentity string
	TrustFile        string
	RequireSignature bool
	Latest           bool
	PointerURL       string
	DownloadDir      string
	ExtractDir       string
}

type VerifyResult struct {
	ArchivePath string
	Outcome     types.VerifyOutcome
	Extracted   string
}

type InspectRequest struct {
	IncludeLocal bool
}

type GenerationSummary struct {
	Stem        string
	Date        time.Time
	Height      int64
	HeightKnown bool
	UpdatedAt   time.Time
	ArchiveSize int64
	Missing     []types.ArtifactKind
	Pointer     bool
}

type InspectResult struct {
	Pointer *types.Pointer
	Remote  []GenerationSummary
	Local   []GenerationSummary
}
