package types

import "time"

// GenerationInfo describes one artifact set found in a store.
type GenerationInfo struct {
	Stem        string
	Date        time.Time
	Height      int64
	HeightKnown bool
	CreatedAt   time.Time
	Kinds       map[ArtifactKind]string
	Pointer     bool
}

func (g GenerationInfo) Has(kind ArtifactKind) bool {
	_, ok := g.Kinds[kind]
	return ok
}

type RetentionPolicy struct {
	KeepLast     int
	ProtectStems []string
	DryRun       bool
}

type PrunePlan struct {
	Keep   []GenerationInfo
	Delete []GenerationInfo
}
