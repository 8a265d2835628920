package core

import (
	"sort"

	"chainsnap/internal/types"
)

// GroupGenerations folds store objects into generations keyed by stem.
// Every artifact kind contributes, so a stem whose archive is already gone
// is still reported and can be cleaned up.
func GroupGenerations(objects []types.ObjectInfo) []types.GenerationInfo {
	byStem := map[string]*types.GenerationInfo{}
	for _, object := range objects {
		stem, kind, ok := SplitArtifactKey(object.Key)
		if !ok {
			continue
		}
		gen, exists := byStem[stem]
		if !exists {
			date, height, known, _ := ParseStem(stem)
			gen = &types.GenerationInfo{
				Stem:        stem,
				Date:        date,
				Height:      height,
				HeightKnown: known,
				Kinds:       map[types.ArtifactKind]string{},
			}
			byStem[stem] = gen
		}
		gen.Kinds[kind] = object.Key
		if object.Updated.After(gen.CreatedAt) {
			gen.CreatedAt = object.Updated
		}
	}
	generations := make([]types.GenerationInfo, 0, len(byStem))
	for _, gen := range byStem {
		generations = append(generations, *gen)
	}
	SortByRecency(generations)
	return generations
}

// SortByRecency orders newest first by encoded date, then height, then
// modification time. Within a day an unknown height carries no order, so
// modification time decides first when either height is unknown. The stem
// is the final tie-breaker.
func SortByRecency(generations []types.GenerationInfo) {
	sort.SliceStable(generations, func(i, j int) bool {
		a, b := generations[i], generations[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if (!a.HeightKnown || !b.HeightKnown) && !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.Stem > b.Stem
	})
}
