package app

import (
	"strings"

	"chainsnap/internal/core"
	"chainsnap/internal/types"
)

// BuildPrunePlan keeps the KeepLast most recent generations plus every
// protected one. The pointer target is always protected. Both halves of
// the plan are ordered newest first.
func BuildPrunePlan(generations []types.GenerationInfo, policy types.RetentionPolicy) types.PrunePlan {
	sorted := append([]types.GenerationInfo(nil), generations...)
	core.SortByRecency(sorted)
	protected := normalizeSet(policy.ProtectStems)

	keepLast := policy.KeepLast
	if keepLast < 0 {
		keepLast = 0
	}
	plan := types.PrunePlan{}
	for i, generation := range sorted {
		_, isProtected := protected[generation.Stem]
		if i < keepLast || isProtected || generation.Pointer {
			plan.Keep = append(plan.Keep, generation)
			continue
		}
		plan.Delete = append(plan.Delete, generation)
	}
	return plan
}

func normalizeSet(values []string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, value := range values {
		key := strings.TrimSpace(value)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	return set
}
