package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/core"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// PruneSnapshots applies the retention window to the remote store or the
// local staging directory.
func (s Service) PruneSnapshots(ctx context.Context, req PruneRequest) (PruneResult, error) {
	target := req.Target
	if target == "" {
		target = PruneTargetRemote
	}
	var store ports.ArtifactStorePort
	keep := req.KeepLast
	switch target {
	case PruneTargetRemote:
		remote, err := s.requireRemote()
		if err != nil {
			return PruneResult{}, err
		}
		store = remote
		if keep == 0 {
			keep = s.Config.Retention.KeepRemote
		}
	case PruneTargetLocal:
		if s.Local == nil {
			return PruneResult{}, errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("staging_dir is required for local prune")
		}
		store = s.Local
		if keep == 0 {
			keep = s.Config.Retention.KeepLocal
		}
	default:
		return PruneResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("unsupported prune target")
	}
	result, err := pruneStore(ctx, store, types.RetentionPolicy{KeepLast: keep, DryRun: req.DryRun})
	result.Target = target
	return result, err
}

func pruneStore(ctx context.Context, store ports.ArtifactStorePort, policy types.RetentionPolicy) (PruneResult, error) {
	if policy.KeepLast <= 0 {
		return PruneResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("keep count must be at least 1")
	}
	objects, err := store.List(ctx, "")
	if err != nil {
		return PruneResult{}, err
	}
	generations := core.GroupGenerations(objects)
	pointerStem, err := pointerTarget(ctx, store, objects)
	if err != nil {
		return PruneResult{}, err
	}
	for i := range generations {
		generations[i].Pointer = generations[i].Stem == pointerStem
	}

	plan := BuildPrunePlan(generations, policy)
	result := PruneResult{
		KeepCount:   len(plan.Keep),
		DeleteCount: len(plan.Delete),
		Kept:        stems(plan.Keep),
		Deleted:     stems(plan.Delete),
		DryRun:      policy.DryRun,
	}
	if policy.DryRun {
		return result, nil
	}
	logger := log.Ctx(ctx)
	for _, generation := range plan.Delete {
		// Reverse publish order: the archive goes last so an interrupted
		// prune never leaves sidecars describing a missing archive.
		for i := len(types.ArtifactKinds) - 1; i >= 0; i-- {
			key := core.ArtifactKey(generation.Stem, types.ArtifactKinds[i])
			if err := store.Delete(ctx, key); err != nil {
				return result, err
			}
		}
		logger.Info().Str("store", store.Name()).Str("stem", generation.Stem).Msg("pruned generation")
	}
	return result, nil
}

// pointerTarget returns the stem latest.json refers to, or "" when the
// store has no pointer.
func pointerTarget(ctx context.Context, store ports.ArtifactStorePort, objects []types.ObjectInfo) (string, error) {
	present := false
	for _, object := range objects {
		if object.Key == core.PointerKey {
			present = true
			break
		}
	}
	if !present {
		return "", nil
	}
	pointer, err := ReadPointer(ctx, store)
	if err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("pointer unreadable; refusing to prune").
			WithCause(err)
	}
	stem, ok := core.PointerStem(pointer)
	if !ok {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("pointer names no archive; refusing to prune")
	}
	return stem, nil
}

// ReadPointer loads latest.json from a store.
func ReadPointer(ctx context.Context, store ports.ArtifactStorePort) (types.Pointer, error) {
	var pointer types.Pointer
	if err := readJSON(ctx, store, core.PointerKey, &pointer); err != nil {
		return types.Pointer{}, err
	}
	return pointer, nil
}

func stems(generations []types.GenerationInfo) []string {
	out := make([]string, 0, len(generations))
	for _, generation := range generations {
		out = append(out, generation.Stem)
	}
	return out
}

func (s Service) requireRemote() (ports.ArtifactStorePort, error) {
	if s.Remote == nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("remote store is not configured (store backend " + string(s.Config.Store.Backend) + ")")
	}
	return s.Remote, nil
}
