package app

import (
	"context"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/core"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// Inspect lists the generations held by the remote store and, on request,
// the staging directory.
func (s Service) Inspect(ctx context.Context, req InspectRequest) (InspectResult, error) {
	if s.Remote == nil && (!req.IncludeLocal || s.Local == nil) {
		return InspectResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("no store configured to inspect")
	}
	result := InspectResult{}
	if s.Remote != nil {
		objects, err := s.Remote.List(ctx, "")
		if err != nil {
			return result, err
		}
		pointerStem := ""
		pointer, err := ReadPointer(ctx, s.Remote)
		switch {
		case err == nil:
			result.Pointer = &pointer
			pointerStem, _ = core.PointerStem(pointer)
		case errbuilder.CodeOf(err) != errbuilder.CodeNotFound:
			return result, err
		}
		result.Remote = summarize(objects, pointerStem)
	}
	if req.IncludeLocal && s.Local != nil {
		summaries, err := summarizeStore(ctx, s.Local)
		if err != nil {
			return result, err
		}
		result.Local = summaries
	}
	return result, nil
}

func summarizeStore(ctx context.Context, store ports.ArtifactStorePort) ([]GenerationSummary, error) {
	objects, err := store.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return summarize(objects, ""), nil
}

func summarize(objects []types.ObjectInfo, pointerStem string) []GenerationSummary {
	sizes := make(map[string]int64, len(objects))
	for _, object := range objects {
		sizes[object.Key] = object.Size
	}
	generations := core.GroupGenerations(objects)
	summaries := make([]GenerationSummary, 0, len(generations))
	for _, generation := range generations {
		_, _, known, _ := core.ParseStem(generation.Stem)
		summary := GenerationSummary{
			Stem:        generation.Stem,
			Date:        generation.Date,
			Height:      generation.Height,
			HeightKnown: known,
			UpdatedAt:   generation.CreatedAt,
			Missing:     missingKinds(generation),
			Pointer:     generation.Stem == pointerStem,
		}
		if key, ok := generation.Kinds[types.ArtifactKindArchive]; ok {
			summary.ArchiveSize = sizes[key]
		}
		summaries = append(summaries, summary)
	}
	return summaries
}
