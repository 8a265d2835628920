package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/core"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// Publish re-uploads a staged generation and moves the pointer to it. With
// no stem the newest complete local generation is used.
func (s Service) Publish(ctx context.Context, req PublishRequest) (PublishResult, error) {
	remote, err := s.requireRemote()
	if err != nil {
		return PublishResult{}, err
	}
	if s.Local == nil {
		return PublishResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("staging_dir is required for publish")
	}
	objects, err := s.Local.List(ctx, "")
	if err != nil {
		return PublishResult{}, err
	}
	generation, err := selectGeneration(core.GroupGenerations(objects), strings.TrimSpace(req.Stem))
	if err != nil {
		return PublishResult{}, err
	}
	artifacts := core.LocalArtifacts(s.Config.StagingDir, generation.Stem)

	snapshot, meta, err := s.loadStagedSnapshot(ctx, generation, artifacts)
	if err != nil {
		return PublishResult{}, err
	}
	if req.VerifyDigest {
		actual, err := s.Digest.DigestFile(ctx, artifacts.Archive)
		if err != nil {
			return PublishResult{}, err
		}
		if !strings.EqualFold(actual, snapshot.SHA256) {
			return PublishResult{}, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("checksum mismatch").
				WithCause(errbuilder.New().
					WithCode(errbuilder.CodeFailedPrecondition).
					WithMsg("staged archive " + generation.Stem + " no longer matches its checksum"))
		}
	}

	snapshot.URLs = artifactURLs(remote, snapshot.Stem)
	rewritten := core.BuildMetadata(snapshot, core.MetadataOptions{
		CreatedBy:   defaultString(meta.CreatedBy, s.CreatedBy),
		RootName:    s.Config.Archive.RootName,
		SignBackend: s.Config.Sign.Backend,
	})
	if err := writeJSON(ctx, s.Local, core.ArtifactKey(snapshot.Stem, types.ArtifactKindMetadata), rewritten); err != nil {
		return PublishResult{}, err
	}
	return publishGeneration(ctx, remote, artifacts, snapshot, false)
}

// publishGeneration uploads archive, checksum, signature and metadata in
// that order, confirms they are all readable and only then replaces the
// pointer. A failure before the pointer write leaves the previous pointer
// untouched.
func publishGeneration(ctx context.Context, store ports.ArtifactStorePort, local types.LocalArtifacts, snapshot types.Snapshot, archiveUploaded bool) (PublishResult, error) {
	logger := log.Ctx(ctx)
	result := PublishResult{Stem: snapshot.Stem}
	for _, kind := range types.ArtifactKinds {
		key := core.ArtifactKey(snapshot.Stem, kind)
		result.Keys = append(result.Keys, key)
		if kind == types.ArtifactKindArchive && archiveUploaded {
			continue
		}
		path := local.Path(kind)
		if path == "" {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("no staged " + string(kind) + " for " + snapshot.Stem)
		}
		if err := store.PutFile(ctx, key, path); err != nil {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to upload " + key).
				WithCause(err)
		}
		logger.Debug().Str("store", store.Name()).Str("key", key).Msg("uploaded artifact")
	}

	for _, key := range result.Keys {
		info, err := store.Stat(ctx, key)
		if err != nil {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("uploaded artifact not visible: " + key).
				WithCause(err)
		}
		if key == core.ArtifactKey(snapshot.Stem, types.ArtifactKindArchive) && snapshot.SizeBytes > 0 && info.Size != snapshot.SizeBytes {
			return result, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("uploaded archive size differs from staged size")
		}
	}

	if err := writeJSON(ctx, store, core.PointerKey, core.BuildPointer(snapshot)); err != nil {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to update pointer").
			WithCause(err)
	}
	result.PointerURL = store.URL(core.PointerKey)
	logger.Info().
		Str("store", store.Name()).
		Str("stem", snapshot.Stem).
		Str("size", humanize.Bytes(uint64(max(snapshot.SizeBytes, 0)))).
		Str("pointer", result.PointerURL).
		Msg("generation published")
	return result, nil
}

func selectGeneration(generations []types.GenerationInfo, stem string) (types.GenerationInfo, error) {
	for _, generation := range generations {
		if stem != "" && generation.Stem != stem {
			continue
		}
		if missing := missingKinds(generation); len(missing) > 0 {
			if stem == "" {
				continue
			}
			return types.GenerationInfo{}, errbuilder.New().
				WithCode(errbuilder.CodeFailedPrecondition).
				WithMsg("generation " + stem + " is incomplete; missing " + joinKinds(missing))
		}
		return generation, nil
	}
	if stem != "" {
		return types.GenerationInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("no staged generation " + stem)
	}
	return types.GenerationInfo{}, errbuilder.New().
		WithCode(errbuilder.CodeNotFound).
		WithMsg("no complete staged generation found")
}

func missingKinds(generation types.GenerationInfo) []types.ArtifactKind {
	var missing []types.ArtifactKind
	for _, kind := range types.ArtifactKinds {
		if !generation.Has(kind) {
			missing = append(missing, kind)
		}
	}
	return missing
}

func joinKinds(kinds []types.ArtifactKind) string {
	names := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		names = append(names, string(kind))
	}
	return strings.Join(names, ", ")
}

func (s Service) loadStagedSnapshot(ctx context.Context, generation types.GenerationInfo, artifacts types.LocalArtifacts) (types.Snapshot, types.Metadata, error) {
	var meta types.Metadata
	if err := readJSON(ctx, s.Local, core.ArtifactKey(generation.Stem, types.ArtifactKindMetadata), &meta); err != nil {
		return types.Snapshot{}, meta, err
	}
	content, err := os.ReadFile(artifacts.Checksum)
	if err != nil {
		return types.Snapshot{}, meta, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("checksum file not found").
			WithCause(err)
	}
	digest, named, err := core.ParseChecksumLine(string(content))
	if err != nil {
		return types.Snapshot{}, meta, err
	}
	if named != core.ArtifactKey(generation.Stem, types.ArtifactKindArchive) {
		return types.Snapshot{}, meta, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("checksum file names " + named)
	}
	info, err := os.Stat(artifacts.Archive)
	if err != nil {
		return types.Snapshot{}, meta, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("staged archive not found").
			WithCause(err)
	}
	_, height, known, _ := core.ParseStem(generation.Stem)
	return types.Snapshot{
		Network:     defaultString(meta.Network, s.Config.Network),
		Height:      height,
		HeightKnown: known,
		Date:        generation.Date,
		Stem:        generation.Stem,
		SizeBytes:   info.Size(),
		Compression: defaultString(meta.Compression, types.CompressionZstd),
		SHA256:      digest,
		NodeVersion: meta.NodeVersion,
		CreatedAt:   generation.CreatedAt,
	}, meta, nil
}

func artifactURLs(store ports.ArtifactStorePort, stem string) types.ArtifactURLs {
	return types.ArtifactURLs{
		Archive:   store.URL(core.ArtifactKey(stem, types.ArtifactKindArchive)),
		Checksum:  store.URL(core.ArtifactKey(stem, types.ArtifactKindChecksum)),
		Signature: store.URL(core.ArtifactKey(stem, types.ArtifactKindSignature)),
		Metadata:  store.URL(core.ArtifactKey(stem, types.ArtifactKindMetadata)),
	}
}

func writeJSON(ctx context.Context, store ports.ArtifactStorePort, key string, value any) error {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode " + key).
			WithCause(err)
	}
	content = append(content, '\n')
	return store.Put(ctx, key, bytes.NewReader(content))
}

func readJSON(ctx context.Context, store ports.ArtifactStorePort, key string, out any) error {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read " + key).
			WithCause(err)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to decode " + key).
			WithCause(err)
	}
	return nil
}
