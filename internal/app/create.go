package app

import (
	"context"
	"encoding/hex"
	"io"
	"os"
	"strings"

	assert "github.com/ZanzyTHEbar/assert-lib"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/adapters"
	"chainsnap/internal/core"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

const unknownNodeVersion = "unknown"

type archiveOutput struct {
	digest string
	stats  types.ArchiveStats
}

// CreateSnapshot runs one full pipeline: capture under a stopped node,
// checksum, sign, publish and prune. The node is restarted on every path
// that stopped it.
func (s Service) CreateSnapshot(ctx context.Context, req CreateRequest) (result CreateResult, err error) {
	if err := ValidateForCreate(s.Config); err != nil {
		return CreateResult{}, err
	}
	if s.Local == nil || s.Lock == nil {
		return CreateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("snapshot runs require a staging store and run lock")
	}
	streamed := s.Config.Archive.Mode == types.ArchiveModeStream
	if streamed && s.Remote == nil {
		return CreateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stream archive mode requires a configured remote store")
	}
	if streamed && req.SkipPublish {
		return CreateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("stream archive mode uploads while archiving; skip-publish needs file mode")
	}

	locked, err := s.Lock.TryLock()
	if err != nil {
		return CreateResult{}, err
	}
	if !locked {
		return CreateResult{}, errbuilder.New().
			WithCode(errbuilder.CodeAlreadyExists).
			WithMsg("another snapshot run is in progress")
	}
	defer func() {
		if unlockErr := s.Lock.Unlock(); unlockErr != nil {
			log.Ctx(ctx).Warn().Err(unlockErr).Msg("failed to release run lock")
		}
	}()

	result.RunID = uuid.NewString()
	logger := log.Ctx(ctx).With().Str("run_id", result.RunID).Logger()
	ctx = logger.WithContext(ctx)
	started := timeNow(s.Clock)
	defer func() {
		report := ports.RunReport{
			Success:    err == nil,
			Finished:   timeNow(s.Clock),
			Downtime:   result.Downtime,
			ArchiveLen: result.Snapshot.SizeBytes,
			Height:     result.Snapshot.Height,
		}
		report.Duration = report.Finished.Sub(started)
		if metricsErr := s.metrics().RecordRun(report); metricsErr != nil {
			logger.Warn().Err(metricsErr).Msg("failed to record run metrics")
		}
	}()

	cfg := s.Config
	node := s.queryNode(ctx)
	stem := core.BuildStem(cfg.NamePrefix, cfg.Network, started, node.Height, node.HeightKnown)
	assert.NotEmpty(ctx, stem, "snapshot stem must be set")
	logger.Info().
		Str("stem", stem).
		Str("height", core.HeightToken(node.Height, node.HeightKnown)).
		Str("mode", string(cfg.Archive.Mode)).
		Msg("starting snapshot run")

	if err := os.MkdirAll(cfg.StagingDir, 0o755); err != nil {
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create staging directory").
			WithCause(err)
	}
	artifacts := core.LocalArtifacts(cfg.StagingDir, stem)
	archiveKey := core.ArtifactKey(stem, types.ArtifactKindArchive)

	controller := core.LifecycleController{
		Service:    s.Supervisor,
		Handles:    s.Handles,
		Sleep:      s.Sleep,
		Clock:      s.Clock,
		NewBackOff: s.NewBackOff,
	}
	var produced archiveOutput
	capture, err := controller.Capture(ctx, core.CaptureRequest{
		ServiceName:     cfg.Node.Service,
		DataDir:         cfg.Node.DataDir,
		QuiesceDelay:    cfg.Node.QuiesceDelay,
		RestartAttempts: cfg.Node.RestartAttempts,
	}, func(ctx context.Context, release func()) error {
		var archiveErr error
		if streamed {
			produced, archiveErr = s.streamArchive(ctx, archiveKey, release)
		} else {
			produced, archiveErr = s.archiveToFile(ctx, artifacts.Archive, release)
		}
		return archiveErr
	})
	result.WasActive = capture.WasActive
	result.Downtime = capture.Downtime
	result.Streamed = streamed
	if err != nil {
		return result, err
	}
	if streamed {
		artifacts.Archive = ""
	}
	result.Artifacts = artifacts

	snapshot := types.Snapshot{
		Network:     cfg.Network,
		Height:      node.Height,
		HeightKnown: node.HeightKnown,
		Date:        started,
		Stem:        stem,
		SizeBytes:   produced.stats.Written,
		Compression: types.CompressionZstd,
		SHA256:      produced.digest,
		NodeVersion: node.Version,
		CreatedAt:   started,
	}
	result.Snapshot = snapshot
	logger.Info().
		Int("files", produced.stats.Files).
		Str("input", humanize.Bytes(uint64(max(produced.stats.InputBytes, 0)))).
		Str("archive", humanize.Bytes(uint64(max(produced.stats.Written, 0)))).
		Str("sha256", produced.digest).
		Msg("archive complete")

	checksumKey := core.ArtifactKey(stem, types.ArtifactKindChecksum)
	line := core.FormatChecksumLine(produced.digest, archiveKey)
	if err := s.Local.Put(ctx, checksumKey, strings.NewReader(line)); err != nil {
		return result, err
	}
	if err := s.Signer.Sign(ctx, artifacts.Checksum, artifacts.Signature, cfg.Sign.KeyID); err != nil {
		msg := "signing failed; generation not published"
		if artifacts.Archive != "" {
			msg += ", archive kept at " + artifacts.Archive
		}
		return result, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg(msg).
			WithCause(err)
	}

	publish := !req.SkipPublish && s.Remote != nil
	urlStore := s.Local
	if publish || streamed {
		urlStore = s.Remote
	}
	snapshot.URLs = artifactURLs(urlStore, stem)
	result.Snapshot = snapshot
	meta := core.BuildMetadata(snapshot, core.MetadataOptions{
		CreatedBy:   s.CreatedBy,
		RootName:    cfg.Archive.RootName,
		SignBackend: cfg.Sign.Backend,
	})
	if err := writeJSON(ctx, s.Local, core.ArtifactKey(stem, types.ArtifactKindMetadata), meta); err != nil {
		return result, err
	}

	if !publish {
		logger.Info().Str("stem", stem).Msg("publish skipped; generation staged locally")
	} else {
		published, err := publishGeneration(ctx, s.Remote, artifacts, snapshot, streamed)
		if err != nil {
			return result, err
		}
		result.Published = true
		result.PointerURL = published.PointerURL
	}

	if req.SkipPrune {
		return result, nil
	}
	protect := []string{stem}
	if result.Published {
		pruned, err := pruneStore(ctx, s.Remote, types.RetentionPolicy{KeepLast: cfg.Retention.KeepRemote, ProtectStems: protect})
		if err != nil {
			return result, err
		}
		result.PrunedRemote = pruned.Deleted
	}
	pruned, err := pruneStore(ctx, s.Local, types.RetentionPolicy{KeepLast: cfg.Retention.KeepLocal, ProtectStems: protect})
	if err != nil {
		return result, err
	}
	result.PrunedLocal = pruned.Deleted
	return result, nil
}

// queryNode never fails the run; an unreachable node yields the unknown
// height sentinel.
func (s Service) queryNode(ctx context.Context) types.NodeInfo {
	logger := log.Ctx(ctx)
	info := types.NodeInfo{Height: types.UnknownHeight, Version: unknownNodeVersion}
	if s.Node == nil {
		logger.Warn().Msg("no node RPC configured; height unknown")
		return info
	}
	height, err := s.Node.TipBlockNumber(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("node RPC unreachable; recording unknown height")
	} else {
		info.Height = height
		info.HeightKnown = true
	}
	version, err := s.Node.NodeVersion(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("node version unavailable")
	} else if strings.TrimSpace(version) != "" {
		info.Version = strings.TrimSpace(version)
	}
	return info
}

// archiveToFile writes the archive next to its final name and renames it
// once complete, hashing the bytes as they are written.
func (s Service) archiveToFile(ctx context.Context, path string, release func()) (archiveOutput, error) {
	partial := path + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return archiveOutput{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create archive file").
			WithCause(err)
	}
	hasher := s.Digest.New()
	stats, err := s.Archiver.WriteArchive(ctx, s.Config.Node.DataDir, s.Config.Archive.RootName, s.Config.Archive.Level, io.MultiWriter(file, hasher), release)
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(partial, path)
	}
	if err != nil {
		_ = os.Remove(partial)
		return archiveOutput{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write archive").
			WithCause(err)
	}
	return archiveOutput{digest: hex.EncodeToString(hasher.Sum(nil)), stats: stats}, nil
}

// streamArchive sends the archive straight to the remote store while
// hashing the same bytes. Nothing is staged locally.
func (s Service) streamArchive(ctx context.Context, key string, release func()) (archiveOutput, error) {
	var out archiveOutput
	err := core.RunFanout(ctx,
		func(ctx context.Context, w io.Writer) error {
			stats, err := s.Archiver.WriteArchive(ctx, s.Config.Node.DataDir, s.Config.Archive.RootName, s.Config.Archive.Level, w, release)
			out.stats = stats
			return err
		},
		func(ctx context.Context, r io.Reader) error {
			hasher := s.Digest.New()
			if _, err := io.Copy(hasher, r); err != nil {
				return err
			}
			out.digest = hex.EncodeToString(hasher.Sum(nil))
			return nil
		},
		func(ctx context.Context, r io.Reader) error {
			return s.Remote.Put(ctx, key, r)
		},
	)
	if err != nil {
		return archiveOutput{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to stream archive to " + s.Remote.Name()).
			WithCause(err)
	}
	return out, nil
}

func (s Service) metrics() ports.MetricsPort {
	if s.Metrics == nil {
		return adapters.NoopMetricsAdapter{}
	}
	return s.Metrics
}
