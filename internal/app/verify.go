package app

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/core"
	"chainsnap/internal/policies"
	"chainsnap/internal/types"
)

type artifactSource func(ctx context.Context, kind types.ArtifactKind) (io.ReadCloser, error)

// Verify checks a downloaded generation. Nothing is extracted unless the
// checksum and, when present, the signature are trusted.
func (s Service) Verify(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	trust := policies.NewTrustPolicy(nil)
	if path := strings.TrimSpace(req.TrustFile); path != "" {
		loaded, err := policies.LoadTrustPolicy(path)
		if err != nil {
			return VerifyResult{}, err
		}
		trust = loaded
	}

	archivePath, err := s.resolveVerifyTarget(ctx, req)
	if err != nil {
		return VerifyResult{}, err
	}
	result := VerifyResult{ArchivePath: archivePath}
	verifier := core.NewVerifier(s.Digest, s.Signatures, trust)
	outcome, err := verifier.Verify(ctx, core.VerifyInput{
		ArchivePath:      archivePath,
		ExpectedIdentity: req.ExpectedIdentity,
		RequireSignature: req.RequireSignature,
	})
	result.Outcome = outcome
	logger := log.Ctx(ctx)
	if err != nil {
		logger.Error().Err(err).Str("archive", archivePath).Str("state", string(outcome.State)).Msg("verification failed")
		return result, err
	}
	event := logger.Info().Str("archive", archivePath).Str("state", string(outcome.State)).Str("sha256", outcome.Digest)
	if outcome.Signer != "" {
		event = event.Str("signer", outcome.Signer)
	}
	event.Msg("verification passed")
	if outcome.ChecksumOnly {
		logger.Warn().Str("archive", archivePath).Msg("no signature found; integrity checked against checksum only")
	}

	if dest := strings.TrimSpace(req.ExtractDir); dest != "" {
		if err := s.extract(ctx, archivePath, dest); err != nil {
			return result, err
		}
		result.Extracted = dest
	}
	return result, nil
}

func (s Service) resolveVerifyTarget(ctx context.Context, req VerifyRequest) (string, error) {
	switch {
	case req.Latest:
		remote, err := s.requireRemote()
		if err != nil {
			return "", err
		}
		pointer, err := ReadPointer(ctx, remote)
		if err != nil {
			return "", err
		}
		return s.downloadGeneration(ctx, req.DownloadDir, pointer, func(ctx context.Context, kind types.ArtifactKind) (io.ReadCloser, error) {
			stem, _ := core.PointerStem(pointer)
			return remote.Get(ctx, core.ArtifactKey(stem, kind))
		})
	case strings.TrimSpace(req.PointerURL) != "":
		if s.Fetcher == nil {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("no fetcher configured for pointer url")
		}
		pointer, err := s.fetchPointer(ctx, strings.TrimSpace(req.PointerURL))
		if err != nil {
			return "", err
		}
		urls := map[types.ArtifactKind]string{
			types.ArtifactKindArchive:   pointer.SnapshotURL,
			types.ArtifactKindChecksum:  pointer.SHA256URL,
			types.ArtifactKindSignature: pointer.SigURL,
		}
		return s.downloadGeneration(ctx, req.DownloadDir, pointer, func(ctx context.Context, kind types.ArtifactKind) (io.ReadCloser, error) {
			if urls[kind] == "" {
				return nil, errbuilder.New().
					WithCode(errbuilder.CodeNotFound).
					WithMsg("pointer has no " + string(kind) + " url")
			}
			body, _, err := s.Fetcher.Fetch(ctx, urls[kind])
			return body, err
		})
	default:
		path := strings.TrimSpace(req.ArchivePath)
		if path == "" {
			return "", errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("archive path is required")
		}
		return path, nil
	}
}

func (s Service) fetchPointer(ctx context.Context, url string) (types.Pointer, error) {
	body, _, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		return types.Pointer{}, err
	}
	defer body.Close()
	var pointer types.Pointer
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&pointer); err != nil {
		return types.Pointer{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to decode pointer").
			WithCause(err)
	}
	return pointer, nil
}

// downloadGeneration fetches archive, checksum and signature named by the
// pointer. A missing signature is left for the verifier to judge.
func (s Service) downloadGeneration(ctx context.Context, dir string, pointer types.Pointer, open artifactSource) (string, error) {
	stem, ok := core.PointerStem(pointer)
	if !ok {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("pointer names no archive")
	}
	dir = defaultString(dir, s.Config.StagingDir)
	if dir == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("download directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create download directory").
			WithCause(err)
	}
	local := core.LocalArtifacts(dir, stem)
	for _, kind := range []types.ArtifactKind{types.ArtifactKindChecksum, types.ArtifactKindSignature, types.ArtifactKindArchive} {
		body, err := open(ctx, kind)
		if err != nil {
			if kind == types.ArtifactKindSignature && errbuilder.CodeOf(err) == errbuilder.CodeNotFound {
				_ = os.Remove(local.Signature)
				continue
			}
			return "", err
		}
		err = saveFile(local.Path(kind), body)
		body.Close()
		if err != nil {
			return "", err
		}
		log.Ctx(ctx).Debug().Str("path", local.Path(kind)).Msg("downloaded artifact")
	}
	return local.Archive, nil
}

func saveFile(path string, r io.Reader) error {
	partial := path + ".partial"
	file, err := os.Create(partial)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create " + filepath.Base(path)).
			WithCause(err)
	}
	_, err = io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(partial, path)
	}
	if err != nil {
		_ = os.Remove(partial)
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to save " + filepath.Base(path)).
			WithCause(err)
	}
	return nil
}

func (s Service) extract(ctx context.Context, archivePath string, dest string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("archive not found").
			WithCause(err)
	}
	defer file.Close()
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create extract directory").
			WithCause(err)
	}
	if err := s.Archiver.Extract(ctx, file, dest); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("dest", dest).Msg("archive extracted")
	return nil
}
