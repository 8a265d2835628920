package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainsnap/internal/core"
	"chainsnap/internal/types"
)

func TestCreateSnapshotFileModePublishesAndRestarts(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.NoError(t, err)

	stem := "ckb_mainnet_2026-10-18_12345678"
	assert.Equal(t, stem, result.Snapshot.Stem)
	assert.True(t, result.WasActive)
	assert.True(t, result.Published)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, "mem://snapshots/latest.json", result.PointerURL)

	if diff := cmp.Diff([]string{"is-active ckb", "stop ckb", "start ckb"}, env.supervisor.history()); diff != "" {
		t.Fatalf("service calls mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"put:" + stem + ".tar.zst",
		"put:" + stem + ".tar.zst.sha256",
		"put:" + stem + ".tar.zst.sha256.sig",
		"put:" + stem + ".json",
		"put:latest.json",
	}
	if diff := cmp.Diff(want, env.remote.operations()); diff != "" {
		t.Fatalf("publish order mismatch (-want +got):\n%s", diff)
	}

	// the inline digest must equal a re-hash of the staged file
	digest, err := env.service.Digest.DigestFile(t.Context(), result.Artifacts.Archive)
	require.NoError(t, err)
	assert.Equal(t, digest, result.Snapshot.SHA256)
	checksum, err := os.ReadFile(result.Artifacts.Checksum)
	require.NoError(t, err)
	assert.Equal(t, core.FormatChecksumLine(digest, stem+".tar.zst"), string(checksum))
	assert.Equal(t, int64(len(env.remote.content(stem+".tar.zst"))), result.Snapshot.SizeBytes)

	pointer, err := ReadPointer(t.Context(), env.remote)
	require.NoError(t, err)
	assert.Equal(t, stem+".tar.zst", pointer.Latest)
	assert.Equal(t, int64(12345678), pointer.BlockHeight)
	assert.Equal(t, "mem://snapshots/"+stem+".tar.zst.sha256.sig", pointer.SigURL)

	assert.True(t, env.lock.unlocked)
	require.Len(t, env.metrics.reports, 1)
	assert.True(t, env.metrics.reports[0].Success)
	assert.Equal(t, result.Snapshot.SizeBytes, env.metrics.reports[0].ArchiveLen)
}

func TestCreateSnapshotArchiveVerifiesAndExtracts(t *testing.T) {
	env := newTestEnv(t)
	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{SkipPublish: true})
	require.NoError(t, err)
	assert.False(t, result.Published)
	assert.Empty(t, env.remote.operations())

	dest := filepath.Join(t.TempDir(), "restore")
	verified, err := env.service.Verify(t.Context(), VerifyRequest{
		ArchivePath:      result.Artifacts.Archive,
		ExpectedIdentity: env.identity,
		RequireSignature: true,
		ExtractDir:       dest,
	})
	require.NoError(t, err)
	assert.Equal(t, types.VerifyStateSignatureOK, verified.Outcome.State)

	restored, err := os.ReadFile(filepath.Join(dest, "data", "db", "CURRENT"))
	require.NoError(t, err)
	assert.Equal(t, "MANIFEST-000004\n", string(restored))
}

func TestCreateSnapshotUnknownHeight(t *testing.T) {
	env := newTestEnv(t)
	env.service.Node = fakeNode{err: errors.New("connection refused")}

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{SkipPrune: true})
	require.NoError(t, err)
	assert.Equal(t, "ckb_mainnet_2026-10-18_unknown", result.Snapshot.Stem)
	assert.False(t, result.Snapshot.HeightKnown)
	assert.Equal(t, types.UnknownHeight, result.Snapshot.Height)
	assert.Equal(t, "unknown", result.Snapshot.NodeVersion)
}

func TestCreateSnapshotUnknownHeightKeepsRetentionWindow(t *testing.T) {
	env := newTestEnv(t)
	env.service.Node = fakeNode{err: errors.New("connection refused")}
	older := []string{
		"ckb_mainnet_2026-10-16_12100000",
		"ckb_mainnet_2026-10-17_12200000",
		"ckb_mainnet_2026-10-18_12300000",
	}
	for _, stem := range older {
		env.remote.seedGeneration(t, stem)
		for _, kind := range types.ArtifactKinds {
			env.remote.updated[core.ArtifactKey(stem, kind)] = fixedNow.Add(-time.Hour)
		}
	}
	env.remote.seedPointer(t, older[2])

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ckb_mainnet_2026-10-18_unknown", result.Snapshot.Stem)
	assert.Equal(t, []string{older[0]}, result.PrunedRemote)

	inspected, err := env.service.Inspect(t.Context(), InspectRequest{})
	require.NoError(t, err)
	assert.Len(t, inspected.Remote, env.service.Config.Retention.KeepRemote)
}

func TestCreateSnapshotLockHeld(t *testing.T) {
	env := newTestEnv(t)
	env.lock.held = true

	_, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeAlreadyExists, errbuilder.CodeOf(err))
	assert.Empty(t, env.supervisor.history())
	assert.False(t, env.lock.unlocked)
}

func TestCreateSnapshotArchiveFailureRestartsNode(t *testing.T) {
	env := newTestEnv(t)
	env.service.Archiver = failingArchiver{err: errors.New("disk full")}

	_, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.Error(t, err)
	assert.Contains(t, env.supervisor.history(), "start ckb")
	assert.Empty(t, env.remote.operations())

	entries, err := os.ReadDir(env.staging)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tar.zst", "no archive artifacts after a failed capture")
	}
	require.Len(t, env.metrics.reports, 1)
	assert.False(t, env.metrics.reports[0].Success)
}

func TestCreateSnapshotSignFailureKeepsArchive(t *testing.T) {
	env := newTestEnv(t)
	env.service.Signer = failingSigner{}

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signing failed")
	assert.Empty(t, env.remote.operations())
	assert.FileExists(t, result.Artifacts.Archive)
	assert.Contains(t, env.supervisor.history(), "start ckb")
}

func TestCreateSnapshotPointerFailureKeepsPreviousPointer(t *testing.T) {
	env := newTestEnv(t)
	previous := "ckb_mainnet_2026-10-17_12300000"
	env.remote.seedGeneration(t, previous)
	env.remote.seedPointer(t, previous)
	env.remote.failPut[core.PointerKey] = errors.New("503 service unavailable")

	_, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.Error(t, err)

	pointer, err := ReadPointer(t.Context(), env.remote)
	require.NoError(t, err)
	assert.Equal(t, previous+".tar.zst", pointer.Latest)
}

func TestCreateSnapshotStreamMode(t *testing.T) {
	env := newTestEnv(t)
	env.service.Config.Archive.Mode = types.ArchiveModeStream

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.NoError(t, err)
	assert.True(t, result.Streamed)
	assert.Empty(t, result.Artifacts.Archive)

	stem := result.Snapshot.Stem
	archive := env.remote.content(stem + ".tar.zst")
	require.NotEmpty(t, archive)
	hasher := env.service.Digest.New()
	_, _ = hasher.Write(archive)
	assert.Equal(t, hexSum(hasher.Sum(nil)), result.Snapshot.SHA256)
	assert.NoFileExists(t, filepath.Join(env.staging, stem+".tar.zst"))

	ops := env.remote.operations()
	assert.Equal(t, "put:latest.json", ops[len(ops)-1])
}

func TestCreateSnapshotStreamModeRejectsSkipPublish(t *testing.T) {
	env := newTestEnv(t)
	env.service.Config.Archive.Mode = types.ArchiveModeStream

	_, err := env.service.CreateSnapshot(t.Context(), CreateRequest{SkipPublish: true})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	assert.Empty(t, env.supervisor.history())
	assert.Empty(t, env.remote.operations())
}

func TestCreateSnapshotStreamUploadFailureRestartsNode(t *testing.T) {
	env := newTestEnv(t)
	env.service.Config.Archive.Mode = types.ArchiveModeStream
	previous := "ckb_mainnet_2026-10-17_12300000"
	env.remote.seedGeneration(t, previous)
	env.remote.seedPointer(t, previous)
	archiveKey := core.ArtifactKey("ckb_mainnet_2026-10-18_12345678", types.ArtifactKindArchive)
	env.remote.failPut[archiveKey] = errors.New("connection reset by peer")

	_, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.Error(t, err)
	assert.Equal(t, []string{"is-active ckb", "stop ckb", "start ckb"}, env.supervisor.history())

	pointer, err := ReadPointer(t.Context(), env.remote)
	require.NoError(t, err)
	assert.Equal(t, previous+".tar.zst", pointer.Latest)
	assert.False(t, env.remote.has(archiveKey))
	require.Len(t, env.metrics.reports, 1)
	assert.False(t, env.metrics.reports[0].Success)
}

func TestCreateSnapshotPrunesOldGenerations(t *testing.T) {
	env := newTestEnv(t)
	older := []string{
		"ckb_mainnet_2026-10-14_12000000",
		"ckb_mainnet_2026-10-15_12100000",
		"ckb_mainnet_2026-10-16_12200000",
		"ckb_mainnet_2026-10-17_12300000",
	}
	for _, stem := range older {
		env.remote.seedGeneration(t, stem)
	}
	env.remote.seedPointer(t, older[3])

	result, err := env.service.CreateSnapshot(t.Context(), CreateRequest{})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{older[1], older[0]}, result.PrunedRemote); diff != "" {
		t.Fatalf("pruned mismatch (-want +got):\n%s", diff)
	}
	for _, kind := range types.ArtifactKinds {
		assert.False(t, env.remote.has(core.ArtifactKey(older[0], kind)))
		assert.True(t, env.remote.has(core.ArtifactKey(older[2], kind)))
	}
}

func TestCreateSnapshotRejectsMissingConfig(t *testing.T) {
	env := newTestEnv(t)
	env.service.Config.Node.DataDir = ""

	_, err := env.service.CreateSnapshot(context.Background(), CreateRequest{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
	assert.Empty(t, env.supervisor.history())
}
