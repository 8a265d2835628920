package app

import (
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainsnap/internal/core"
	"chainsnap/internal/types"
)

func TestInspectReportsGenerations(t *testing.T) {
	env := newTestEnv(t)
	env.remote.seedGeneration(t, "ckb_mainnet_2026-10-16_12200000")
	partial := "ckb_mainnet_2026-10-17_12300000"
	require.NoError(t, env.remote.Put(t.Context(), core.ArtifactKey(partial, types.ArtifactKindArchive), strings.NewReader("zstd-bytes")))
	env.remote.seedPointer(t, "ckb_mainnet_2026-10-16_12200000")

	result, err := env.service.Inspect(t.Context(), InspectRequest{})
	require.NoError(t, err)
	require.NotNil(t, result.Pointer)
	assert.Equal(t, "ckb_mainnet_2026-10-16_12200000.tar.zst", result.Pointer.Latest)
	require.Len(t, result.Remote, 2)

	newest := result.Remote[0]
	assert.Equal(t, partial, newest.Stem)
	assert.False(t, newest.Pointer)
	assert.Equal(t, int64(len("zstd-bytes")), newest.ArchiveSize)
	assert.Equal(t, []types.ArtifactKind{types.ArtifactKindChecksum, types.ArtifactKindSignature, types.ArtifactKindMetadata}, newest.Missing)

	older := result.Remote[1]
	assert.True(t, older.Pointer)
	assert.Empty(t, older.Missing)
	assert.True(t, older.HeightKnown)
	assert.Equal(t, int64(12200000), older.Height)
	assert.Nil(t, result.Local)
}

func TestInspectIncludesLocal(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.service.CreateSnapshot(t.Context(), CreateRequest{SkipPublish: true})
	require.NoError(t, err)
	env.service.Remote = nil

	result, err := env.service.Inspect(t.Context(), InspectRequest{IncludeLocal: true})
	require.NoError(t, err)
	assert.Nil(t, result.Pointer)
	require.Len(t, result.Local, 1)
	assert.Equal(t, created.Snapshot.Stem, result.Local[0].Stem)
	assert.Equal(t, created.Snapshot.SizeBytes, result.Local[0].ArchiveSize)
}

func TestInspectWithoutStores(t *testing.T) {
	env := newTestEnv(t)
	env.service.Remote = nil
	_, err := env.service.Inspect(t.Context(), InspectRequest{})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}
