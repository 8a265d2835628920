package app

import (
	"errors"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainsnap/internal/core"
	"chainsnap/internal/types"
)

var fiveStems = []string{
	"ckb_mainnet_2026-10-10_11600000",
	"ckb_mainnet_2026-10-11_11700000",
	"ckb_mainnet_2026-10-12_11800000",
	"ckb_mainnet_2026-10-13_11900000",
	"ckb_mainnet_2026-10-14_12000000",
}

func TestPruneKeepsMostRecent(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems {
		store.seedGeneration(t, stem)
	}

	result, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 3})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{fiveStems[4], fiveStems[3], fiveStems[2]}, result.Kept); diff != "" {
		t.Fatalf("kept mismatch (-want +got):\n%s", diff)
	}
	for _, stem := range fiveStems[:2] {
		for _, kind := range types.ArtifactKinds {
			assert.False(t, store.has(core.ArtifactKey(stem, kind)), "%s %s should be gone", stem, kind)
		}
	}
	for _, stem := range fiveStems[2:] {
		assert.True(t, store.has(core.ArtifactKey(stem, types.ArtifactKindArchive)))
	}
}

func TestPruneRemovesOrphanedArtifacts(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems[2:] {
		store.seedGeneration(t, stem)
	}
	// a generation whose archive is already gone still gets cleaned up
	orphan := fiveStems[0]
	require.NoError(t, store.Put(t.Context(), core.ArtifactKey(orphan, types.ArtifactKindChecksum), strings.NewReader("")))

	result, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{orphan}, result.Deleted)
	assert.False(t, store.has(core.ArtifactKey(orphan, types.ArtifactKindChecksum)))
}

func TestPruneDeletesArchiveLast(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems[3:] {
		store.seedGeneration(t, stem)
	}
	old := fiveStems[3]
	store.ops = nil

	_, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 1})
	require.NoError(t, err)
	want := []string{
		"delete:" + old + ".json",
		"delete:" + old + ".tar.zst.sha256.sig",
		"delete:" + old + ".tar.zst.sha256",
		"delete:" + old + ".tar.zst",
	}
	if diff := cmp.Diff(want, store.operations()); diff != "" {
		t.Fatalf("delete order mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneInterruptedKeepsArchiveWithSidecars(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems[3:] {
		store.seedGeneration(t, stem)
	}
	old := fiveStems[3]
	store.failDel[core.ArtifactKey(old, types.ArtifactKindChecksum)] = errors.New("permission denied")

	_, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 1})
	require.Error(t, err)
	assert.True(t, store.has(core.ArtifactKey(old, types.ArtifactKindArchive)))
	assert.True(t, store.has(core.ArtifactKey(old, types.ArtifactKindChecksum)))
	assert.False(t, store.has(core.ArtifactKey(old, types.ArtifactKindMetadata)))
}

func TestPruneProtectsPointerTarget(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems {
		store.seedGeneration(t, stem)
	}
	store.seedPointer(t, fiveStems[0])

	result, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 2})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{fiveStems[4], fiveStems[3], fiveStems[0]}, result.Kept)
	assert.True(t, store.has(core.ArtifactKey(fiveStems[0], types.ArtifactKindArchive)))
	assert.True(t, store.has(core.PointerKey))
}

func TestPruneIsIdempotent(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems {
		store.seedGeneration(t, stem)
	}
	_, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 3})
	require.NoError(t, err)
	second, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 3})
	require.NoError(t, err)
	assert.Zero(t, second.DeleteCount)
	assert.Equal(t, 3, second.KeepCount)
}

func TestPruneDryRunDeletesNothing(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems {
		store.seedGeneration(t, stem)
	}
	before := len(store.operations())

	result, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 1, DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 4, result.DeleteCount)
	assert.Len(t, store.operations(), before)
}

func TestPruneRefusesUnreadablePointer(t *testing.T) {
	store := newMemStore()
	for _, stem := range fiveStems {
		store.seedGeneration(t, stem)
	}
	require.NoError(t, store.Put(t.Context(), core.PointerKey, strings.NewReader("not json")))

	_, err := pruneStore(t.Context(), store, types.RetentionPolicy{KeepLast: 1})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeFailedPrecondition, errbuilder.CodeOf(err))
	assert.True(t, store.has(core.ArtifactKey(fiveStems[0], types.ArtifactKindArchive)))
}

func TestPruneRejectsZeroKeep(t *testing.T) {
	_, err := pruneStore(t.Context(), newMemStore(), types.RetentionPolicy{KeepLast: 0})
	require.Error(t, err)
	assert.Equal(t, errbuilder.CodeInvalidArgument, errbuilder.CodeOf(err))
}

func TestPruneSnapshotsTargets(t *testing.T) {
	env := newTestEnv(t)
	for _, stem := range fiveStems {
		env.remote.seedGeneration(t, stem)
	}

	result, err := env.service.PruneSnapshots(t.Context(), PruneRequest{})
	require.NoError(t, err)
	assert.Equal(t, PruneTargetRemote, result.Target)
	assert.Equal(t, 3, result.KeepCount)

	env.service.Remote = nil
	_, err = env.service.PruneSnapshots(t.Context(), PruneRequest{Target: PruneTargetRemote})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote store is not configured")

	local, err := env.service.PruneSnapshots(t.Context(), PruneRequest{Target: PruneTargetLocal, KeepLast: 2})
	require.NoError(t, err)
	assert.Equal(t, PruneTargetLocal, local.Target)
	assert.Zero(t, local.DeleteCount)
}
