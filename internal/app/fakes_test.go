package app

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"

	"chainsnap/internal/adapters"
	"chainsnap/internal/core"
	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

var fixedNow = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

// memStore is an in-memory artifact store that records every mutation.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	updated map[string]time.Time
	ops     []string
	failPut map[string]error
	failDel map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		objects: map[string][]byte{},
		updated: map[string]time.Time{},
		failPut: map[string]error{},
		failDel: map[string]error{},
	}
}

func (m *memStore) Name() string { return "mem" }

func (m *memStore) PutFile(ctx context.Context, key string, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Put(ctx, key, bytes.NewReader(content))
}

func (m *memStore) Put(_ context.Context, key string, r io.Reader) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failPut[key]; err != nil {
		return err
	}
	m.objects[key] = content
	m.updated[key] = fixedNow
	m.ops = append(m.ops, "put:"+key)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.objects[key]
	if !ok {
		return nil, errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("object not found: " + key)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *memStore) Stat(_ context.Context, key string) (types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.objects[key]
	if !ok {
		return types.ObjectInfo{}, errbuilder.New().WithCode(errbuilder.CodeNotFound).WithMsg("object not found: " + key)
	}
	return types.ObjectInfo{Key: key, Size: int64(len(content)), Updated: m.updated[key]}, nil
}

func (m *memStore) List(_ context.Context, prefix string) ([]types.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.ObjectInfo
	for key, content := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, types.ObjectInfo{Key: key, Size: int64(len(content)), Updated: m.updated[key]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDel[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	delete(m.updated, key)
	m.ops = append(m.ops, "delete:"+key)
	return nil
}

func (m *memStore) URL(key string) string { return "mem://snapshots/" + key }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memStore) content(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key]
}

func (m *memStore) operations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// seedGeneration stores all four artifact kinds of a stem.
func (m *memStore) seedGeneration(t *testing.T, stem string) {
	t.Helper()
	for _, kind := range types.ArtifactKinds {
		require.NoError(t, m.Put(t.Context(), core.ArtifactKey(stem, kind), strings.NewReader(string(kind))))
	}
}

func (m *memStore) seedPointer(t *testing.T, stem string) {
	t.Helper()
	require.NoError(t, writeJSON(t.Context(), m, core.PointerKey, types.Pointer{Latest: core.ArtifactKey(stem, types.ArtifactKindArchive)}))
}

var _ ports.ArtifactStorePort = (*memStore)(nil)

type fakeNode struct {
	height  int64
	version string
	err     error
}

func (f fakeNode) TipBlockNumber(context.Context) (int64, error) { return f.height, f.err }

func (f fakeNode) NodeVersion(context.Context) (string, error) { return f.version, f.err }

type fakeSupervisor struct {
	mu       sync.Mutex
	active   bool
	calls    []string
	startErr error
}

func (f *fakeSupervisor) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSupervisor) Stop(_ context.Context, service string) error {
	f.record("stop " + service)
	return nil
}

func (f *fakeSupervisor) Start(_ context.Context, service string) error {
	f.record("start " + service)
	return f.startErr
}

func (f *fakeSupervisor) IsActive(_ context.Context, service string) (bool, error) {
	f.record("is-active " + service)
	return f.active, nil
}

func (f *fakeSupervisor) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type noHandles struct{}

func (noHandles) OpenHandles(context.Context, string) ([]types.OpenHandle, error) { return nil, nil }

type fakeLock struct {
	held     bool
	unlocked bool
}

func (f *fakeLock) TryLock() (bool, error) { return !f.held, nil }

func (f *fakeLock) Unlock() error {
	f.unlocked = true
	return nil
}

type failingArchiver struct {
	adapters.ZstdArchiveAdapter
	err error
}

func (f failingArchiver) WriteArchive(context.Context, string, string, int, io.Writer, func()) (types.ArchiveStats, error) {
	return types.ArchiveStats{}, f.err
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, string, string, string) error {
	return errors.New("no secret key")
}

func (failingSigner) Backend() string { return "broken" }

type recordingMetrics struct {
	reports []ports.RunReport
}

func (r *recordingMetrics) RecordRun(report ports.RunReport) error {
	r.reports = append(r.reports, report)
	return nil
}

type testEnv struct {
	service    Service
	remote     *memStore
	supervisor *fakeSupervisor
	lock       *fakeLock
	metrics    *recordingMetrics
	staging    string
	dataDir    string
	identity   string
}

// newTestEnv wires a service against a real data directory, a real
// archiver and ed25519 signer, and in-memory remote storage.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	dataDir := filepath.Join(root, "node", "data")
	seedDataDir(t, dataDir)
	staging := filepath.Join(root, "staging")

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keyPath := filepath.Join(root, "signing.key")
	require.NoError(t, os.WriteFile(keyPath, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600))

	cfg, err := NormalizeConfig(types.Config{
		Network:    "mainnet",
		NamePrefix: "ckb",
		StagingDir: staging,
		Node:       types.NodeConfig{DataDir: dataDir, Service: "ckb", RestartAttempts: 2},
		Archive:    types.ArchiveConfig{Mode: types.ArchiveModeFile},
		Sign:       types.SignConfig{Backend: types.SignBackendEd25519, KeyID: keyPath},
		Store:      types.StoreConfig{Backend: types.StoreBackendFile, Dir: filepath.Join(root, "unused")},
		Retention:  types.RetentionConfig{KeepRemote: 3, KeepLocal: 1},
	})
	require.NoError(t, err)

	env := &testEnv{
		remote:     newMemStore(),
		supervisor: &fakeSupervisor{active: true},
		lock:       &fakeLock{},
		metrics:    &recordingMetrics{},
		staging:    staging,
		dataDir:    dataDir,
		identity:   adapters.Ed25519Identity(pub),
	}
	env.service = Service{
		Config:     cfg,
		Node:       fakeNode{height: 12345678, version: "0.119.0"},
		Supervisor: env.supervisor,
		Handles:    noHandles{},
		Archiver:   adapters.NewZstdArchiveAdapter(),
		Digest:     adapters.NewSHA256DigestAdapter(),
		Signer:     adapters.NewEd25519SignerAdapter(),
		Signatures: adapters.NewDetectingSignatureVerifier(nil, adapters.NewEd25519SignerAdapter()),
		Remote:     env.remote,
		Local:      adapters.NewFileStoreAdapter(staging, ""),
		Lock:       env.lock,
		Metrics:    env.metrics,
		Clock:      func() time.Time { return fixedNow },
		Sleep:      func(context.Context, time.Duration) error { return nil },
		NewBackOff: func() backoff.BackOff { return &backoff.ZeroBackOff{} },
		CreatedBy:  "chainsnap test",
	}
	return env
}

func seedDataDir(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"db/CURRENT":        "MANIFEST-000004\n",
		"db/000003.sst":     strings.Repeat("block-data-", 4096),
		"db/LOG":            "rocksdb log\n",
		"network/peers.dat": "peer-store",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func hexSum(sum []byte) string {
	return hex.EncodeToString(sum)
}
