// Package testutil provides shared test helpers used across integration,
// e2e, and unit test packages.
package testutil

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ed25519"
)

// RepoRoot returns the absolute path to the repository root by walking
// up from the current working directory. It fails the test if the
// working directory cannot be determined.
func RepoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	require.NoError(t, err)
	return filepath.Clean(filepath.Join(dir, "..", ".."))
}

// SeedDataDir writes a small database-like tree below dir.
func SeedDataDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{
		"db/CURRENT":        "MANIFEST-000009\n",
		"db/000007.sst":     strings.Repeat("cell-", 8192),
		"db/OPTIONS-000005": "[Version]\n",
		"network/peers":     "peer-store",
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return files
}

// WriteEd25519Key stores a fresh seed as hex and returns the key path and
// the identity verifiers report for it.
func WriteEd25519Key(t *testing.T, dir string) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	path := filepath.Join(dir, "signing.key")
	require.NoError(t, os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600))
	return path, "ed25519:" + hex.EncodeToString(pub)
}

// FakeSystemctl writes a script standing in for systemctl. The unit is
// reported active and every stop/start is appended to the returned log.
func FakeSystemctl(t *testing.T, dir string) (string, string) {
	t.Helper()
	logPath := filepath.Join(dir, "systemctl.log")
	script := "#!/bin/sh\n" +
		"case \"$1\" in\n" +
		"  is-active) echo active; exit 0 ;;\n" +
		"  stop|start) echo \"$1 $2\" >> " + logPath + " ;;\n" +
		"  *) exit 1 ;;\n" +
		"esac\n"
	path := filepath.Join(dir, "systemctl")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, logPath
}

// NodeRPCServer answers the JSON-RPC calls made by the node adapter.
func NodeRPCServer(t *testing.T, tipHex string, version string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
			ID     int    `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		switch req.Method {
		case "get_tip_block_number":
			resp["result"] = tipHex
		case "local_node_info":
			resp["result"] = map[string]any{"version": version}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(server.Close)
	return server
}
