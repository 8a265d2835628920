package adapters

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRPCServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "2.0", req.JSONRPC)
		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNodeRPCAdapterTipBlockNumber(t *testing.T) {
	server := newRPCServer(t, map[string]string{"get_tip_block_number": `"0xe4e1c0"`})
	height, err := NewNodeRPCAdapter(server.URL, time.Second).TipBlockNumber(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(15000000), height)
}

func TestNodeRPCAdapterNodeVersion(t *testing.T) {
	server := newRPCServer(t, map[string]string{"local_node_info": `{"version":"0.119.0 (abc 2025-01-01)","node_id":"Qm"}`})
	version, err := NewNodeRPCAdapter(server.URL, time.Second).NodeVersion(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "0.119.0 (abc 2025-01-01)", version)
}

func TestNodeRPCAdapterErrors(t *testing.T) {
	server := newRPCServer(t, map[string]string{})
	_, err := NewNodeRPCAdapter(server.URL, time.Second).TipBlockNumber(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_tip_block_number")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	_, err = NewNodeRPCAdapter(failing.URL, time.Second).TipBlockNumber(t.Context())
	require.Error(t, err)

	_, err = NewNodeRPCAdapter("http://127.0.0.1:1", 200*time.Millisecond).TipBlockNumber(t.Context())
	require.Error(t, err)
}

func TestParseHexQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{input: "0x0", want: 0},
		{input: "0x10", want: 16},
		{input: "0XFF", want: 255},
		{input: "42", wantErr: true},
		{input: "0xzz", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseHexQuantity(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
