package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/ports"
	"chainsnap/internal/shared"
)

const defaultRPCTimeout = 10 * time.Second

// NodeRPCAdapter speaks JSON-RPC 2.0 to the node's local endpoint.
type NodeRPCAdapter struct {
	Endpoint string
	Timeout  time.Duration
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func NewNodeRPCAdapter(endpoint string, timeout time.Duration) NodeRPCAdapter {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return NodeRPCAdapter{Endpoint: endpoint, Timeout: timeout}
}

func (a NodeRPCAdapter) TipBlockNumber(ctx context.Context) (int64, error) {
	var hexHeight string
	if err := a.call(ctx, "get_tip_block_number", &hexHeight); err != nil {
		return 0, err
	}
	height, err := parseHexQuantity(hexHeight)
	if err != nil {
		return 0, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("invalid tip block number").
			WithCause(err)
	}
	return height, nil
}

func (a NodeRPCAdapter) NodeVersion(ctx context.Context) (string, error) {
	var info struct {
		Version string `json:"version"`
	}
	if err := a.call(ctx, "local_node_info", &info); err != nil {
		return "", err
	}
	return strings.TrimSpace(info.Version), nil
}

func (a NodeRPCAdapter) call(ctx context.Context, method string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	endpoint := strings.TrimSpace(a.Endpoint)
	if endpoint == "" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("node rpc endpoint is empty")
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: []any{}, ID: 1})
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to encode rpc request").
			WithCause(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to create rpc request").
			WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("node rpc " + method + " failed").
			WithCause(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("node rpc " + method + " failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, endpoint, strings.TrimSpace(string(body))))
	}
	var decoded rpcResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to decode rpc response").
			WithCause(err)
	}
	if decoded.Error != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("node rpc " + method + " failed").
			WithCause(fmt.Errorf("code=%d message=%s", decoded.Error.Code, decoded.Error.Message))
	}
	if len(decoded.Result) == 0 || string(decoded.Result) == "null" {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("node rpc " + method + " returned no result")
	}
	if err := json.Unmarshal(decoded.Result, out); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to decode rpc result").
			WithCause(err)
	}
	return nil
}

func parseHexQuantity(value string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		return 0, fmt.Errorf("quantity %q is not 0x-prefixed", value)
	}
	parsed, err := strconv.ParseUint(trimmed[2:], 16, 63)
	if err != nil {
		return 0, err
	}
	return int64(parsed), nil
}

var _ ports.NodeRPCPort = NodeRPCAdapter{}
