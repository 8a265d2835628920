package adapters

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/ports"
	"chainsnap/internal/shared"
	"chainsnap/internal/types"
)

const defaultFetchTimeout = 30 * time.Minute

// HTTPFetchAdapter downloads published artifacts over plain HTTP(S).
type HTTPFetchAdapter struct {
	Timeout time.Duration
}

func NewHTTPFetchAdapter(timeout time.Duration) HTTPFetchAdapter {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return HTTPFetchAdapter{Timeout: timeout}
}

func (a HTTPFetchAdapter) Fetch(ctx context.Context, url string) (io.ReadCloser, types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.ObjectInfo{}, err
	}
	if strings.TrimSpace(url) == "" {
		return nil, types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("download url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to create download request").
			WithCause(err)
	}
	client := &http.Client{Timeout: a.Timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("download failed").
			WithCause(err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("artifact not found: " + url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("download failed").
			WithCause(shared.HTTPStatusErrorWithBody(resp.StatusCode, url, strings.TrimSpace(string(body))))
	}
	info := types.ObjectInfo{
		Key:     url[strings.LastIndex(url, "/")+1:],
		Size:    resp.ContentLength,
		Updated: parseTimeFlexible(resp.Header.Get("Last-Modified")),
	}
	return resp.Body, info, nil
}

var _ ports.ArtifactFetchPort = HTTPFetchAdapter{}
