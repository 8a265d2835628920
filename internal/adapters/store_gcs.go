package adapters

import (
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/ZanzyTHEbar/errbuilder-go"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

const publicGCSHost = "https://storage.googleapis.com"

type GCSStoreOptions struct {
	Bucket          string
	Prefix          string
	BaseURL         string
	Endpoint        string
	CredentialsFile string
}

// GCSStoreAdapter publishes artifacts to a Cloud Storage bucket. Keys are
// relative to Prefix.
type GCSStoreAdapter struct {
	client  *storage.Client
	bucket  string
	prefix  string
	baseURL string
}

func NewGCSStoreAdapter(ctx context.Context, opts GCSStoreOptions) (GCSStoreAdapter, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return GCSStoreAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("gcs bucket is required")
	}
	var clientOpts []option.ClientOption
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint), option.WithoutAuthentication())
	} else if opts.CredentialsFile != "" {
		if _, err := os.Stat(opts.CredentialsFile); err != nil {
			return GCSStoreAdapter{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("gcs credentials file not found").
				WithCause(err)
		}
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return GCSStoreAdapter{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create gcs client").
			WithCause(err)
	}
	return GCSStoreAdapter{
		client:  client,
		bucket:  opts.Bucket,
		prefix:  strings.Trim(opts.Prefix, "/"),
		baseURL: opts.BaseURL,
	}, nil
}

func (a GCSStoreAdapter) Name() string {
	return "gcs"
}

func (a GCSStoreAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a GCSStoreAdapter) PutFile(ctx context.Context, key string, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open artifact " + path.Base(localPath)).
			WithCause(err)
	}
	defer file.Close()
	return a.Put(ctx, key, file)
}

func (a GCSStoreAdapter) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Cancelling the writer context discards a partially written object.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	writer := a.object(key).NewWriter(writeCtx)
	writer.ContentType = contentTypeFor(key)
	if key == pointerObjectKey {
		writer.CacheControl = "no-cache, no-store, must-revalidate"
	}
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		_ = writer.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to upload object " + key).
			WithCause(err)
	}
	if err := writer.Close(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to finalize object " + key).
			WithCause(err)
	}
	return nil
}

func (a GCSStoreAdapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reader, err := a.object(key).NewReader(ctx)
	if err != nil {
		return nil, gcsError(err, "failed to read object "+key, key)
	}
	return reader, nil
}

func (a GCSStoreAdapter) Stat(ctx context.Context, key string) (types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.ObjectInfo{}, err
	}
	attrs, err := a.object(key).Attrs(ctx)
	if err != nil {
		return types.ObjectInfo{}, gcsError(err, "failed to stat object "+key, key)
	}
	return types.ObjectInfo{Key: key, Size: attrs.Size, Updated: attrs.Updated.UTC()}, nil
}

func (a GCSStoreAdapter) List(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := &storage.Query{Prefix: a.fullKey(prefix)}
	it := a.client.Bucket(a.bucket).Objects(ctx, query)
	var objects []types.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to list bucket objects").
				WithCause(err)
		}
		key := a.relativeKey(attrs.Name)
		if key == "" || strings.Contains(key, "/") {
			continue
		}
		objects = append(objects, types.ObjectInfo{Key: key, Size: attrs.Size, Updated: attrs.Updated.UTC()})
	}
	return objects, nil
}

func (a GCSStoreAdapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := a.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to delete object " + key).
			WithCause(err)
	}
	return nil
}

func (a GCSStoreAdapter) URL(key string) string {
	if base := strings.TrimRight(strings.TrimSpace(a.baseURL), "/"); base != "" {
		return base + "/" + url.PathEscape(key)
	}
	return publicGCSHost + "/" + a.bucket + "/" + a.fullKey(key)
}

func (a GCSStoreAdapter) object(key string) *storage.ObjectHandle {
	return a.client.Bucket(a.bucket).Object(a.fullKey(key))
}

func (a GCSStoreAdapter) fullKey(key string) string {
	if a.prefix == "" {
		return key
	}
	return a.prefix + "/" + key
}

func (a GCSStoreAdapter) relativeKey(name string) string {
	if a.prefix == "" {
		return name
	}
	return strings.TrimPrefix(name, a.prefix+"/")
}

func gcsError(err error, msg string, key string) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("object not found: " + key).
			WithCause(err)
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

const pointerObjectKey = "latest.json"

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".sha256"), strings.HasSuffix(key, ".sig"):
		return "text/plain; charset=utf-8"
	default:
		return "application/zstd"
	}
}

var _ ports.ArtifactStorePort = GCSStoreAdapter{}
