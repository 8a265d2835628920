package ports

import (
	"context"
	"io"

	"chainsnap/internal/types"
)

// ArtifactStorePort is the durable object store receiving published
// generations. Delete of a missing key is not an error.
type ArtifactStorePort interface {
	Name() string
	PutFile(ctx context.Context, key string, path string) error
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (types.ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]types.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// ArtifactFetchPort downloads a published artifact by URL.
type ArtifactFetchPort interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, types.ObjectInfo, error)
}
