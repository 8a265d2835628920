package adapters

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"

	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

const tempFilePrefix = ".chainsnap-"

// FileStoreAdapter keeps artifacts as flat files in one directory. Writes
// go through a temp file and a rename so readers never see partial objects.
type FileStoreAdapter struct {
	Dir     string
	BaseURL string
}

func NewFileStoreAdapter(dir string, baseURL string) FileStoreAdapter {
	return FileStoreAdapter{Dir: dir, BaseURL: baseURL}
}

func (a FileStoreAdapter) Name() string {
	return "file"
}

func (a FileStoreAdapter) PutFile(ctx context.Context, key string, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := a.objectPath(key)
	if err != nil {
		return err
	}
	if samePath(path, target) {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("failed to open artifact " + filepath.Base(path)).
			WithCause(err)
	}
	defer file.Close()
	return a.Put(ctx, key, file)
}

func (a FileStoreAdapter) Put(ctx context.Context, key string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := a.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create store directory").
			WithCause(err)
	}
	tmp, err := os.CreateTemp(a.Dir, tempFilePrefix+"*")
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create temp object").
			WithCause(err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to write object " + key).
			WithCause(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to sync object " + key).
			WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to close object " + key).
			WithCause(err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to set object permissions").
			WithCause(err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to commit object " + key).
			WithCause(err)
	}
	return nil
}

func (a FileStoreAdapter) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := a.objectPath(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("object not found: " + key)
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to open object " + key).
			WithCause(err)
	}
	return file, nil
}

func (a FileStoreAdapter) Stat(ctx context.Context, key string) (types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return types.ObjectInfo{}, err
	}
	target, err := a.objectPath(key)
	if err != nil {
		return types.ObjectInfo{}, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ObjectInfo{}, errbuilder.New().
				WithCode(errbuilder.CodeNotFound).
				WithMsg("object not found: " + key)
		}
		return types.ObjectInfo{}, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to stat object " + key).
			WithCause(err)
	}
	return types.ObjectInfo{Key: key, Size: info.Size(), Updated: info.ModTime().UTC()}, nil
}

func (a FileStoreAdapter) List(ctx context.Context, prefix string) ([]types.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Dir) == "" {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("store directory is empty")
	}
	entries, err := os.ReadDir(a.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.ObjectInfo{}, nil
		}
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to read store directory").
			WithCause(err)
	}
	objects := make([]types.ObjectInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempFilePrefix) || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to read object info").
				WithCause(err)
		}
		objects = append(objects, types.ObjectInfo{
			Key:     name,
			Size:    info.Size(),
			Updated: info.ModTime().UTC(),
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (a FileStoreAdapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := a.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to delete object " + key).
			WithCause(err)
	}
	return nil
}

func (a FileStoreAdapter) URL(key string) string {
	if base := strings.TrimRight(strings.TrimSpace(a.BaseURL), "/"); base != "" {
		return base + "/" + url.PathEscape(key)
	}
	abs, err := filepath.Abs(filepath.Join(a.Dir, key))
	if err != nil {
		abs = filepath.Join(a.Dir, key)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func (a FileStoreAdapter) objectPath(key string) (string, error) {
	if strings.TrimSpace(a.Dir) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("store directory is empty")
	}
	if strings.TrimSpace(key) == "" {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("object key is empty")
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("object key contains path separator")
	}
	return filepath.Join(a.Dir, key), nil
}

func samePath(a string, b string) bool {
	left, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	right, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	if left == right {
		return true
	}
	leftInfo, err := os.Stat(left)
	if err != nil {
		return false
	}
	rightInfo, err := os.Stat(right)
	if err != nil {
		return false
	}
	return os.SameFile(leftInfo, rightInfo)
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ ports.ArtifactStorePort = FileStoreAdapter{}
