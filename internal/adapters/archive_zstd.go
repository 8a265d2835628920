package adapters

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"chainsnap/internal/ports"
	"chainsnap/internal/types"
)

// ZstdArchiveAdapter writes a tar stream of a directory through a zstd
// encoder. Every entry is placed below a single root directory.
type ZstdArchiveAdapter struct {
	Concurrency int
}

func NewZstdArchiveAdapter() ZstdArchiveAdapter {
	return ZstdArchiveAdapter{}
}

func (a ZstdArchiveAdapter) WriteArchive(ctx context.Context, srcDir string, rootName string, level int, w io.Writer, onReadDone func()) (types.ArchiveStats, error) {
	stats := types.ArchiveStats{}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg("data directory not found: " + srcDir).
			WithCause(err)
	}
	if !info.IsDir() {
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("data directory is not a directory: " + srcDir)
	}
	rootName = strings.Trim(filepath.ToSlash(rootName), "/")
	if rootName == "" {
		rootName = filepath.Base(filepath.Clean(srcDir))
	}

	counter := &countingWriter{w: w}
	encoderOpts := []zstd.EOption{zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level))}
	if a.Concurrency > 0 {
		encoderOpts = append(encoderOpts, zstd.WithEncoderConcurrency(a.Concurrency))
	}
	encoder, err := zstd.NewWriter(counter, encoderOpts...)
	if err != nil {
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to create zstd encoder").
			WithCause(err)
	}
	tw := tar.NewWriter(encoder)

	walkErr := filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		name := rootName
		if rel != "." {
			name = rootName + "/" + filepath.ToSlash(rel)
		}
		written, err := writeTarEntry(tw, path, name, entry)
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			stats.Files++
			stats.InputBytes += written
		}
		return nil
	})
	if walkErr != nil {
		_ = encoder.Close()
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to archive data directory").
			WithCause(walkErr)
	}
	if onReadDone != nil {
		onReadDone()
	}
	if err := tw.Close(); err != nil {
		_ = encoder.Close()
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to finalize tar stream").
			WithCause(err)
	}
	if err := encoder.Close(); err != nil {
		return stats, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to finalize zstd stream").
			WithCause(err)
	}
	stats.Written = counter.n
	log.Ctx(ctx).Debug().
		Int("files", stats.Files).
		Int64("input_bytes", stats.InputBytes).
		Int64("written_bytes", stats.Written).
		Msg("archive stream complete")
	return stats, nil
}

func writeTarEntry(tw *tar.Writer, path string, name string, entry fs.DirEntry) (int64, error) {
	info, err := entry.Info()
	if err != nil {
		return 0, err
	}
	link := ""
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		link, err = os.Readlink(path)
		if err != nil {
			return 0, err
		}
	case info.IsDir(), info.Mode().IsRegular():
	default:
		// sockets, pipes and devices have no place in a database snapshot
		return 0, nil
	}
	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return 0, err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	header.Uname = ""
	header.Gname = ""
	header.Format = tar.FormatPAX
	if err := tw.WriteHeader(header); err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()
	return io.Copy(tw, file)
}

// Extract unpacks an archive produced by WriteArchive below destDir.
func (a ZstdArchiveAdapter) Extract(ctx context.Context, r io.Reader, destDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to open zstd stream").
			WithCause(err)
	}
	defer decoder.Close()
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid destination directory").
			WithCause(err)
	}
	// Writes go through os.Root so no entry can follow a link out of destDir.
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("invalid destination directory").
			WithCause(err)
	}
	defer root.Close()
	tr := tar.NewReader(decoder)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("failed to read archive entry").
				WithCause(err)
		}
		name := filepath.Clean(filepath.FromSlash(header.Name))
		if !filepath.IsLocal(name) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("archive entry escapes destination: " + header.Name)
		}
		if header.Typeflag == tar.TypeSymlink && !localLink(name, header.Linkname) {
			return errbuilder.New().
				WithCode(errbuilder.CodeInvalidArgument).
				WithMsg("archive link escapes destination: " + header.Name + " -> " + header.Linkname)
		}
		if err := extractEntry(root, tr, header, name); err != nil {
			return errbuilder.New().
				WithCode(errbuilder.CodeInternal).
				WithMsg("failed to extract " + header.Name).
				WithCause(err)
		}
	}
}

// localLink reports whether a relative link target stays below the root
// when resolved from the link's own directory.
func localLink(name string, linkname string) bool {
	target := filepath.FromSlash(linkname)
	if filepath.IsAbs(target) {
		return false
	}
	return filepath.IsLocal(filepath.Join(filepath.Dir(name), target))
}

func mkdirParent(root *os.Root, name string) error {
	parent := filepath.Dir(name)
	if parent == "." {
		return nil
	}
	return root.MkdirAll(parent, 0o755)
}

func extractEntry(root *os.Root, tr *tar.Reader, header *tar.Header, name string) error {
	switch header.Typeflag {
	case tar.TypeDir:
		return root.MkdirAll(name, fs.FileMode(header.Mode)&fs.ModePerm|0o700)
	case tar.TypeSymlink:
		if err := mkdirParent(root, name); err != nil {
			return err
		}
		return root.Symlink(header.Linkname, name)
	case tar.TypeReg:
		if err := mkdirParent(root, name); err != nil {
			return err
		}
		file, err := root.OpenFile(name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fs.FileMode(header.Mode)&fs.ModePerm)
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, tr); err != nil {
			_ = file.Close()
			return err
		}
		return file.Close()
	default:
		return nil
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

var _ ports.ArchivePort = ZstdArchiveAdapter{}
