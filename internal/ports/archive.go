package ports

import (
	"context"
	"io"

	"chainsnap/internal/types"
)

// ArchivePort produces a single compressed stream of a directory tree.
type ArchivePort interface {
	// WriteArchive writes srcDir under rootName to w. onReadDone fires once
	// every source byte has been read, before the compressor flushes.
	WriteArchive(ctx context.Context, srcDir string, rootName string, level int, w io.Writer, onReadDone func()) (types.ArchiveStats, error)
	Extract(ctx context.Context, r io.Reader, destDir string) error
}
