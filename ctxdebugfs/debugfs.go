// Package ctxdebugfs captures fetched playlists to a directory for debugging.
// The capture target travels in the context; without one nothing is written.
package ctxdebugfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

type key string

const debugFSKey = key("hlsfeedDebugFS")

type DebugFS interface {
	// Create opens a new writable file; name is a bare file name.
	Create(name string) (io.WriteCloser, error)
}

func WithDebugFS(ctx context.Context, fs DebugFS) context.Context {
	return context.WithValue(ctx, debugFSKey, fs)
}

func ExtractDebugFS(ctx context.Context) DebugFS {
	fs, _ := ctx.Value(debugFSKey).(DebugFS)
	return fs
}

type dirFS struct {
	dir string
}

// NewDirFS writes captures into dir, creating it if needed.
func NewDirFS(dir string) (DebugFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &dirFS{dir: dir}, nil
}

func (d *dirFS) Create(name string) (io.WriteCloser, error) {
	return os.OpenFile(filepath.Join(d.dir, filepath.Base(name)), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}
