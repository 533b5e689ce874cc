package ctxdebugfs

import (
	"context"
	"io"
)

type teeReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *teeReadCloser) Close() (err error) {
	for _, c := range r.closers {
		if e := c.Close(); e != nil {
			err = e
		}
	}
	return
}

// Tee copies everything read from r into filename on the context's DebugFS.
// r is returned unchanged when there is no DebugFS or the file can't be created.
func Tee(ctx context.Context, r io.ReadCloser, filename string) io.ReadCloser {
	fs := ExtractDebugFS(ctx)
	if fs == nil {
		return r
	}
	fd, err := fs.Create(filename)
	if err != nil {
		return r
	}
	return &teeReadCloser{
		Reader:  io.TeeReader(r, fd),
		closers: []io.Closer{r, fd},
	}
}
