package feed

import "context"

// Update is the latest entry of a feed.
type Update struct {
	Reference string
	Index     uint64
	NextIndex uint64
}

// Reader returns the latest update of one feed.
type Reader interface {
	Latest(ctx context.Context) (*Update, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) (*Update, error)

func (f ReaderFunc) Latest(ctx context.Context) (*Update, error) {
	return f(ctx)
}
