// Package pipe writes the segments of a live stream to a single writer in
// media sequence order, e.g. stdout piped into a video player.
package pipe

import (
	"context"
	"io"
	"sync"

	"github.com/otofune/hlsfeed"
	"github.com/otofune/hlsfeed/ctxlogger"
	"github.com/otofune/hlsfeed/repeahttp"
	"github.com/valyala/bytebufferpool"
	"golang.org/x/xerrors"
)

// DefaultMaxPending is how many out of order segments are held back waiting
// for a gap to fill before the gap is skipped.
const DefaultMaxPending = 8

type Handler struct {
	client     *repeahttp.Client
	out        io.Writer
	maxPending int
	pool       bytebufferpool.Pool

	mu      sync.Mutex
	started bool
	next    uint64
	pending map[uint64]*bytebufferpool.ByteBuffer
	written uint64
}

var _ hlsfeed.PlayHandler = &Handler{}

func New(client *repeahttp.Client, out io.Writer, maxPending int) *Handler {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	return &Handler{
		client:     client,
		out:        out,
		maxPending: maxPending,
		pending:    map[uint64]*bytebufferpool.ByteBuffer{},
	}
}

func (h *Handler) Receive(ctx context.Context, seg *hlsfeed.MediaSegment) error {
	u, err := seg.ResolvedURI()
	if err != nil {
		return err
	}

	buf := h.pool.Get()
	resp, err := h.client.Get(ctx, &repeahttp.RequestOptions{URI: u.String()})
	if err != nil {
		h.pool.Put(buf)
		return xerrors.Errorf("segment %d: %w", seg.Sequence, err)
	}
	_, err = buf.ReadFrom(resp.Body)
	resp.Body.Close()
	if err != nil {
		h.pool.Put(buf)
		return xerrors.Errorf("segment %d: %w", seg.Sequence, err)
	}

	return h.push(ctx, seg, buf)
}

func (h *Handler) push(ctx context.Context, seg *hlsfeed.MediaSegment, buf *bytebufferpool.ByteBuffer) error {
	logger := ctxlogger.Component(ctx, "pipe")
	seq := seg.Sequence

	h.mu.Lock()
	defer h.mu.Unlock()

	// downloads finish in any order, so start from the head of the first playlist
	if !h.started {
		h.started = true
		h.next = seg.PlaylistSequence
		if seq < h.next {
			h.next = seq
		}
	}
	if seq < h.next {
		logger.Debugf("dropping late segment %d (next %d)", seq, h.next)
		h.pool.Put(buf)
		return nil
	}
	if _, dup := h.pending[seq]; dup {
		h.pool.Put(buf)
		return nil
	}
	h.pending[seq] = buf

	if len(h.pending) > h.maxPending {
		lowest := seq
		for s := range h.pending {
			if s < lowest {
				lowest = s
			}
		}
		logger.Errorf("skipping segments %d..%d", h.next, lowest-1)
		h.next = lowest
	}
	return h.flush()
}

// flush writes every contiguous pending segment. Called with mu held.
func (h *Handler) flush() error {
	for {
		buf, ok := h.pending[h.next]
		if !ok {
			return nil
		}
		delete(h.pending, h.next)
		_, err := buf.WriteTo(h.out)
		h.pool.Put(buf)
		if err != nil {
			return xerrors.Errorf("write segment %d: %w", h.next, err)
		}
		h.next++
		h.written++
	}
}

// Written is the number of segments written so far.
func (h *Handler) Written() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.written
}
