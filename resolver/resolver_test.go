package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otofune/hlsfeed/feed"
	"github.com/otofune/hlsfeed/repeahttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errGateway = errors.New("gateway unreachable")

// scriptedReader answers Latest with the queued results, repeating the last one.
type scriptedReader struct {
	mu      sync.Mutex
	results []result
	calls   int
}

type result struct {
	ref string
	err error
}

func (s *scriptedReader) Latest(context.Context) (*feed.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.results[len(s.results)-1]
	if s.calls < len(s.results) {
		r = s.results[s.calls]
	}
	s.calls++
	if r.err != nil {
		return nil, r.err
	}
	return &feed.Update{Reference: r.ref}, nil
}

func (s *scriptedReader) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestResolve_FormatsURL(t *testing.T) {
	r := New(&scriptedReader{results: []result{{ref: "abc123"}}}, "")

	url, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/bytes/abc123", url)
}

func TestResolve_CustomPrefix(t *testing.T) {
	r := New(&scriptedReader{results: []result{{ref: "abc123"}}}, "/bzz/")

	url, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/bzz/abc123", url)
}

func TestResolve_PropagatesFailure(t *testing.T) {
	r := New(&scriptedReader{results: []result{{err: feed.ErrNotFound}}}, "")

	url, err := r.Resolve(context.Background())
	assert.Empty(t, url)
	assert.True(t, errors.Is(err, feed.ErrNotFound))
}

func TestResolve_EmptyReference(t *testing.T) {
	r := New(feed.ReaderFunc(func(context.Context) (*feed.Update, error) {
		return &feed.Update{}, nil
	}), "")

	_, err := r.Resolve(context.Background())
	assert.True(t, errors.Is(err, feed.ErrMalformedReference))
}

func TestState_BeforeRequest(t *testing.T) {
	s := NewState()
	s.Set("/bytes/abc123")

	tests := []struct {
		name    string
		timeout time.Duration
		uri     string
		want    string
	}{
		{name: "zero timeout passes through", timeout: 0, uri: "/bytes/seg1", want: "/bytes/seg1"},
		{name: "negative timeout passes through", timeout: -time.Second, uri: "/bytes/seg2", want: "/bytes/seg2"},
		{name: "positive timeout rewritten", timeout: 5 * time.Second, uri: "/bytes/old", want: "/bytes/abc123"},
		{name: "rewritten regardless of original", timeout: time.Millisecond, uri: "https://elsewhere/x.m3u8", want: "/bytes/abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &repeahttp.RequestOptions{URI: tt.uri, Timeout: tt.timeout}
			got := s.BeforeRequest(opts)
			assert.Same(t, opts, got)
			assert.Equal(t, tt.want, got.URI)
		})
	}
}

func TestState_BeforeRequestBeforeFirstResolution(t *testing.T) {
	opts := &repeahttp.RequestOptions{URI: "/live.m3u8", Timeout: time.Second}
	assert.Equal(t, "/live.m3u8", NewState().BeforeRequest(opts).URI)
}

func TestState_FailKeepsURL(t *testing.T) {
	s := NewState()
	s.Set("/bytes/abc123")
	s.Fail(errGateway)

	assert.Equal(t, "/bytes/abc123", s.URL())
	st := s.Status()
	assert.Equal(t, "/bytes/abc123", st.URL)
	assert.Equal(t, errGateway.Error(), st.LastError)
	require.NotNil(t, st.LastErrorAt)
	assert.EqualValues(t, 1, st.Successes)
	assert.EqualValues(t, 1, st.Failures)
	assert.Equal(t, errGateway, s.LastError())
}

func TestRefresher_StartFailureDoesNotSchedule(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reader := &scriptedReader{results: []result{{err: errGateway}}}
	state := NewState()
	rf := NewRefresher(New(reader, ""), state, 5*time.Millisecond)

	url, err := rf.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errGateway))
	assert.Empty(t, url)
	assert.Empty(t, state.URL())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, reader.Calls())
	rf.Stop()
}

func TestRefresher_UpdatesAndKeepsURLOnFailure(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reader := &scriptedReader{results: []result{
		{ref: "abc123"},
		{ref: "def456"},
		{err: errGateway},
	}}
	state := NewState()
	rf := NewRefresher(New(reader, ""), state, 10*time.Millisecond)

	url, err := rf.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/bytes/abc123", url)
	assert.Equal(t, "/bytes/abc123", state.URL())

	require.Eventually(t, func() bool {
		return state.Status().Failures >= 1
	}, time.Second, 5*time.Millisecond)
	rf.Stop()

	assert.Equal(t, "/bytes/def456", state.URL())
	assert.GreaterOrEqual(t, reader.Calls(), 3)

	opts := state.BeforeRequest(&repeahttp.RequestOptions{URI: "/bytes/abc123", Timeout: 5000 * time.Millisecond})
	assert.Equal(t, "/bytes/def456", opts.URI)
}

func TestRefresher_KeepsTickingWhileReadHangs(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu    sync.Mutex
		calls int
	)
	reader := feed.ReaderFunc(func(ctx context.Context) (*feed.Update, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 2 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &feed.Update{Reference: "abc123"}, nil
	})
	rf := NewRefresher(New(reader, ""), NewState(), 5*time.Millisecond)

	_, err := rf.Start(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 4
	}, time.Second, 5*time.Millisecond)
	rf.Stop()
}

func TestRefresher_StartTwice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rf := NewRefresher(New(&scriptedReader{results: []result{{ref: "abc123"}}}, ""), NewState(), time.Hour)
	_, err := rf.Start(context.Background())
	require.NoError(t, err)
	_, err = rf.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	rf.Stop()
}

func TestRefresher_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	rf := NewRefresher(New(&scriptedReader{results: []result{{ref: "abc123"}}}, ""), NewState(), time.Millisecond)
	_, err := rf.Start(ctx)
	require.NoError(t, err)

	cancel()
	rf.Stop()
}

func TestRefresher_StopCancelsHungStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	reading := make(chan struct{})
	reader := feed.ReaderFunc(func(ctx context.Context) (*feed.Update, error) {
		close(reading)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	rf := NewRefresher(New(reader, ""), NewState(), time.Hour)

	errc := make(chan error, 1)
	go func() {
		_, err := rf.Start(context.Background())
		errc <- err
	}()
	<-reading

	stopped := make(chan struct{})
	go func() {
		rf.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on the initial read")
	}
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.Empty(t, rf.State().URL())
}
