package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/otofune/hlsfeed/ctxlogger"
)

// DefaultInterval is how often the feed is re-read.
const DefaultInterval = 10 * time.Second

var ErrAlreadyStarted = errors.New("resolver: refresher already started")

// Refresher re-resolves the feed on a fixed interval and stores the result in a State.
type Refresher struct {
	resolver *Resolver
	state    *State
	interval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewRefresher(r *Resolver, s *State, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Refresher{resolver: r, state: s, interval: interval}
}

func (r *Refresher) State() *State {
	return r.state
}

// Start resolves the initial URL synchronously. Only when that succeeds is the
// periodic refresh scheduled; it runs until ctx is done or Stop is called.
func (r *Refresher) Start(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return "", ErrAlreadyStarted
	}
	cctx, cancel := context.WithCancel(ctx)
	r.started = true
	r.cancel = cancel
	// held until the loop exits so Stop waits for this Start too
	r.wg.Add(1)
	r.mu.Unlock()

	// resolve unlocked so Stop can cancel a hung read
	url, err := r.resolver.Resolve(cctx)
	if err != nil {
		cancel()
		r.wg.Done()
		r.mu.Lock()
		r.started = false
		r.cancel = nil
		r.mu.Unlock()
		r.state.Fail(err)
		return "", err
	}
	r.state.Set(url)

	go func() {
		defer r.wg.Done()
		r.loop(cctx)
	}()
	return url, nil
}

// Each tick resolves in its own goroutine so a hung read never delays the next
// attempt. Whichever resolution completes last wins.
func (r *Refresher) loop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = r.RefreshOnce(ctx)
			}()
		}
	}
}

// RefreshOnce resolves the feed and updates the state. On failure the
// previous URL stays in place and the error is recorded.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	logger := ctxlogger.Component(ctx, "refresher")

	url, err := r.resolver.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.state.Fail(err)
		logger.Errorf("refresh failed, keeping %s: %v", r.state.URL(), err)
		return err
	}
	r.state.Set(url)
	return nil
}

// Stop cancels the refresh loop and in-flight resolutions and waits for them.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}
