package resolver

import (
	"sync"
	"time"

	"github.com/otofune/hlsfeed/metrics"
	"github.com/otofune/hlsfeed/repeahttp"
)

// State holds the current manifest URL. It is written by the refresher and
// read by the request hook and the HTTP surface.
type State struct {
	mu        sync.RWMutex
	url       string
	updatedAt time.Time
	lastErr   error
	lastErrAt time.Time
	successes uint64
	failures  uint64
}

func NewState() *State {
	return &State{}
}

// URL returns the current manifest URL, empty until the first resolution.
func (s *State) URL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.url
}

func (s *State) Set(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
	s.updatedAt = time.Now()
	s.successes++
}

// Fail records a failed resolution. The URL is left untouched.
func (s *State) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	s.lastErrAt = time.Now()
	s.failures++
}

func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Status is a point in time copy of State.
type Status struct {
	URL         string     `json:"url"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	Successes   uint64     `json:"successes"`
	Failures    uint64     `json:"failures"`
}

func (s *State) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		URL:       s.url,
		UpdatedAt: s.updatedAt,
		Successes: s.successes,
		Failures:  s.failures,
	}
	if s.lastErr != nil {
		at := s.lastErrAt
		st.LastError = s.lastErr.Error()
		st.LastErrorAt = &at
	}
	return st
}

// BeforeRequest is the player's request hook: requests carrying a positive
// timeout are pointed at the current manifest, everything else passes through.
func (s *State) BeforeRequest(opts *repeahttp.RequestOptions) *repeahttp.RequestOptions {
	if opts.Timeout > 0 {
		if url := s.URL(); url != "" {
			opts.URI = url
			metrics.IncManifestRewrite()
		}
	}
	return opts
}
