// Package repeahttp issues player requests: it runs the BeforeRequest hook,
// resolves relative URIs against the gateway and retries failed GETs.
package repeahttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/otofune/hlsfeed/ctxlogger"
	"golang.org/x/xerrors"
)

const retryTimes = 5

// StatusError is returned when the server keeps answering with an error status.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("repeahttp: %s: server returns %s", e.URL, e.Status)
}

type Client struct {
	HTTP *http.Client
	// BaseURL resolves path relative URIs such as /bytes/<reference>.
	BaseURL *url.URL
	// BeforeRequest must be set before the client is shared between goroutines.
	BeforeRequest BeforeRequestFunc
	// NewBackOff returns the retry policy for Get. Defaults to exponential, 5 attempts.
	NewBackOff func() backoff.BackOff
}

func NewClient(hc *http.Client, base *url.URL) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{HTTP: hc, BaseURL: base}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, retryTimes-1)
}

// Prepare applies the hook and resolves the URI. The caller's options are not modified.
func (c *Client) Prepare(opts *RequestOptions) (*RequestOptions, *url.URL, error) {
	o := opts.clone()
	if o.Method == "" {
		o.Method = http.MethodGet
	}
	if c.BeforeRequest != nil {
		if r := c.BeforeRequest(o); r != nil {
			o = r
		}
	}
	u, err := url.Parse(o.URI)
	if err != nil {
		return nil, nil, xerrors.Errorf("repeahttp: parse %q: %w", o.URI, err)
	}
	if c.BaseURL != nil {
		u = c.BaseURL.ResolveReference(u)
	}
	return o, u, nil
}

// Do performs a single attempt.
func (c *Client) Do(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	o, u, err := c.Prepare(opts)
	if err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if o.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
	}

	req, err := http.NewRequestWithContext(ctx, o.Method, u.String(), nil)
	if err != nil {
		cancel()
		return nil, xerrors.Errorf("repeahttp: %w", err)
	}
	for k, vs := range extractHeader(ctx) {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range o.Header {
		req.Header[k] = vs
	}

	ctxlogger.ExtractLogger(ctx).Debugf("%s %s (timeout %s)", o.Method, u, o.Timeout)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Get retries transport errors and error statuses with exponential backoff.
// The returned response always has a status below 400.
func (c *Client) Get(ctx context.Context, opts *RequestOptions) (*http.Response, error) {
	newBackOff := c.NewBackOff
	if newBackOff == nil {
		newBackOff = defaultBackOff
	}
	logger := ctxlogger.ExtractLogger(ctx)

	var resp *http.Response
	op := func() error {
		r, err := c.Do(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if r.StatusCode > 399 {
			r.Body.Close()
			return &StatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode, Status: r.Status}
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Debugf("retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(newBackOff(), ctx), notify); err != nil {
		return nil, xerrors.Errorf("repeahttp: get %s: %w", opts.URI, err)
	}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
