// Package fetcher handles page downloading with timeouts, retries, and
// robots.txt checks.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultMaxBodySize caps how much of a response body is read.
const DefaultMaxBodySize = 5 * 1024 * 1024

var (
	// ErrTimeout is returned when a request exceeds its deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrConnection is returned for transport failures other than timeouts.
	ErrConnection = errors.New("connection failed")
	// ErrRobots is returned when robots.txt disallows the URL.
	ErrRobots = errors.New("blocked by robots.txt")
)

// StatusError is returned for responses outside the 2xx and 3xx ranges.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is a successfully fetched response body.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Options configures a Fetcher.
type Options struct {
	UserAgent string
	// Timeout bounds each attempt, including reading the body.
	Timeout time.Duration
	// Retries is the number of extra attempts after a transient failure.
	Retries    uint64
	RetryDelay time.Duration
	// MaxBodySize defaults to DefaultMaxBodySize.
	MaxBodySize int64
	// Robots, when set, is consulted before every fetch.
	Robots *Robots
}

// Fetcher downloads web pages.
type Fetcher struct {
	client HTTPClient
	opts   Options
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pagewatch/1.0"
	}
	return &Fetcher{client: client, opts: opts}
}

// Fetch downloads url. Timeouts, connection failures, 429 and 5xx responses
// are retried up to Options.Retries times.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := f.checkRobots(ctx, url); err != nil {
		return nil, err
	}

	var page *Page
	backoff := retry.WithMaxRetries(f.opts.Retries, retry.NewConstant(f.opts.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := f.fetchOnce(ctx, url)
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// checkRobots consults robots.txt under the same per-attempt deadline as a
// page request.
func (f *Fetcher) checkRobots(ctx context.Context, url string) error {
	if f.opts.Robots == nil {
		return nil
	}
	robotsCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	allowed, err := f.opts.Robots.Allowed(robotsCtx, url)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrRobots, url)
	}
	return nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize))
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("read body: %w", err))
	}

	return &Page{
		URL:        url,
		StatusCode: resp.StatusCode,
		Body:       body,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// classify maps transport errors onto ErrTimeout and ErrConnection. A
// cancelled parent context is returned as is.
func classify(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return false
}
