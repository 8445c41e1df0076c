package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsFailTTL is how long a failed robots.txt download is remembered
// before the host is asked again.
const RobotsFailTTL = 10 * time.Minute

// Robots caches robots.txt per host and answers whether a URL may be fetched.
// Lookups fail open: an unreachable robots.txt allows the fetch.
type Robots struct {
	client    HTTPClient
	userAgent string
	failTTL   time.Duration
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]robotsEntry
}

// robotsEntry is a cached lookup. A nil data allows everything; expires is
// zero for parsed files, which are kept for the life of the process.
type robotsEntry struct {
	data    *robotstxt.RobotsData
	expires time.Time
}

// NewRobots creates a robots.txt checker for the given user agent.
func NewRobots(client HTTPClient, userAgent string) *Robots {
	return &Robots{
		client:    client,
		userAgent: userAgent,
		failTTL:   RobotsFailTTL,
		now:       time.Now,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed reports whether robots.txt permits fetching rawURL.
func (r *Robots) Allowed(ctx context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("parse url: %w", err)
	}

	data := r.lookup(ctx, u)
	if data == nil {
		return true, nil
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.userAgent), nil
}

func (r *Robots) lookup(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	host := u.Host
	r.mu.Lock()
	entry, ok := r.cache[host]
	r.mu.Unlock()
	if ok && (entry.expires.IsZero() || r.now().Before(entry.expires)) {
		return entry.data
	}

	entry = robotsEntry{data: r.download(ctx, u)}
	if entry.data == nil {
		entry.expires = r.now().Add(r.failTTL)
	}
	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry.data
}

func (r *Robots) download(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}
