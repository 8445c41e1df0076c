// Package checker runs a single fetch-normalize-compare cycle for one site
// and applies the resulting state transition.
package checker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pagewatch/internal/diff"
	"pagewatch/internal/digest"
	"pagewatch/internal/fetcher"
	"pagewatch/internal/model"
	"pagewatch/internal/normalize"
	"pagewatch/internal/snapshot"
	"pagewatch/internal/storage"
)

// PageFetcher downloads a page body.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// SnapshotStore reads and writes the last snapshot of a URL.
type SnapshotStore interface {
	Get(url string) (*model.Snapshot, error)
	Put(url string, snap *model.Snapshot) error
}

// SiteStore applies a check result to the current state of a site.
// ApplyCheck returns storage.ErrNotFound, without calling fn, when the site
// no longer exists.
type SiteStore interface {
	ApplyCheck(ctx context.Context, id int64, fn func(site *model.Site)) (*model.Site, error)
}

// Notifier delivers change and error events.
type Notifier interface {
	NotifyChange(ctx context.Context, ev model.ChangeEvent) error
	NotifyError(ctx context.Context, ev model.ErrorEvent) error
}

// Options controls notification policy.
type Options struct {
	// RetryAttempts is the number of consecutive failures after which an
	// error notification is sent.
	RetryAttempts      int
	NotifyOnFirstCheck bool
	NotifyOnError      bool
	IncludeDiff        bool
	MaxDiffLength      int
}

// Checker checks sites for changes.
type Checker struct {
	fetcher    PageFetcher
	normalizer *normalize.Normalizer
	snapshots  SnapshotStore
	sites      SiteStore
	notifier   Notifier
	opts       Options
	log        *slog.Logger
	now        func() time.Time
}

// New creates a Checker.
func New(
	f PageFetcher,
	n *normalize.Normalizer,
	snapshots SnapshotStore,
	sites SiteStore,
	notifier Notifier,
	opts Options,
	log *slog.Logger,
) *Checker {
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	return &Checker{
		fetcher:    f,
		normalizer: n,
		snapshots:  snapshots,
		sites:      sites,
		notifier:   notifier,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Fetch downloads and normalizes a site without touching any state.
func (c *Checker) Fetch(ctx context.Context, site *model.Site) model.FetchResult {
	page, err := c.fetcher.Fetch(ctx, site.URL)
	if err != nil {
		res := model.FetchResult{FetchedAt: c.now(), Err: err}
		var se *fetcher.StatusError
		if errors.As(err, &se) {
			res.StatusCode = se.Code
		}
		return res
	}

	text, err := c.normalizer.Normalize(string(page.Body), site.Selector)
	if err != nil {
		return model.FetchResult{StatusCode: page.StatusCode, FetchedAt: c.now(), Err: err}
	}

	return model.FetchResult{
		Success:     true,
		Content:     text,
		Fingerprint: digest.Fingerprint(text),
		StatusCode:  page.StatusCode,
		Size:        len(text),
		FetchedAt:   c.now(),
	}
}

// Check fetches a site, compares it with the stored snapshot, notifies and
// persists the check result. Errors never escape: they are logged and
// reported in the returned Outcome.
//
// site only supplies the ID, URL and selector to fetch. The state
// transition is applied to the current row, so settings changed while the
// fetch was in flight are kept.
func (c *Checker) Check(ctx context.Context, site *model.Site) model.Outcome {
	out := model.Outcome{SiteID: site.ID, URL: site.URL, Name: site.Name}
	res := c.Fetch(ctx, site)

	if !res.Success {
		return c.fail(ctx, site, res, out)
	}

	var (
		event   *model.ChangeEvent
		putErr  error
		applied bool
	)
	updated, err := c.sites.ApplyCheck(ctx, site.ID, func(s *model.Site) {
		applied = true
		s.Status = model.StatusOK
		s.ErrorCount = 0
		s.LastError = ""
		s.LastCheckedAt = &res.FetchedAt
		s.LastAttemptAt = &res.FetchedAt

		prev := c.previous(ctx, s)
		current := res.Snapshot(s.URL)
		switch {
		case prev == nil:
			out.Kind = model.OutcomeBaseline
			if c.opts.NotifyOnFirstCheck {
				event = &model.ChangeEvent{Current: current}
			}
		case prev.Fingerprint == current.Fingerprint:
			out.Kind = model.OutcomeUnchanged
		default:
			out.Kind = model.OutcomeChanged
			s.LastChangedAt = &res.FetchedAt
			event = &model.ChangeEvent{Previous: prev, Current: current}
			if c.opts.IncludeDiff {
				event.Diff, _ = diff.Lines(prev.Content, current.Content, c.opts.MaxDiffLength)
			}
		}

		if out.Kind != model.OutcomeUnchanged {
			if putErr = c.snapshots.Put(s.URL, current); putErr != nil {
				c.log.Error("save snapshot", "site", s.Name, "url", s.URL, "error", putErr)
			}
		}
	})
	switch {
	case errors.Is(err, storage.ErrNotFound) && !applied:
		c.log.Info("site removed during check", "site", site.Name, "url", site.URL)
		out.Kind = model.OutcomeRemoved
		return out
	case !applied:
		c.log.Error("load site", "site", site.Name, "url", site.URL, "error", err)
		out.Kind = model.OutcomeError
		out.Err = err
		return out
	}
	out.Name = updated.Name
	out.Err = putErr
	if err != nil {
		c.log.Error("update site", "site", updated.Name, "url", updated.URL, "error", err)
		out.Err = errors.Join(out.Err, err)
	}

	switch out.Kind {
	case model.OutcomeBaseline:
		c.log.Info("baseline captured", "site", updated.Name, "url", updated.URL)
	case model.OutcomeUnchanged:
		c.log.Debug("no change", "site", updated.Name, "url", updated.URL)
	case model.OutcomeChanged:
		c.log.Info("change detected", "site", updated.Name, "url", updated.URL)
	}

	if event != nil {
		event.Site = *updated
		if err := c.notifier.NotifyChange(ctx, *event); err != nil {
			c.log.Error("send change notification", "site", updated.Name, "error", err)
		}
	}
	return out
}

// previous returns the stored snapshot of site, or nil when there is none
// or it cannot be used.
func (c *Checker) previous(ctx context.Context, site *model.Site) *model.Snapshot {
	prev, err := c.snapshots.Get(site.URL)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, snapshot.ErrKeyCollision) {
			level = slog.LevelError
		}
		c.log.Log(ctx, level, "stored snapshot unusable, treating as first check",
			"site", site.Name, "url", site.URL, "error", err)
		return nil
	}
	return prev
}

func (c *Checker) fail(ctx context.Context, site *model.Site, res model.FetchResult, out model.Outcome) model.Outcome {
	msg := res.Err.Error()
	out.Kind = model.OutcomeError
	out.Err = res.Err

	var crossed, applied bool
	updated, err := c.sites.ApplyCheck(ctx, site.ID, func(s *model.Site) {
		applied = true
		s.Status = model.StatusError
		s.ErrorCount++
		s.LastError = msg
		s.LastAttemptAt = &res.FetchedAt
		crossed = s.ErrorCount == c.opts.RetryAttempts
	})
	switch {
	case errors.Is(err, storage.ErrNotFound) && !applied:
		c.log.Info("site removed during check", "site", site.Name, "url", site.URL)
		out.Kind = model.OutcomeRemoved
		out.Err = nil
		return out
	case !applied:
		c.log.Error("load site", "site", site.Name, "url", site.URL, "error", err)
		return out
	case err != nil:
		c.log.Error("update site", "site", updated.Name, "url", updated.URL, "error", err)
	}
	out.Name = updated.Name

	c.log.Warn("check failed", "site", updated.Name, "url", updated.URL,
		"error_count", updated.ErrorCount, "error", msg)

	if c.opts.NotifyOnError && crossed {
		ev := model.ErrorEvent{Site: *updated, Error: msg, At: res.FetchedAt}
		if err := c.notifier.NotifyError(ctx, ev); err != nil {
			c.log.Error("send error notification", "site", updated.Name, "error", err)
		}
	}
	return out
}
