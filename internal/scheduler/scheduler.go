// Package scheduler runs site checks periodically.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"pagewatch/internal/model"
)

// SiteSource lists the sites due for a check.
type SiteSource interface {
	Due(ctx context.Context, defaultIntervalMinutes int) ([]model.Site, error)
}

// SiteChecker checks a single site.
type SiteChecker interface {
	Check(ctx context.Context, site *model.Site) model.Outcome
}

// Options configures a Scheduler.
type Options struct {
	// Tick is how often due sites are looked up. Defaults to 1 minute.
	Tick time.Duration
	// PolitenessDelay is the minimum spacing between two fetch starts.
	PolitenessDelay time.Duration
	// Concurrency bounds parallel checks. Values below 2 check sequentially.
	Concurrency int
	// DefaultIntervalMinutes applies to sites without their own interval.
	DefaultIntervalMinutes int
}

// Scheduler periodically checks due sites.
type Scheduler struct {
	sites   SiteSource
	checker SiteChecker
	opts    Options
	limiter *rate.Limiter
	log     *slog.Logger
}

// New creates a Scheduler.
func New(sites SiteSource, checker SiteChecker, opts Options, log *slog.Logger) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Minute
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	limit := rate.Inf
	if opts.PolitenessDelay > 0 {
		limit = rate.Every(opts.PolitenessDelay)
	}
	return &Scheduler{
		sites:   sites,
		checker: checker,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}
}

// Run checks due sites immediately and then on every tick, blocking until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.CheckAll(ctx)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckAll(ctx)
		}
	}
}

// CheckAll checks every due site once and returns the outcomes in site order.
// Sites not started before ctx is cancelled are skipped.
func (s *Scheduler) CheckAll(ctx context.Context) []model.Outcome {
	sites, err := s.sites.Due(ctx, s.opts.DefaultIntervalMinutes)
	if err != nil {
		s.log.Error("list due sites", "error", err)
		return nil
	}
	if len(sites) == 0 {
		return nil
	}
	return s.CheckSites(ctx, sites)
}

// CheckSites checks the given sites regardless of their schedule.
func (s *Scheduler) CheckSites(ctx context.Context, sites []model.Site) []model.Outcome {
	start := time.Now()
	results := make([]*model.Outcome, len(sites))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for i := range sites {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		site := &sites[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Debug("checking site", "site_id", site.ID, "site", site.Name, "url", site.URL)
			// A started check completes its writes even if ctx is cancelled.
			out := s.checker.Check(context.WithoutCancel(ctx), site)
			results[i] = &out
			return nil
		})
	}
	_ = g.Wait()

	outcomes := make([]model.Outcome, 0, len(sites))
	var changed, failed int
	for _, o := range results {
		if o == nil {
			continue
		}
		outcomes = append(outcomes, *o)
		switch o.Kind {
		case model.OutcomeChanged:
			changed++
		case model.OutcomeError:
			failed++
		}
	}
	s.log.Info("check cycle finished",
		"checked", len(outcomes), "changed", changed, "failed", failed,
		"skipped", len(sites)-len(outcomes), "duration", time.Since(start).Round(time.Millisecond))
	return outcomes
}
