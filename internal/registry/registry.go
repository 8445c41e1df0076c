// Package registry manages the set of monitored sites.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"pagewatch/internal/model"
	"pagewatch/internal/normalize"
	"pagewatch/internal/storage"
)

var (
	// ErrDuplicateSite is returned when adding a URL that is already monitored.
	ErrDuplicateSite = errors.New("site already monitored")
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidInterval is returned for negative check intervals.
	ErrInvalidInterval = errors.New("interval must not be negative")
)

// SnapshotDeleter removes the stored snapshot of a URL.
type SnapshotDeleter interface {
	Delete(url string) error
}

// AddRequest describes a site to start monitoring.
type AddRequest struct {
	URL      string
	Name     string
	Selector string
	// IntervalMinutes of zero means the global interval.
	IntervalMinutes int
}

// Registry is the site registry backed by a Storage.
type Registry struct {
	store     storage.Storage
	snapshots SnapshotDeleter

	// mu orders read-modify-write operations on existing sites so a check
	// result never overwrites a concurrent rename, interval change or removal.
	mu sync.Mutex
}

// New creates a Registry.
func New(store storage.Storage, snapshots SnapshotDeleter) *Registry {
	return &Registry{store: store, snapshots: snapshots}
}

// Add validates req and registers a new site with status pending.
func (r *Registry) Add(ctx context.Context, req AddRequest) (*model.Site, error) {
	rawURL := strings.TrimSpace(req.URL)
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	selector := strings.TrimSpace(req.Selector)
	if selector != "" {
		if err := normalize.ValidateSelector(selector); err != nil {
			return nil, err
		}
	}
	if req.IntervalMinutes < 0 {
		return nil, ErrInvalidInterval
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = rawURL
	}

	site := &model.Site{
		URL:             rawURL,
		Name:            name,
		Selector:        selector,
		IntervalMinutes: req.IntervalMinutes,
		Status:          model.StatusPending,
	}
	if err := r.store.CreateSite(ctx, site); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSite, rawURL)
		}
		return nil, err
	}
	return site, nil
}

// Remove deletes the site with the given URL and its snapshot. It reports
// false when no such site exists.
func (r *Registry) Remove(ctx context.Context, rawURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	site, err := r.store.GetSiteByURL(ctx, strings.TrimSpace(rawURL))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, r.delete(ctx, site)
}

// RemoveByID deletes the site with the given ID and its snapshot.
func (r *Registry) RemoveByID(ctx context.Context, id int64) (*model.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	site, err := r.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	return site, r.delete(ctx, site)
}

func (r *Registry) delete(ctx context.Context, site *model.Site) error {
	if err := r.store.DeleteSite(ctx, site.ID); err != nil {
		return err
	}
	if err := r.snapshots.Delete(site.URL); err != nil {
		return fmt.Errorf("site removed but snapshot remains: %w", err)
	}
	return nil
}

// List returns all sites in insertion order.
func (r *Registry) List(ctx context.Context) ([]model.Site, error) {
	return r.store.ListSites(ctx)
}

// Due returns the sites whose check interval has elapsed.
func (r *Registry) Due(ctx context.Context, defaultIntervalMinutes int) ([]model.Site, error) {
	return r.store.ListDueSites(ctx, defaultIntervalMinutes)
}

// Get returns the site with the given URL, or storage.ErrNotFound.
func (r *Registry) Get(ctx context.Context, rawURL string) (*model.Site, error) {
	return r.store.GetSiteByURL(ctx, strings.TrimSpace(rawURL))
}

// GetByID returns the site with the given ID, or storage.ErrNotFound.
func (r *Registry) GetByID(ctx context.Context, id int64) (*model.Site, error) {
	return r.store.GetSite(ctx, id)
}

// ApplyCheck loads the current row of site id, lets fn apply a check result
// to it and stores the check state. fn runs under the registry lock, so any
// snapshot write it makes cannot interleave with a removal of the site.
// It returns storage.ErrNotFound, without calling fn, when the site is gone.
func (r *Registry) ApplyCheck(ctx context.Context, id int64, fn func(site *model.Site)) (*model.Site, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	site, err := r.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(site)
	if err := r.store.UpdateCheckState(ctx, site); err != nil {
		return site, err
	}
	return site, nil
}

// Rename changes the display name of a site.
func (r *Registry) Rename(ctx context.Context, id int64, name string) (*model.Site, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("name must not be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	site, err := r.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	site.Name = name
	if err := r.store.UpdateSite(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

// SetInterval changes the check interval of a site. Zero restores the
// global interval.
func (r *Registry) SetInterval(ctx context.Context, id int64, minutes int) (*model.Site, error) {
	if minutes < 0 {
		return nil, ErrInvalidInterval
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	site, err := r.store.GetSite(ctx, id)
	if err != nil {
		return nil, err
	}
	site.IntervalMinutes = minutes
	if err := r.store.UpdateSite(ctx, site); err != nil {
		return nil, err
	}
	return site, nil
}

// ValidateURL checks that rawURL is an absolute http or https URL.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https: %q", ErrInvalidURL, rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host: %q", ErrInvalidURL, rawURL)
	}
	return nil
}
