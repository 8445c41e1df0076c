// Package storage defines the site persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"pagewatch/internal/model"
)

var (
	// ErrNotFound is returned when no site matches the lookup.
	ErrNotFound = errors.New("site not found")
	// ErrDuplicate is returned when a site with the same URL already exists.
	ErrDuplicate = errors.New("site already exists")
)

// Storage is the interface for all site persistence operations.
type Storage interface {
	CreateSite(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, id int64) (*model.Site, error)
	GetSiteByURL(ctx context.Context, url string) (*model.Site, error)
	ListSites(ctx context.Context) ([]model.Site, error)
	ListDueSites(ctx context.Context, defaultIntervalMinutes int) ([]model.Site, error)
	UpdateSite(ctx context.Context, site *model.Site) error
	// UpdateCheckState persists only the fields a check changes, leaving
	// name, selector and interval untouched.
	UpdateCheckState(ctx context.Context, site *model.Site) error
	DeleteSite(ctx context.Context, id int64) error

	Close() error
}
