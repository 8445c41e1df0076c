// Package model defines the domain types used across the application.
package model

import "time"

// SiteStatus is the result of the most recent check of a site.
type SiteStatus string

// Supported site statuses.
const (
	StatusPending SiteStatus = "pending"
	StatusOK      SiteStatus = "ok"
	StatusError   SiteStatus = "error"
)

// Site is a monitored web page. URL is the unique key.
type Site struct {
	ID       int64
	URL      string
	Name     string
	Selector string
	// IntervalMinutes overrides the global check interval when positive.
	IntervalMinutes int
	Status          SiteStatus
	ErrorCount      int
	LastError       string
	CreatedAt       time.Time
	// LastCheckedAt is the time of the last successful check.
	LastCheckedAt *time.Time
	LastChangedAt *time.Time
	// LastAttemptAt is updated on every check, successful or not, and
	// drives scheduling.
	LastAttemptAt *time.Time
}

// Snapshot is the last observed state of a URL.
type Snapshot struct {
	URL         string    `json:"url"`
	Fingerprint string    `json:"fingerprint"`
	Content     string    `json:"content"`
	CapturedAt  time.Time `json:"captured_at"`
	StatusCode  int       `json:"status_code"`
	Size        int       `json:"size"`
}

// FetchResult is the outcome of fetching and normalizing one page.
type FetchResult struct {
	Success     bool
	Content     string
	Fingerprint string
	StatusCode  int
	// Size is the byte length of Content.
	Size      int
	FetchedAt time.Time
	Err       error
}

// Snapshot converts a successful result into a snapshot for url.
func (r FetchResult) Snapshot(url string) *Snapshot {
	return &Snapshot{
		URL:         url,
		Fingerprint: r.Fingerprint,
		Content:     r.Content,
		CapturedAt:  r.FetchedAt,
		StatusCode:  r.StatusCode,
		Size:        r.Size,
	}
}

// ChangeEvent reports a detected change. Previous is nil on a baseline check.
type ChangeEvent struct {
	Site     Site
	Previous *Snapshot
	Current  *Snapshot
	Diff     string
}

// ErrorEvent reports a site that keeps failing.
type ErrorEvent struct {
	Site  Site
	Error string
	At    time.Time
}

// OutcomeKind classifies the result of a single site check.
type OutcomeKind string

// Supported outcome kinds.
const (
	OutcomeBaseline  OutcomeKind = "baseline"
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeChanged   OutcomeKind = "changed"
	OutcomeError     OutcomeKind = "error"
	// OutcomeRemoved means the site was deregistered while being checked;
	// nothing was stored or notified.
	OutcomeRemoved OutcomeKind = "removed"
)

// Outcome is the per-site record produced by a check cycle.
type Outcome struct {
	SiteID int64
	URL    string
	Name   string
	Kind   OutcomeKind
	// Err holds the fetch error for OutcomeError, or a persistence error
	// that occurred after an otherwise successful check.
	Err error
}

// OK reports whether the check fetched the page and recorded the result.
func (o Outcome) OK() bool {
	return o.Kind != OutcomeError && o.Kind != OutcomeRemoved
}
