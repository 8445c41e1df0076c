package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"pagewatch/internal/model"
	"pagewatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const siteColumns = `id, url, name, selector, interval_minutes, status, error_count, last_error,
	created_at, last_checked_at, last_changed_at, last_attempt_at`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: every writer goes through the same handle, and
	// :memory: databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSite inserts a new site and populates its ID, CreatedAt and Status.
// It returns ErrDuplicate if the URL is already registered.
func (s *SQLite) CreateSite(ctx context.Context, site *model.Site) error {
	now := time.Now().UTC().Format(timeLayout)
	if site.Status == "" {
		site.Status = model.StatusPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (url, name, selector, interval_minutes, status, error_count, last_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO NOTHING`,
		site.URL, site.Name, site.Selector, site.IntervalMinutes, string(site.Status),
		site.ErrorCount, site.LastError, now,
	)
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicate, site.URL)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	site.ID = id
	site.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSite returns a single site by its ID.
func (s *SQLite) GetSite(ctx context.Context, id int64) (*model.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, id)
	return scanSite(row)
}

// GetSiteByURL returns a single site by its URL.
func (s *SQLite) GetSiteByURL(ctx context.Context, url string) (*model.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE url = ?`, url)
	return scanSite(row)
}

// ListSites returns all sites in insertion order.
func (s *SQLite) ListSites(ctx context.Context) ([]model.Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSites(rows)
}

// ListDueSites returns sites whose interval has elapsed since their last
// attempt, in insertion order. Sites without their own interval use
// defaultIntervalMinutes.
func (s *SQLite) ListDueSites(ctx context.Context, defaultIntervalMinutes int) ([]model.Site, error) {
	now := time.Now().UTC().Format(timeLayout)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+siteColumns+`
		 FROM sites
		 WHERE last_attempt_at IS NULL
		    OR datetime(last_attempt_at,
		                '+' || (CASE WHEN interval_minutes > 0 THEN interval_minutes ELSE ? END) || ' minutes')
		       <= datetime(?)
		 ORDER BY id`,
		defaultIntervalMinutes, now,
	)
	if err != nil {
		return nil, fmt.Errorf("query due sites: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSites(rows)
}

// UpdateSite persists every mutable field of an existing site.
func (s *SQLite) UpdateSite(ctx context.Context, site *model.Site) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET name = ?, selector = ?, interval_minutes = ?, status = ?, error_count = ?,
		        last_error = ?, last_checked_at = ?, last_changed_at = ?, last_attempt_at = ?
		 WHERE id = ?`,
		site.Name, site.Selector, site.IntervalMinutes, string(site.Status), site.ErrorCount,
		site.LastError, formatTime(site.LastCheckedAt), formatTime(site.LastChangedAt),
		formatTime(site.LastAttemptAt), site.ID,
	)
	if err != nil {
		return fmt.Errorf("update site: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCheckState persists the status, error and timestamp fields of site.
func (s *SQLite) UpdateCheckState(ctx context.Context, site *model.Site) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET status = ?, error_count = ?, last_error = ?,
		        last_checked_at = ?, last_changed_at = ?, last_attempt_at = ?
		 WHERE id = ?`,
		string(site.Status), site.ErrorCount, site.LastError,
		formatTime(site.LastCheckedAt), formatTime(site.LastChangedAt),
		formatTime(site.LastAttemptAt), site.ID,
	)
	if err != nil {
		return fmt.Errorf("update check state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSite removes a site by its ID. Deleting a missing site is a no-op.
func (s *SQLite) DeleteSite(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete site: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSite(row scannable) (*model.Site, error) {
	var s model.Site
	var status string
	var created, lastChecked, lastChanged, lastAttempt sql.NullString
	err := row.Scan(&s.ID, &s.URL, &s.Name, &s.Selector, &s.IntervalMinutes, &status,
		&s.ErrorCount, &s.LastError, &created, &lastChecked, &lastChanged, &lastAttempt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}
	s.Status = model.SiteStatus(status)
	if created.Valid {
		s.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	s.LastCheckedAt = parseTime(lastChecked)
	s.LastChangedAt = parseTime(lastChanged)
	s.LastAttemptAt = parseTime(lastAttempt)
	return &s, nil
}

func scanSites(rows *sql.Rows) ([]model.Site, error) {
	var sites []model.Site
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			return nil, err
		}
		sites = append(sites, *s)
	}
	return sites, rows.Err()
}
