// Package notify delivers change and error events to their recipients.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"pagewatch/internal/model"
)

// Sink delivers notifications. Implementations must be safe for concurrent use.
type Sink interface {
	NotifyChange(ctx context.Context, ev model.ChangeEvent) error
	NotifyError(ctx context.Context, ev model.ErrorEvent) error
}

// Multi fans every event out to all sinks.
type Multi []Sink

// NotifyChange sends ev to every sink and joins their errors.
func (m Multi) NotifyChange(ctx context.Context, ev model.ChangeEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.NotifyChange(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyError sends ev to every sink and joins their errors.
func (m Multi) NotifyError(ctx context.Context, ev model.ErrorEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.NotifyError(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events as structured log records.
type LogSink struct {
	log *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

// NotifyChange logs a change event.
func (s *LogSink) NotifyChange(ctx context.Context, ev model.ChangeEvent) error {
	attrs := []any{"site", ev.Site.Name, "url", ev.Site.URL, "first_check", ev.Previous == nil}
	if ev.Diff != "" {
		attrs = append(attrs, "diff", ev.Diff)
	}
	s.log.InfoContext(ctx, ChangeSubject(ev), attrs...)
	return nil
}

// NotifyError logs an error event.
func (s *LogSink) NotifyError(ctx context.Context, ev model.ErrorEvent) error {
	s.log.ErrorContext(ctx, ErrorSubject(ev),
		"site", ev.Site.Name, "url", ev.Site.URL, "error_count", ev.Site.ErrorCount, "error", ev.Error)
	return nil
}
