package notify

import (
	"fmt"
	"strings"
	"time"

	"pagewatch/internal/model"
)

const timeFormat = "2006-01-02 15:04 UTC"

// ChangeSubject returns the one-line subject of a change notification.
func ChangeSubject(ev model.ChangeEvent) string {
	if ev.Previous == nil {
		return "Now monitoring: " + ev.Site.Name
	}
	return "Website changed: " + ev.Site.Name
}

// ErrorSubject returns the one-line subject of an error notification.
func ErrorSubject(ev model.ErrorEvent) string {
	return "Website monitor error: " + ev.Site.Name
}

// FormatChange formats a change event as a plain-text message.
func FormatChange(ev model.ChangeEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", ChangeSubject(ev))
	fmt.Fprintf(&b, "Site: %s\n", ev.Site.Name)
	fmt.Fprintf(&b, "URL: %s\n", ev.Site.URL)
	if ev.Previous != nil {
		fmt.Fprintf(&b, "Previous check: %s\n", formatTime(ev.Previous.CapturedAt))
	} else {
		b.WriteString("Previous check: first check\n")
	}
	if ev.Current != nil {
		fmt.Fprintf(&b, "Current check: %s\n", formatTime(ev.Current.CapturedAt))
	}
	if ev.Diff != "" {
		b.WriteString("\nChanges:\n")
		b.WriteString(ev.Diff)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatError formats an error event as a plain-text message.
func FormatError(ev model.ErrorEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]\n\n", ErrorSubject(ev))
	fmt.Fprintf(&b, "Site: %s\n", ev.Site.Name)
	fmt.Fprintf(&b, "URL: %s\n", ev.Site.URL)
	fmt.Fprintf(&b, "Time: %s\n", formatTime(ev.At))
	fmt.Fprintf(&b, "Failed checks: %d\n", ev.Site.ErrorCount)
	fmt.Fprintf(&b, "\nError: %s\n", ev.Error)
	b.WriteString("\nThe website may be down or unreachable.")
	return b.String()
}

// FormatSiteList formats a list of sites for display.
func FormatSiteList(sites []model.Site, defaultInterval int) string {
	if len(sites) == 0 {
		return "No sites are monitored yet. Use /add <url> to add one."
	}
	var b strings.Builder
	b.WriteString("Monitored sites:\n")
	for _, s := range sites {
		fmt.Fprintf(&b, "\n#%d %s  (every %d min) [%s]\n", s.ID, s.Name, interval(s, defaultInterval), s.Status)
		fmt.Fprintf(&b, "   %s\n", s.URL)
	}
	return b.String()
}

// FormatSiteInfo formats detailed information about a single site.
func FormatSiteInfo(s *model.Site, defaultInterval int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", s.ID, s.Name, s.Status)
	fmt.Fprintf(&b, "URL: %s\n", s.URL)
	if s.Selector != "" {
		fmt.Fprintf(&b, "Selector: %s\n", s.Selector)
	}
	fmt.Fprintf(&b, "Interval: every %d min\n", interval(*s, defaultInterval))
	if s.LastCheckedAt != nil {
		fmt.Fprintf(&b, "Last check: %s\n", formatTime(*s.LastCheckedAt))
	}
	if s.LastChangedAt != nil {
		fmt.Fprintf(&b, "Last change: %s\n", formatTime(*s.LastChangedAt))
	}
	if s.ErrorCount > 0 {
		fmt.Fprintf(&b, "Consecutive errors: %d\n", s.ErrorCount)
	}
	if s.LastError != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.LastError)
	}
	return b.String()
}

// FormatOutcomes summarizes the outcomes of a check cycle.
func FormatOutcomes(outcomes []model.Outcome) string {
	if len(outcomes) == 0 {
		return "No sites to check."
	}
	var b strings.Builder
	var changed, failed int
	for _, o := range outcomes {
		switch o.Kind {
		case model.OutcomeChanged:
			changed++
		case model.OutcomeError:
			failed++
		}
		line := fmt.Sprintf("%s: %s", o.Name, o.Kind)
		if o.Err != nil {
			line += " (" + o.Err.Error() + ")"
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "\nChecked %d, changed %d, failed %d", len(outcomes), changed, failed)
	return b.String()
}

func interval(s model.Site, defaultInterval int) int {
	if s.IntervalMinutes > 0 {
		return s.IntervalMinutes
	}
	return defaultInterval
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.UTC().Format(timeFormat)
}
