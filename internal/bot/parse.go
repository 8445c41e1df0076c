package bot

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddArgs splits /add arguments into a URL and an optional CSS selector.
// Format: <url> [selector...]
func ParseAddArgs(args string) (string, string, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("usage: /add <url> [selector]")
	}
	return parts[0], strings.Join(parts[1:], " "), nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("site ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid site ID %q", s)
	}
	return id, nil
}

// ParseRenameArgs extracts a site ID and new name from command arguments.
func ParseRenameArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("usage: /rename <id> <new_name>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid site ID %q", parts[0])
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return 0, "", fmt.Errorf("new name cannot be empty")
	}
	return id, name, nil
}

// ParseIntervalArgs extracts a site ID and interval in minutes. Zero resets
// the site to the global interval.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid site ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 0 || mins > 1440 {
		return 0, 0, fmt.Errorf("interval must be between 0 and 1440 minutes")
	}
	return id, mins, nil
}
