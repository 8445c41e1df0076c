package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pagewatch/internal/filter"
	"pagewatch/internal/normalize"
)

// DefaultRulesFile is the rules file name searched for when RULES_FILE is unset.
const DefaultRulesFile = ".pagewatch.yaml"

// Rules holds extraction rules shared by all sites.
type Rules struct {
	// IgnorePatterns replaces the default patterns when present in the file.
	IgnorePatterns []string `yaml:"ignore_patterns"`
	// Selectors restrict extraction for sites without their own selector.
	Selectors []string `yaml:"selectors"`
}

// LoadRules reads a rules file. A missing file returns ErrRulesNotFound.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided rules path is intentional
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRulesNotFound, path)
		}
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return &r, nil
}

// Validate checks every pattern and selector.
func (r *Rules) Validate() error {
	for _, p := range r.IgnorePatterns {
		if err := filter.ValidatePattern(p); err != nil {
			return err
		}
	}
	for _, s := range r.Selectors {
		if err := normalize.ValidateSelector(s); err != nil {
			return err
		}
	}
	return nil
}

// FindRulesFile returns the rules file to use: explicitPath when given,
// otherwise DefaultRulesFile in the current directory, then in the home
// directory. It returns an empty string when none exists.
func FindRulesFile(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, DefaultRulesFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DefaultRulesFile)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
