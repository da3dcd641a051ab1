// Package config loads the declarative setup for a watchkit deployment: the
// set of watch roots, ignore patterns, event latency, and log level. It is
// meant for embedders and the cmd/watchkit demonstration command that would
// rather point at a YAML file than hand-assemble watch.Option values.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/watchkit/watchkit/pkg/logging"
)

// Root describes a single directory to watch, plus the ignore patterns that
// apply only to it.
type Root struct {
	// Path is the absolute filesystem path to watch.
	Path string `yaml:"path"`
	// Ignore lists doublestar glob patterns, evaluated against paths
	// relative to Path, that should never reach a ChangeSink.
	Ignore []string `yaml:"ignore"`
}

// Configuration is the top-level YAML configuration object.
type Configuration struct {
	// Roots are the directories to watch.
	Roots []Root `yaml:"roots"`
	// Ignore lists glob patterns that apply globally, in addition to any
	// per-root patterns.
	Ignore []string `yaml:"ignore"`
	// Latency is the coalescing window requested from the platform watch
	// mechanism, expressed as a Go duration string (e.g. "10ms").
	Latency time.Duration `yaml:"latency"`
	// MaxWatchDescriptors caps the number of simultaneously registered
	// watches on platforms with a fixed per-process ceiling (Linux). Zero
	// means unlimited.
	MaxWatchDescriptors int `yaml:"maxWatchDescriptors"`
	// LogLevel selects the verbosity of internal diagnostic logging.
	LogLevel logging.Level `yaml:"logLevel"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Configuration's LogLevel
// field, accepting the same names logging.NameToLevel understands.
func (c *Configuration) UnmarshalYAML(node *yaml.Node) error {
	// Alias avoids infinite recursion into this same UnmarshalYAML method.
	type alias struct {
		Roots               []Root   `yaml:"roots"`
		Ignore              []string `yaml:"ignore"`
		Latency             string   `yaml:"latency"`
		MaxWatchDescriptors int      `yaml:"maxWatchDescriptors"`
		LogLevel            string   `yaml:"logLevel"`
	}
	var raw alias
	if err := node.Decode(&raw); err != nil {
		return err
	}

	c.Roots = raw.Roots
	c.Ignore = raw.Ignore
	c.MaxWatchDescriptors = raw.MaxWatchDescriptors

	if raw.Latency != "" {
		duration, err := time.ParseDuration(raw.Latency)
		if err != nil {
			return errors.Wrap(err, "invalid latency specification")
		}
		c.Latency = duration
	}

	if raw.LogLevel != "" {
		level, ok := logging.NameToLevel(raw.LogLevel)
		if !ok {
			return errors.Errorf("invalid log level specification: %s", raw.LogLevel)
		}
		c.LogLevel = level
	} else {
		c.LogLevel = logging.LevelInfo
	}

	return nil
}

// Load reads and decodes a YAML configuration file at path, then applies any
// WATCHKIT_-prefixed environment variable overrides found in a .env file in
// the current working directory (if present) or the process environment.
func Load(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read configuration file")
	}

	config := &Configuration{Latency: 10 * time.Millisecond, LogLevel: logging.LevelInfo}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration file")
	}

	applyEnvironmentOverrides(config)

	return config, nil
}

// applyEnvironmentOverrides loads a .env file (if one exists in the current
// directory) via godotenv, then lets a handful of WATCHKIT_ environment
// variables override the corresponding configuration fields, so a deployment
// can tweak verbosity or latency without editing the checked-in YAML.
func applyEnvironmentOverrides(config *Configuration) {
	_ = godotenv.Load()

	if value := os.Getenv("WATCHKIT_LOG_LEVEL"); value != "" {
		if level, ok := logging.NameToLevel(value); ok {
			config.LogLevel = level
		}
	}
	if value := os.Getenv("WATCHKIT_LATENCY"); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			config.Latency = duration
		}
	}
	if value := os.Getenv("WATCHKIT_MAX_WATCH_DESCRIPTORS"); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			config.MaxWatchDescriptors = n
		}
	}
}

// GlobalIgnorePatterns returns the top-level Ignore list, which applies
// across every watched root. It does not include any root's own Ignore
// patterns; see RootIgnorePatterns for those.
func (c *Configuration) GlobalIgnorePatterns() []string {
	return append([]string{}, c.Ignore...)
}

// RootIgnorePatterns returns each root's own Ignore patterns, keyed by its
// Path, for callers that need to scope a compiled Filter to the root it was
// configured against (watch.CompileRootIgnorePatterns) rather than applying
// it across every watched root.
func (c *Configuration) RootIgnorePatterns() map[string][]string {
	patterns := make(map[string][]string, len(c.Roots))
	for _, root := range c.Roots {
		if len(root.Ignore) > 0 {
			patterns[root.Path] = append([]string{}, root.Ignore...)
		}
	}
	return patterns
}
