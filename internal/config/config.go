// Package config reads user-overridable build settings from the
// .cgrconfig file in the repository root.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config is the .cgrconfig document. Only the graph section is read here.
type Config struct {
	Graph GraphConfig `yaml:"graph"`
}

// GraphConfig holds graph construction settings.
type GraphConfig struct {
	// SkipDirs are extra directory patterns excluded from discovery,
	// added to (not replacing) the built-in skip set.
	SkipDirs []string `yaml:"skip_dirs"`

	// SourceExtensions replaces the default source extension set when
	// non-empty.
	SourceExtensions []string `yaml:"source_extensions"`

	// Resolution selects the symbol resolution mode: "fuzzy" or
	// "precise". Default: fuzzy.
	Resolution string `yaml:"resolution"`

	// GlobalFallback enables the repo-wide name index for otherwise
	// unresolved calls. Default: false.
	GlobalFallback *bool `yaml:"global_fallback"`

	// Workers caps the parallel analysis and resolution workers.
	// Default: GOMAXPROCS.
	Workers *int `yaml:"workers"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{}
}

// Load reads .cgrconfig from the given directory. A missing or invalid
// file yields the defaults.
func Load(dir string) *Config {
	cfg := Default()

	data, err := os.ReadFile(filepath.Join(dir, ".cgrconfig"))
	if err != nil {
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default()
	}
	return cfg
}

// EffectiveResolution returns the configured resolution mode; anything
// but "precise" means fuzzy.
func (c *Config) EffectiveResolution() string {
	if c.Graph.Resolution == "precise" {
		return "precise"
	}
	return "fuzzy"
}

// EffectiveGlobalFallback returns the configured fallback setting, or
// the default (false) if not set.
func (c *Config) EffectiveGlobalFallback() bool {
	if c.Graph.GlobalFallback != nil {
		return *c.Graph.GlobalFallback
	}
	return false
}

// EffectiveWorkers returns the configured worker cap, or the default
// (GOMAXPROCS) if not set or not positive.
func (c *Config) EffectiveWorkers() int {
	if c.Graph.Workers != nil && *c.Graph.Workers > 0 {
		return *c.Graph.Workers
	}
	return runtime.GOMAXPROCS(0)
}
