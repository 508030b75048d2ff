// Package config handles the global citematch configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// MatchOverrides are optional pipeline parameter overrides. Zero values mean
// "use the default".
type MatchOverrides struct {
	TopK               int     `yaml:"top_k,omitempty"`
	AutoMatchThreshold float64 `yaml:"auto_match_threshold,omitempty"`
	AutoMatchGap       float64 `yaml:"auto_match_gap,omitempty"`
	NeedsLLMThreshold  float64 `yaml:"needs_llm_threshold,omitempty"`
	YearBoost          float64 `yaml:"year_boost,omitempty"`
	AuthorBoost        float64 `yaml:"author_boost,omitempty"`
}

// GlobalConfig represents configuration stored in
// ~/.config/citematch/config.yml.
type GlobalConfig struct {
	ZoteroEndpoint string         `yaml:"zotero_endpoint,omitempty"`
	LibraryCache   string         `yaml:"library_cache,omitempty"`
	Match          MatchOverrides `yaml:"match,omitempty"`
}

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "citematch"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"
)

// globalConfigCache caches the loaded global config.
var globalConfigCache *GlobalConfig

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/citematch/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// LoadGlobalConfig loads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func LoadGlobalConfig() (*GlobalConfig, error) {
	if globalConfigCache != nil {
		return globalConfigCache, nil
	}

	path := GlobalConfigPath()
	if path == "" {
		return &GlobalConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &GlobalConfig{}, nil
		}
		return nil, fmt.Errorf("reading global config: %w", err)
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing global config: %w", err)
	}

	if cfg.LibraryCache != "" {
		cfg.LibraryCache = ExpandTilde(cfg.LibraryCache)
	}

	globalConfigCache = &cfg
	return &cfg, nil
}

// ResetGlobalConfigCache clears the cached config (for tests).
func ResetGlobalConfigCache() {
	globalConfigCache = nil
}

// ExpandTilde expands a leading ~ to the user's home directory.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
