package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GoCodeAlone/watchreload/feeders"
)

// DefaultFileNames are looked up by Discover, in order.
var DefaultFileNames = []string{"watchreload.yaml", "watchreload.yml", "watchreload.toml", "watchreload.json"}

// DotEnvFileName is read from the directory of the config file (or the
// working directory) when present.
const DotEnvFileName = ".env"

// Load builds a Config from defaults, the file at path (optional), a .env
// file next to it and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := ProcessDefaults(cfg); err != nil {
		return nil, err
	}

	sources := make([]feeders.Feeder, 0, 3)
	dir := "."
	if path != "" {
		fileFeeder, err := feeders.ForFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, fileFeeder)
		dir = filepath.Dir(path)
	}
	if dotEnv := filepath.Join(dir, DotEnvFileName); fileExists(dotEnv) {
		sources = append(sources, feeders.NewDotEnvFeeder(dotEnv, EnvPrefix, ""))
	}
	sources = append(sources, feeders.NewAffixedEnvFeeder(EnvPrefix, ""))

	for _, source := range sources {
		if err := source.Feed(cfg); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	if err := ValidateRequired(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Discover returns the first default config file present in dir, or "".
func Discover(dir string) string {
	for _, name := range DefaultFileNames {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
