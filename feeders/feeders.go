// Package feeders reads configuration files and environment variables into
// configuration structs. File feeders are chosen by extension.
package feeders

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(target interface{}) error
}

// ForFile returns the feeder matching the extension of path.
func ForFile(path string) (Feeder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}
