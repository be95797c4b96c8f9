package feeders

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder is a feeder that reads YAML files. Unknown keys are rejected.
type YamlFeeder struct {
	Path string
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the file into target, keeping fields the file does not set.
func (y YamlFeeder) Feed(target interface{}) error {
	content, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("failed to read YAML: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			// empty document
			return nil
		}
		return wrapDecodeError("yaml", y.Path, err)
	}
	return nil
}
