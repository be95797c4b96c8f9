package feeders

import (
	"encoding/json"
	"fmt"
	"os"
)

// JSONFeeder is a feeder that reads JSON files. Unknown keys are rejected.
type JSONFeeder struct {
	Path string
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed decodes the file into target, keeping fields the file does not set.
func (j JSONFeeder) Feed(target interface{}) error {
	file, err := os.Open(j.Path)
	if err != nil {
		return fmt.Errorf("failed to read JSON: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return wrapDecodeError("json", j.Path, err)
	}
	return nil
}
