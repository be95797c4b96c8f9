package feeders

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"
)

// DotEnvFeeder reads a .env file and populates `env` tagged fields from the
// parsed values, with the same affixes as AffixedEnvFeeder. Values are kept
// in memory and never exported to the process environment.
type DotEnvFeeder struct {
	Path   string
	Prefix string
	Suffix string
}

// NewDotEnvFeeder creates a DotEnvFeeder for the .env file at filePath
func NewDotEnvFeeder(filePath, prefix, suffix string) DotEnvFeeder {
	return DotEnvFeeder{Path: filePath, Prefix: prefix, Suffix: suffix}
}

// Feed parses the .env file and populates the provided structure
func (f DotEnvFeeder) Feed(structure interface{}) error {
	vars, err := parseDotEnvFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to parse .env file: %w", err)
	}

	inputType := reflect.TypeOf(structure)
	if inputType == nil || inputType.Kind() != reflect.Ptr || inputType.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	return fillStruct(reflect.ValueOf(structure).Elem(), f.Prefix, f.Suffix, func(name string) (string, bool) {
		value, ok := vars[name]
		return value, ok
	})
}

func parseDotEnvFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		idx := strings.Index(line, "=")
		if idx == -1 {
			return nil, fmt.Errorf("%w at line %d: %s", ErrDotEnvInvalidLineFormat, lineNum, line)
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return vars, nil
}
