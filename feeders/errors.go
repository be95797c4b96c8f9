package feeders

import (
	"errors"
	"fmt"
)

// Static error definitions for feeders
var (
	ErrUnsupportedFormat = errors.New("unsupported config file format")
	ErrDecode            = errors.New("cannot decode config file")
	ErrUnknownKeys       = errors.New("unknown config keys")
)

// Env feeder errors
var (
	// ErrEnvInvalidStructure indicates that the provided structure is not valid for environment variable processing
	ErrEnvInvalidStructure = errors.New("env: invalid structure")
	// ErrEnvEmptyPrefixAndSuffix indicates that both prefix and suffix cannot be empty
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvFieldCannotBeSet     = errors.New("env: field cannot be set")
)

// Dot env feeder errors
var (
	ErrDotEnvInvalidLineFormat = errors.New("invalid .env line format")
)

func wrapDecodeError(format, path string, err error) error {
	return fmt.Errorf("%w (%s) %s: %w", ErrDecode, format, path, err)
}

func wrapEnvConvertError(envName string, fieldType fmt.Stringer, err error) error {
	return fmt.Errorf("cannot convert %s to type %v: %w", envName, fieldType, err)
}
