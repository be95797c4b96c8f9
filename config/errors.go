package config

import "errors"

// Static errors for configuration package
var (
	ErrConfigNil                  = errors.New("config cannot be nil")
	ErrConfigNotPointer           = errors.New("config must be a pointer")
	ErrConfigNotStruct            = errors.New("config must be a struct")
	ErrConfigRequiredFieldMissing = errors.New("required config field missing")
	ErrUnsupportedTypeForDefault  = errors.New("unsupported type for default value")
	ErrInvalidConfig              = errors.New("invalid config")
	ErrInvalidInitOption          = errors.New("invalid init option")
)
