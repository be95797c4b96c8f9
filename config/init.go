package config

import (
	"fmt"
	"reflect"

	"github.com/golobby/cast"
)

// ApplyInit merges the options of the server's init command. hmr is always
// reset: a missing or false value turns hot module replacement off. Keys the
// client has no field for land in Extra.
func (c *Config) ApplyInit(data map[string]interface{}) error {
	hmr, err := truthy(data["hmr"])
	if err != nil {
		return fmt.Errorf("%w: hmr: %w", ErrInvalidInitOption, err)
	}
	c.HMR = hmr

	for key, value := range data {
		switch key {
		case "hmr":
		case "logLevel":
			if c.LogLevel, err = stringOption(value); err != nil {
				return fmt.Errorf("%w: logLevel: %w", ErrInvalidInitOption, err)
			}
		case "moduleExtension":
			if c.ModuleExtension, err = stringOption(value); err != nil {
				return fmt.Errorf("%w: moduleExtension: %w", ErrInvalidInitOption, err)
			}
		case "livereload":
			rules, err := stringMap(value)
			if err != nil {
				return fmt.Errorf("%w: livereload: %w", ErrInvalidInitOption, err)
			}
			c.Livereload = rules
		default:
			if c.Extra == nil {
				c.Extra = make(map[string]interface{})
			}
			c.Extra[key] = value
		}
	}
	return c.Validate()
}

func truthy(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case string:
		if v == "" {
			return false, nil
		}
		converted, err := cast.FromType(v, reflect.TypeOf(true))
		if err != nil {
			return false, err
		}
		return converted.(bool), nil
	default:
		return true, nil
	}
}

func stringOption(value interface{}) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

func stringMap(value interface{}) (map[string]string, error) {
	raw, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", value)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %T", k, v)
		}
		out[k] = s
	}
	return out, nil
}
