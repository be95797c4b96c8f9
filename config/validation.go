package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

const (
	// Struct tag keys
	tagDefault  = "default"
	tagRequired = "required"
)

// Validator is implemented by configuration structs that check themselves
// after defaults and overrides were applied.
type Validator interface {
	Validate() error
}

// ProcessDefaults applies `default:"value"` tags to zero fields of cfg.
// Slices take a JSON array:
//
//	type Config struct {
//	    Addr   string   `default:":8080"`
//	    Ignore []string `default:"[\".git/**\"]"`
//	}
func ProcessDefaults(cfg interface{}) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return processStructDefaults(v)
}

func structValue(cfg interface{}) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return reflect.Value{}, ErrConfigNotPointer
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

// processStructDefaults recursively processes struct fields for default values
func processStructDefaults(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			if err := processStructDefaults(field); err != nil {
				return err
			}
			continue
		}

		defaultVal, hasDefault := fieldType.Tag.Lookup(tagDefault)
		if !hasDefault || !field.IsZero() {
			continue
		}

		if err := setDefaultValue(field, defaultVal); err != nil {
			return fmt.Errorf("failed to set default value for %s: %w", fieldType.Name, err)
		}
	}

	return nil
}

// setDefaultValue sets a default value from a string to the proper field type
func setDefaultValue(field reflect.Value, defaultVal string) error {
	if field.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(defaultVal)
		if err != nil {
			return fmt.Errorf("failed to parse duration value: %w", err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.Slice, reflect.Map:
		target := reflect.New(field.Type())
		if err := json.Unmarshal([]byte(defaultVal), target.Interface()); err != nil {
			return fmt.Errorf("failed to unmarshal JSON default: %w", err)
		}
		field.Set(target.Elem())
		return nil
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		value, err := cast.FromType(defaultVal, field.Type())
		if err != nil {
			return fmt.Errorf("failed to parse %s value: %w", field.Kind(), err)
		}
		field.Set(reflect.ValueOf(value).Convert(field.Type()))
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTypeForDefault, field.Kind())
	}
}

// ValidateRequired checks all struct fields with `required:"true"` tag
// and verifies they are not zero/empty values
func ValidateRequired(cfg interface{}) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}

	var missing []string
	validateRequiredFields(v, "", &missing)
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

// validateRequiredFields recursively validates required fields
func validateRequiredFields(v reflect.Value, prefix string, missing *[]string) {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)
		fieldName := fieldType.Name
		if prefix != "" {
			fieldName = prefix + "." + fieldName
		}

		if !field.CanSet() {
			continue
		}

		if field.Kind() == reflect.Struct {
			validateRequiredFields(field, fieldName, missing)
			continue
		}

		if required, ok := fieldType.Tag.Lookup(tagRequired); ok && required == "true" && field.IsZero() {
			*missing = append(*missing, fieldName)
		}
	}
}
