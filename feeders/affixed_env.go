package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder is a feeder that reads environment variables with a prefix and/or suffix.
// Fields opt in with an `env` tag; nested structs are walked with the same affixes.
//
// Slices are read as comma separated lists and time.Duration fields accept
// Go duration strings ("30s", "5m").
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed reads environment variables and populates the provided structure
func (f AffixedEnvFeeder) Feed(structure interface{}) error {
	inputType := reflect.TypeOf(structure)
	if inputType != nil {
		if inputType.Kind() == reflect.Ptr {
			if inputType.Elem().Kind() == reflect.Struct {
				return fillStruct(reflect.ValueOf(structure).Elem(), f.Prefix, f.Suffix, os.LookupEnv)
			}
		}
	}

	return ErrEnvInvalidStructure
}

// EnvName returns the variable name an `env` tag maps to.
func (f AffixedEnvFeeder) EnvName(tag string) string {
	return envName(tag, strings.ToUpper(f.Prefix), strings.ToUpper(f.Suffix))
}

// lookupFunc resolves a variable name, like os.LookupEnv.
type lookupFunc func(name string) (string, bool)

// fillStruct sets struct fields from variables resolved by lookup
func fillStruct(rv reflect.Value, prefix, suffix string, lookup lookupFunc) error {
	if prefix == "" && suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}

	prefix = strings.ToUpper(prefix)
	suffix = strings.ToUpper(suffix)

	return processStructFields(rv, prefix, suffix, lookup)
}

// processStructFields iterates through struct fields
func processStructFields(rv reflect.Value, prefix, suffix string, lookup lookupFunc) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if err := processField(field, &fieldType, prefix, suffix, lookup); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

// processField handles a single struct field
func processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string, lookup lookupFunc) error {
	switch field.Kind() {
	case reflect.Struct:
		return processStructFields(field, prefix, suffix, lookup)
	case reflect.Pointer:
		if !field.IsZero() && field.Elem().Kind() == reflect.Struct {
			return processStructFields(field.Elem(), prefix, suffix, lookup)
		}
	default:
		if envTag, exists := fieldType.Tag.Lookup("env"); exists {
			return setFieldFromEnv(field, envTag, prefix, suffix, lookup)
		}
	}

	return nil
}

func envName(tag, prefix, suffix string) string {
	name := strings.ToUpper(tag)
	if prefix != "" {
		name = prefix + "_" + name
	}
	if suffix != "" {
		name = name + "_" + suffix
	}
	return name
}

// setFieldFromEnv sets a field value from a variable
func setFieldFromEnv(field reflect.Value, envTag, prefix, suffix string, lookup lookupFunc) error {
	name := envName(envTag, prefix, suffix)
	envValue, ok := lookup(name)
	if !ok || envValue == "" {
		return nil
	}
	if !field.CanSet() {
		return ErrEnvFieldCannotBeSet
	}

	if field.Kind() == reflect.Slice {
		return setSliceValue(field, name, envValue)
	}
	converted, err := convertValue(envValue, field.Type())
	if err != nil {
		return wrapEnvConvertError(name, field.Type(), err)
	}
	field.Set(converted)
	return nil
}

func setSliceValue(field reflect.Value, name, envValue string) error {
	parts := strings.Split(envValue, ",")
	slice := reflect.MakeSlice(field.Type(), 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		item, err := convertValue(part, field.Type().Elem())
		if err != nil {
			return wrapEnvConvertError(name, field.Type(), err)
		}
		slice = reflect.Append(slice, item)
	}
	field.Set(slice)
	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// convertValue converts a raw string to the target type
func convertValue(raw string, target reflect.Type) (reflect.Value, error) {
	if target == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	}

	value, err := cast.FromType(raw, target)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(value).Convert(target), nil
}
