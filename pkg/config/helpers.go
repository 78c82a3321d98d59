package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dara-forge/forge/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// SetValue sets a setting by its YAML key. Nested keys use dots, for
// example hooks.classifier_script. Durations accept time.ParseDuration
// syntax and lists are comma separated.
func (c *Config) SetValue(key, value string) error {
	field, ok := settingField(reflect.ValueOf(&c.Settings).Elem(), key)
	if !ok {
		return errors.Wrap(errors.ErrUnknownConfigKey, key)
	}
	if err := setField(field, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// GetValue returns a setting by its YAML key.
func (c *Config) GetValue(key string) (string, error) {
	field, ok := settingField(reflect.ValueOf(c.Settings), key)
	if !ok {
		return "", errors.Wrap(errors.ErrUnknownConfigKey, key)
	}
	return formatField(field), nil
}

// ToMap flattens the settings into key/value strings for display.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	flatten(reflect.ValueOf(c.Settings), "", result)
	return result
}

func yamlKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func settingField(v reflect.Value, key string) (reflect.Value, bool) {
	head, rest, nested := strings.Cut(key, ".")
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		if yamlKey(t.Field(i)) != head {
			continue
		}
		field := v.Field(i)
		if nested {
			if field.Kind() != reflect.Struct {
				return reflect.Value{}, false
			}
			return settingField(field, rest)
		}
		if field.Kind() == reflect.Struct {
			return reflect.Value{}, false
		}
		return field, true
	}
	return reflect.Value{}, false
}

func flatten(v reflect.Value, prefix string, out map[string]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		key := yamlKey(t.Field(i))
		if key == "" {
			continue
		}
		if v.Field(i).Kind() == reflect.Struct {
			flatten(v.Field(i), prefix+key+".", out)
			continue
		}
		out[prefix+key] = formatField(v.Field(i))
	}
}

func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.Int {
			return fmt.Errorf("unsupported list type %s", field.Type())
		}
		var ints []int
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return err
			}
			ints = append(ints, n)
		}
		field.Set(reflect.ValueOf(ints))
	default:
		return fmt.Errorf("unsupported setting type %s", field.Type())
	}
	return nil
}

func formatField(field reflect.Value) string {
	if field.Type() == durationType {
		return time.Duration(field.Int()).String()
	}

	switch field.Kind() {
	case reflect.String:
		return field.String()
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Slice:
		parts := make([]string, field.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(field.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", field.Interface())
	}
}
