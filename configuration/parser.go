package configuration

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// overlayEnv walks cfg's exported fields by their yaml tag and
// overrides any scalar whose environment variable
// "<prefix>_<SECTION>_<FIELD>..." is set, reflecting the teacher's
// parser.go reflect-based overlay (NewParser/Parse's env-variable
// walk) down to this system's narrower field set: string, int, bool,
// and time.Duration leaves.
func overlayEnv(cfg *Configuration, prefix string) error {
	return walk(prefix, reflect.ValueOf(cfg).Elem())
}

func walk(envPrefix string, v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		name := yamlName(field)
		if name == "-" {
			continue
		}
		key := envPrefix + "_" + strings.ToUpper(name)
		fv := v.Field(i)

		switch fv.Kind() {
		case reflect.Struct:
			if err := walk(key, fv); err != nil {
				return err
			}
			continue
		}

		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setScalar(fv, raw); err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
	}
	return nil
}

func setScalar(fv reflect.Value, raw string) error {
	if fv.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}

	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s for environment overlay", fv.Kind())
	}
	return nil
}

func yamlName(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" {
		return field.Name
	}
	name := strings.Split(tag, ",")[0]
	if name == "" {
		return field.Name
	}
	return name
}
