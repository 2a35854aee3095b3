package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "INKWELL_"

// LookupFunc looks up an environment variable.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto cfg. Each option maps to
// EnvPrefix plus its path in upper snake case, so cache.maxEntries is read
// from INKWELL_CACHE_MAX_ENTRIES. Unparsable values are skipped with a
// warning. A nil lookup uses os.LookupEnv.
func ApplyEnv(cfg Config, lookup LookupFunc, logger *zap.Logger) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, f := range envFields(reflect.ValueOf(&cfg).Elem(), "") {
		raw, ok := lookup(f.env)
		if !ok {
			continue
		}
		if err := setFromString(f.value, strings.TrimSpace(raw)); err != nil {
			logger.Warn("invalid environment override ignored",
				zap.String("env", f.env),
				zap.String("value", raw),
				zap.Error(err),
			)
		}
	}
	return cfg
}

// EnvNames returns the environment variable for every option.
func EnvNames() []string {
	cfg := Default()
	fields := envFields(reflect.ValueOf(&cfg).Elem(), "")
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.env
	}
	return names
}

type envField struct {
	env   string
	value reflect.Value
}

func envFields(v reflect.Value, prefix string) []envField {
	var out []envField
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		name := strings.SplitN(sf.Tag.Get("toml"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			out = append(out, envFields(fv, prefix+toSnake(name)+"_")...)
			continue
		}
		out = append(out, envField{env: EnvPrefix + prefix + toSnake(name), value: fv})
	}
	return out
}

// toSnake converts maxHistoryEntries to MAX_HISTORY_ENTRIES.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) && i > 0 {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

func setFromString(v reflect.Value, s string) error {
	switch v.Kind() {
	case reflect.Bool:
		b, err := parseBool(s)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		v.SetFloat(f)
	case reflect.String:
		v.SetString(s)
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
