package config

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// maxSanitizePasses bounds re-validation after resets.
const maxSanitizePasses = 3

// Validator checks a Config against its struct tags.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator reporting fields by their config names.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// Validate returns the validator errors for cfg, or nil.
func (v *Validator) Validate(cfg Config) error {
	return v.validate.Struct(cfg)
}

// Sanitize resets every invalid field to its default, logging a warning for
// each. It never fails.
func (v *Validator) Sanitize(cfg Config, logger *zap.Logger) Config {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := Default()

	for pass := 0; pass < maxSanitizePasses; pass++ {
		err := v.validate.Struct(cfg)
		if err == nil {
			return cfg
		}

		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			logger.Warn("config validation failed, using defaults", zap.Error(err))
			return def
		}

		// Cross-field rules are checked against corrected values on the
		// next pass.
		plain := 0
		for _, fe := range fieldErrs {
			if !isCrossField(fe.Tag()) {
				plain++
			}
		}

		for _, fe := range fieldErrs {
			var (
				fallback any
				ok       bool
			)
			switch {
			case !isCrossField(fe.Tag()):
				fallback, ok = resetField(&cfg, def, fe.StructNamespace())
			case plain > 0:
				continue
			case fe.Tag() == "ltefield" || fe.Tag() == "gtefield":
				fallback, ok = clampToField(&cfg, fe.StructNamespace(), fe.Param())
			default:
				fallback, ok = resetField(&cfg, def, fe.StructNamespace())
			}
			if !ok {
				continue
			}
			logger.Warn("invalid config value clamped",
				zap.String("field", configPath(fe.Namespace())),
				zap.Any("value", fe.Value()),
				zap.Any("default", fallback),
				zap.String("rule", fe.Tag()),
			)
		}
	}
	return cfg
}

// Sanitize resets every invalid field of cfg to its default.
func Sanitize(cfg Config, logger *zap.Logger) Config {
	return NewValidator().Sanitize(cfg, logger)
}

// resetField copies the field at namespace (e.g. "Config.Cache.MaxEntries")
// from def into cfg and returns the default value.
func resetField(cfg *Config, def Config, namespace string) (any, bool) {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return nil, false
	}

	dst := reflect.ValueOf(cfg).Elem()
	src := reflect.ValueOf(def)
	for _, name := range parts[1:] {
		dst = dst.FieldByName(name)
		src = src.FieldByName(name)
		if !dst.IsValid() || !src.IsValid() {
			return nil, false
		}
	}
	dst.Set(src)
	return src.Interface(), true
}

// clampToField sets the field at namespace to the value of its sibling
// field and returns that value.
func clampToField(cfg *Config, namespace, sibling string) (any, bool) {
	parts := strings.Split(namespace, ".")
	if len(parts) < 2 {
		return nil, false
	}

	parent := reflect.ValueOf(cfg).Elem()
	for _, name := range parts[1 : len(parts)-1] {
		parent = parent.FieldByName(name)
		if !parent.IsValid() {
			return nil, false
		}
	}
	dst := parent.FieldByName(parts[len(parts)-1])
	src := parent.FieldByName(sibling)
	if !dst.IsValid() || !src.IsValid() || dst.Type() != src.Type() {
		return nil, false
	}
	dst.Set(src)
	return src.Interface(), true
}

func isCrossField(tag string) bool {
	return strings.HasSuffix(tag, "field")
}

// configPath strips the root struct name from a validator namespace.
func configPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
