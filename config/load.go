// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when it exists and no env files are named.
const DefaultEnvFile = ".env"

// ErrInvalidConfig is returned for every missing or invalid variable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Logging configures the root logger.
type Logging struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error off"`
	LogJSON  bool   `env:"LOG_JSON"`
}

// Logger returns a root logger named name.
func (l Logging) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(l.LogLevel),
		JSONFormat: l.LogJSON,
	})
}

// LoadEnvFiles loads the named env files into the process environment
// without overriding variables that are already set.  With no names,
// DefaultEnvFile is loaded if it exists.
func LoadEnvFiles(files ...string) error {
	const op = "config.LoadEnvFiles"
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		files = []string{DefaultEnvFile}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("%s: unable to load %q: %w", op, f, err)
		}
	}
	return nil
}

// parse fills target from environ, or from the process environment when
// environ is nil, and validates it.
func parse(target interface{}, environ map[string]string) error {
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	var merr *multierror.Error
	if err := env.ParseWithOptions(target, opts); err != nil {
		merr = multierror.Append(merr, fmt.Errorf("%v: %w", err, ErrInvalidConfig))
	}
	if err := validate(target); err != nil {
		merr = multierror.Append(merr, err)
	}
	return merr.ErrorOrNil()
}

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their variable name
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("env"), ",")
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validate checks target's validate tags and returns every failure.
func validate(target interface{}) error {
	err := structValidator.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%v: %w", err, ErrInvalidConfig)
	}
	var merr *multierror.Error
	for _, fe := range fieldErrs {
		merr = multierror.Append(merr, fmt.Errorf("%s: %s: %w", fe.Field(), describe(fe), ErrInvalidConfig))
	}
	return merr.ErrorOrNil()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return fmt.Sprintf("is required when %s", strings.Replace(fe.Param(), " ", " is ", 1))
	case "url":
		return fmt.Sprintf("%q is not a url", fe.Value())
	case "oneof":
		return fmt.Sprintf("%q is not one of %s", fe.Value(), fe.Param())
	case "file":
		return fmt.Sprintf("%q is not a readable file", fe.Value())
	case "min":
		return fmt.Sprintf("must be at least %s long", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "len=16|len=24|len=32":
		return "must be 16, 24 or 32 bytes long"
	default:
		return fmt.Sprintf("failed the %q check", fe.Tag())
	}
}
