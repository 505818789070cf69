package config

import (
	"errors"
	"flag"
	"os"

	"github.com/coretime-tools/coretime-purchaser/internal/lib"
	"github.com/go-playground/validator/v10"
	"github.com/omeid/uconfig/flat"
)

const (
	TagEnv  = "env"
	TagFlag = "flag"
	TagDesc = "desc"
)

var (
	ErrFlagParse        = errors.New("cannot parse flag")
	ErrConfigInvalid    = errors.New("invalid config struct")
	ErrConfigValidation = errors.New("config validation error")
)

// LoadConfig fills cfg from environment variables and command line flags
// (flags override env) and validates the result. flagArgs must contain only
// flag-style arguments; positional arguments are handled by the caller.
func LoadConfig(cfg interface{}, flagArgs []string) error {
	// recursively iterates over each field of the nested struct
	fields, err := flat.View(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigInvalid, err)
	}

	flagset := flag.NewFlagSet("", flag.ContinueOnError)

	for _, field := range fields {
		envName, ok := field.Tag(TagEnv)
		if !ok {
			continue
		}

		envValue := os.Getenv(envName)
		_ = field.Set(envValue)

		flagName, ok := field.Tag(TagFlag)
		if !ok {
			continue
		}

		flagDesc, _ := field.Tag(TagDesc)

		// writes flag value to variable
		flagset.Var(field, flagName, flagDesc)
	}

	err = flagset.Parse(flagArgs)
	if err != nil {
		return lib.WrapError(ErrFlagParse, err)
	}

	if s, ok := cfg.(interface{ SetDefaults() }); ok {
		s.SetDefaults()
	}

	err = validator.New().Struct(cfg)
	if err != nil {
		return lib.WrapError(ErrConfigValidation, err)
	}

	return nil
}
