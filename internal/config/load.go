package config

import (
	"os"

	"github.com/vyrodovalexey/qotd/internal/observability"
	"github.com/vyrodovalexey/qotd/internal/util"
)

// LoadOptions controls where Load reads configuration from.
type LoadOptions struct {
	// ConfigFile is an optional YAML file.
	ConfigFile string
	// EnvFile is an optional .env file. A missing file is ignored.
	EnvFile string
	// Lookup resolves environment variables; nil uses os.LookupEnv.
	Lookup LookupFunc
	Logger observability.Logger
}

// Load builds the effective configuration: defaults, then the YAML file,
// then .env entries and environment variables, then normalization.
func Load(opts LoadOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}

	dotenv, err := ReadDotEnv(opts.EnvFile)
	if err != nil {
		return nil, util.NewConfigErrorWithCause("env_file", "cannot read .env file", err)
	}
	lookup = ChainLookup(lookup, dotenv)

	cfg := DefaultConfig()

	if opts.ConfigFile != "" {
		if err := NewLoader(lookup).LoadFile(opts.ConfigFile, cfg); err != nil {
			return nil, util.NewConfigErrorWithCause("config_file", "cannot load configuration file", err)
		}
	}

	ApplyEnv(cfg, lookup, logger)
	cfg.Normalize(logger)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
