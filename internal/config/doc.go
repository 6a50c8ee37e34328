// Package config provides the configuration model and loading for the
// QOTD server.
//
// Values are layered from lowest to highest precedence:
//
//   - built-in defaults (DefaultConfig)
//   - an optional YAML file with ${VAR:-default} substitution
//   - an optional .env file
//   - QOTD_* environment variables
//
// Numeric values outside their documented range are not rejected. They
// are replaced by the default and a warning is logged, so a running
// server never refuses to start over a malformed rate or burst.
//
// # Configuration Loading
//
//	cfg, err := config.Load(config.LoadOptions{
//	    ConfigFile: "qotd.yaml",
//	    EnvFile:    ".env",
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
package config
