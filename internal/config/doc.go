// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// When no file is given, LoadFromEnv reads the flat environment variables
// (SYMBOL, TIMEZONE, POLL_INTERVAL_MS, ...) understood by earlier deployments.
package config
