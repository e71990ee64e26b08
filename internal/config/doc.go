// Package config loads the service configuration from an optional
// config.yaml, a .env file and SHORTPLAY_* environment variables, in
// increasing order of precedence, and validates the result.
package config
