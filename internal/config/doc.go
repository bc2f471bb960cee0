// Package config loads the meteorited configuration from a JSON or YAML file,
// METEORITE_* environment variables and built-in defaults, in increasing
// order of precedence: defaults < file < environment.
package config
