// Package config loads the chainscope runtime configuration from a YAML file,
// an optional .env file and environment variables, in that order of
// precedence from lowest to highest. The resulting Config is built once in
// main and passed explicitly to every component.
package config
