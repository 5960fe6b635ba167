// Package config loads kernel service configuration from environment
// variables, with an optional YAML file overlay.
package config
