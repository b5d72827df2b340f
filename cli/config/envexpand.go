// Package config handles YAML config file loading for rebind compress.
package config

import (
	"os"
	"strings"
)

// ExpandEnv replaces $VAR, ${VAR} and ${VAR:-default} references in the
// input with environment variable values, before YAML parsing.
//
// A set, non-empty variable always wins; unset or empty variables fall
// back to the ":-" default when one is given, otherwise to the empty
// string (not an error). Missing required values fail at downstream
// validation (e.g. adapter URL validation).
func ExpandEnv(input string) string {
	return os.Expand(input, func(ref string) string {
		name, fallback, _ := strings.Cut(ref, ":-")
		if v := os.Getenv(name); v != "" {
			return v
		}
		return fallback
	})
}
