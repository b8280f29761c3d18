// Package env reads process environment variables with fallbacks for the
// few knobs that sit outside the envconfig-managed configuration.
package env

import (
	"os"
	"strconv"
)

// Get returns the value of key, or fallback when unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Bool parses key as a boolean, returning fallback when unset or malformed.
func Bool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
