// Package config reads configuration from the environment. Every mcpship
// binary is configured through environment variables only; LoadShipConfig
// gathers the service settings into one struct and the typed getters here
// supply defaults for anything left unset.
package config

import (
	"log"
	"os"
	"strconv"
)

// GetString returns the value of key, or fallback when the variable is unset.
func GetString(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetInt returns key parsed as an integer. Unset or unparseable values yield
// the fallback; a bad value is logged rather than fatal.
func GetInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}

// GetBool returns key parsed as a boolean, accepting the strconv.ParseBool
// forms. Unset or unparseable values yield the fallback.
func GetBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			log.Printf("invalid value for %s: %v", key, err)
			return fallback
		}
		return parsed
	}
	return fallback
}
