package main

import "github.com/vyrodovalexey/qotd/internal/config"

// getEnvOrDefault returns the variable resolved through lookup or a default.
func getEnvOrDefault(lookup config.LookupFunc, key, defaultValue string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return defaultValue
}
