package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns the environment variable value or a default. An empty value counts as unset.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// lookupParsed parses key with parse. Unset keys and malformed values yield
// defaultValue; a malformed value is logged so a typo does not go unnoticed.
func lookupParsed[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := parse(value)
	if err != nil {
		slog.Warn("Ignoring malformed setting", "key", key, "value", value, "default", defaultValue, "error", err)
		return defaultValue
	}
	return parsed
}

// GetIntEnv returns an integer environment variable or a default.
func GetIntEnv(key string, defaultValue int) int {
	return lookupParsed(key, defaultValue, strconv.Atoi)
}

// GetDurationEnv returns a duration environment variable ("30s", "15m") or a default.
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	return lookupParsed(key, defaultValue, time.ParseDuration)
}

// GetBoolEnv returns a boolean environment variable or a default.
func GetBoolEnv(key string, defaultValue bool) bool {
	return lookupParsed(key, defaultValue, strconv.ParseBool)
}

// GetListEnv returns a comma-separated environment variable as a slice, skipping empty items.
func GetListEnv(key string, defaultValue []string) []string {
	return lookupParsed(key, defaultValue, func(value string) ([]string, error) {
		var out []string
		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out, nil
	})
}

// GetSecretFile reads a secret from a mounted file such as /run/secrets/api_key.
// An empty path disables the secret; an unreadable file is logged and treated the same way.
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Secret file unreadable", "path", path, "error", err)
		return ""
	}
	return strings.TrimSpace(string(data))
}
