package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the Docker *_FILE convention. When
// name_FILE is set the trimmed file contents win; otherwise the value of
// name is returned, which may be empty.
func ResolveSecret(name string) (string, error) {
	fileVar := name + "_FILE"
	path := os.Getenv(fileVar)
	if path == "" {
		return os.Getenv(name), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileVar, path, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Env returns the value of key, or def when it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
