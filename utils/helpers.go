package utils

import (
	"fmt"
	"os"
)

// GetEnv returns the environment value for key, or fallback when unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// CreateFolder creates a directory (and parents) if it doesn't exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
