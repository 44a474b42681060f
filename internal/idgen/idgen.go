// Package idgen generates plan-local placeholder keys for rules that do not
// exist remotely yet.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// PlaceholderPrefix marks a key that was never assigned by the provider.
const PlaceholderPrefix = "new-"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	length   = 12
)

// Placeholder returns a fresh unique key for a pending create.
func Placeholder() (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return PlaceholderPrefix + id, nil
}

// IsPlaceholder reports whether key came from Placeholder.
func IsPlaceholder(key string) bool {
	return len(key) == len(PlaceholderPrefix)+length && key[:len(PlaceholderPrefix)] == PlaceholderPrefix
}
