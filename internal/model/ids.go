package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Prefixes of generated identifiers.
const (
	RunIDPrefix        = "run"
	NodeResultIDPrefix = "nr"
	MutationIDPrefix   = "mut"
)

// NewID returns prefix + "_" + the first 8 hex characters of a random UUID.
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

// ErrInvalidID is wrapped by every ValidateID failure.
var ErrInvalidID = errors.New("invalid id")

// ValidateID checks that an identifier is safe to use as a file name inside
// the workspace. IDs must be 1-255 ASCII characters: alphanumeric, dots,
// hyphens, underscores, and @ signs, and may not be "." or "..".
func ValidateID(field, id string) error {
	if len(id) == 0 {
		return fmt.Errorf("%w: %s is required", ErrInvalidID, field)
	}
	if len(id) > 255 {
		return fmt.Errorf("%w: %s must be at most 255 characters", ErrInvalidID, field)
	}
	if id == "." || id == ".." {
		return fmt.Errorf("%w: %s %q is reserved", ErrInvalidID, field, id)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') &&
			c != '.' && c != '-' && c != '_' && c != '@' {
			return fmt.Errorf("%w: %s contains invalid character at position %d: %q", ErrInvalidID, field, i, c)
		}
	}
	return nil
}
