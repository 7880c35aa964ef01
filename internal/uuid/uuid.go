// Package uuid generates and validates offline event identifiers (UUID v4).
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ahmed11551/namazpro24/internal/models"
)

// New generates a new UUID v4 string.
func New() string {
	return uuid.New().String()
}

// NewEventID generates the identifier for a freshly appended offline event.
func NewEventID() models.UUID {
	return models.UUID(New())
}

// Parse parses s as a UUID v4 and returns it in canonical lowercase form.
func Parse(s string) (string, error) {
	if len(s) != 36 {
		return "", fmt.Errorf("invalid UUID length %d: %q", len(s), s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid UUID: %w", err)
	}
	if id.Version() != 4 {
		return "", fmt.Errorf("expected UUID v4, got v%d", id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		return "", fmt.Errorf("unexpected UUID variant %s", id.Variant())
	}
	return strings.ToLower(id.String()), nil
}

// IsValid reports whether s is a dashed UUID v4 with RFC 4122 variant bits.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Validate returns an error if s is not a valid UUID v4.
func Validate(s string) error {
	if _, err := Parse(s); err != nil {
		return fmt.Errorf("invalid UUID v4 format: %q", s)
	}
	return nil
}
