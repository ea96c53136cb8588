package models

import (
	"fmt"
	"strings"

	"connection/pkg/platform/sentinel"
)

// NaturalKey identifies a clinician across sources. Either half may be absent
// (empty) but never both.
type NaturalKey struct {
	RegistryID string
	PersonID   string
}

// NewNaturalKey trims both identifiers and builds a key. It does not validate.
func NewNaturalKey(registryID, personID string) NaturalKey {
	return NaturalKey{
		RegistryID: strings.TrimSpace(registryID),
		PersonID:   strings.TrimSpace(personID),
	}
}

// Validate rejects keys with neither identifier present.
func (k NaturalKey) Validate() error {
	if k.RegistryID == "" && k.PersonID == "" {
		return fmt.Errorf("registry id or person id is required: %w", sentinel.ErrInvalidKey)
	}
	return nil
}

// Matches reports whether both halves are equal, absent counting as empty.
func (k NaturalKey) Matches(other NaturalKey) bool {
	return k.RegistryID == other.RegistryID && k.PersonID == other.PersonID
}

// RegistryOnly reports whether the key carries only the regulator identity.
func (k NaturalKey) RegistryOnly() bool {
	return k.RegistryID != "" && k.PersonID == ""
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("registry_id=%q person_id=%q", k.RegistryID, k.PersonID)
}

// LogAttrs returns the key as slog key/value pairs for correlation.
func (k NaturalKey) LogAttrs() []any {
	return []any{"registry_id", k.RegistryID, "person_id", k.PersonID}
}
