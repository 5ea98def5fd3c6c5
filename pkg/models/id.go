package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Id names a version-independent graph node: an entity type plus a
// time-ordered unique identifier. Immutable once created.
type Id struct {
	Type string    `json:"type"`
	UUID uuid.UUID `json:"uuid"`
}

// NewId mints an Id of the given type with a fresh time-ordered UUID.
func NewId(entityType string) Id {
	return Id{Type: entityType, UUID: uuid.Must(uuid.NewV7())}
}

// String renders the id as <type>:<uuid>.
func (i Id) String() string {
	return i.Type + ":" + i.UUID.String()
}

// IsZero reports whether the id is unset.
func (i Id) IsZero() bool {
	return i.Type == "" && i.UUID == uuid.Nil
}

// Validate checks the id has a non-empty type and a non-nil uuid.
func (i Id) Validate() error {
	if strings.TrimSpace(i.Type) == "" {
		return fmt.Errorf("id: empty type")
	}
	if strings.Contains(i.Type, ":") {
		return fmt.Errorf("id: type %q contains reserved separator", i.Type)
	}
	if i.UUID == uuid.Nil {
		return fmt.Errorf("id: nil uuid")
	}
	return nil
}

// ParseId inverts String.
func ParseId(s string) (Id, error) {
	sep := strings.LastIndex(s, ":")
	if sep <= 0 || sep == len(s)-1 {
		return Id{}, fmt.Errorf("parse id %q: want <type>:<uuid>", s)
	}
	u, err := uuid.Parse(s[sep+1:])
	if err != nil {
		return Id{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	id := Id{Type: s[:sep], UUID: u}
	if err := id.Validate(); err != nil {
		return Id{}, err
	}
	return id, nil
}
