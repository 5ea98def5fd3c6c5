package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Edge is a directed, typed, versioned relationship between two nodes.
// Immutable once written; a logical update is a new Edge with a newer
// version between the same (source, target, type).
type Edge struct {
	Source  Id        `json:"source"`
	Target  Id        `json:"target"`
	Type    string    `json:"type"`
	Version uuid.UUID `json:"version"`
}

// NewEdge creates an edge with a fresh time-ordered version.
func NewEdge(source Id, edgeType string, target Id) Edge {
	return Edge{Source: source, Target: target, Type: edgeType, Version: uuid.Must(uuid.NewV7())}
}

// Validate checks all edge fields are set and the type has no reserved chars.
func (e Edge) Validate() error {
	if err := e.Source.Validate(); err != nil {
		return fmt.Errorf("edge source: %w", err)
	}
	if err := e.Target.Validate(); err != nil {
		return fmt.Errorf("edge target: %w", err)
	}
	if strings.TrimSpace(e.Type) == "" {
		return fmt.Errorf("edge: empty type")
	}
	if strings.Contains(e.Type, ":") {
		return fmt.Errorf("edge: type %q contains reserved separator", e.Type)
	}
	if e.Version == uuid.Nil {
		return fmt.Errorf("edge: nil version")
	}
	return nil
}
