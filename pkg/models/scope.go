package models

import "fmt"

// ApplicationScope is the tenant boundary. Every index row and query is
// partitioned by it; no operation crosses scopes.
type ApplicationScope struct {
	Application Id `json:"application"`
}

// NewApplicationScope wraps an application id as a scope.
func NewApplicationScope(application Id) ApplicationScope {
	return ApplicationScope{Application: application}
}

func (s ApplicationScope) Validate() error {
	if err := s.Application.Validate(); err != nil {
		return fmt.Errorf("scope: %w", err)
	}
	return nil
}
