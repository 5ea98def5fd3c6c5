package models

import "fmt"

// SearchEdgeType pages through the edge types recorded for a node.
// Last is the last type seen on the previous page, empty for the first
// page. Limit bounds one page; zero means the caller wants the default.
type SearchEdgeType struct {
	Node  Id     `json:"node"`
	Last  string `json:"last,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SearchIdType pages through the id types recorded for a node under one
// edge type.
type SearchIdType struct {
	SearchEdgeType
	EdgeType string `json:"edge_type"`
}

func (s SearchEdgeType) Validate() error {
	if err := s.Node.Validate(); err != nil {
		return fmt.Errorf("search: %w", err)
	}
	if s.Limit < 0 {
		return fmt.Errorf("search: negative limit %d", s.Limit)
	}
	return nil
}

func (s SearchIdType) Validate() error {
	if err := s.SearchEdgeType.Validate(); err != nil {
		return err
	}
	if s.EdgeType == "" {
		return fmt.Errorf("search: empty edge type")
	}
	return nil
}
