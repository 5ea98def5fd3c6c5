// Package index defines the boundary to the external search index: the
// query surface the pipeline's search stage drives, and the candidate
// results it gets back. Concrete backends live in subpackages.
package index

import (
	"context"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/models"
)

// Direction of a search edge relative to its node.
type Direction int

const (
	// FromSource searches entities the node points at.
	FromSource Direction = iota
	// ToTarget searches entities pointing at the node.
	ToTarget
)

// SearchEdge names the indexed edge a search runs over: a node, an edge
// name, and which side of the edge the node sits on.
type SearchEdge struct {
	Node      models.Id
	Name      string
	Direction Direction
}

// SearchTypes restricts a search to entity types. Empty means all.
type SearchTypes struct {
	Types []string
}

// SearchRequest is one paged query against the index.
type SearchRequest struct {
	Edge   SearchEdge
	Types  SearchTypes
	Query  string
	Limit  int
	Offset int
	// PropertyTypes hints field types for sorting; passed explicitly so
	// the index never reads process-wide schema state.
	PropertyTypes map[string]string
	// AnalyzeOnly asks the index to validate the query without running it.
	AnalyzeOnly bool
	// ReturnQuery asks the index to include the backend query it built.
	ReturnQuery bool
}

// CandidateResult points at one indexed entity version. ID is the
// entity's rendered id (<type>:<uuid>), as stored in the index.
type CandidateResult struct {
	ID      string
	Version uuid.UUID
	Score   float64
}

// SelectFieldMapping projects an indexed field name onto a response
// field name.
type SelectFieldMapping struct {
	Source string
	Target string
}

// CandidateResults is one ordered result page plus its projections.
type CandidateResults struct {
	Candidates    []CandidateResult
	FieldMappings []SelectFieldMapping
	// Query is the backend query string, set when ReturnQuery was asked.
	Query string
}

// Candidate is what the search stage emits downstream: a ranked
// reference plus the edge it was found on and the field projections in
// effect. Consumed by entity-hydration stages.
type Candidate struct {
	Result        CandidateResult
	Edge          SearchEdge
	FieldMappings []SelectFieldMapping
}

// SearchIndex executes paged, ranked queries over indexed entities.
type SearchIndex interface {
	Search(ctx context.Context, req SearchRequest) (CandidateResults, error)
}
