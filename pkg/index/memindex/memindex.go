// Package memindex is an in-memory SearchIndex with the same paging
// and rejection behavior as the Weaviate adapter. It backs local mode
// and tests, where a deterministic index matters more than relevance.
package memindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/models"
)

// DefaultMaxScanDepth mirrors the Weaviate adapter's bound.
const DefaultMaxScanDepth = 10000

type document struct {
	entity  models.Id
	version uuid.UUID
	edge    index.SearchEdge
	content string
	seq     int
}

// Index holds documents keyed by (entity, edge). Writes replace prior
// versions of the same pair.
type Index struct {
	mu      sync.RWMutex
	docs    map[string]document
	seq     int
	maxScan int
}

// New builds an empty index. maxScan <= 0 keeps DefaultMaxScanDepth.
func New(maxScan int) *Index {
	if maxScan <= 0 {
		maxScan = DefaultMaxScanDepth
	}
	return &Index{docs: make(map[string]document), maxScan: maxScan}
}

func docKey(entity models.Id, edge index.SearchEdge) string {
	return entity.String() + "\x00" + edge.Node.String() + "\x00" + edge.Name + "\x00" + string(rune('0'+int(edge.Direction)))
}

// Add indexes an entity under an edge, replacing any prior document
// for the same pair.
func (x *Index) Add(entity models.Id, version uuid.UUID, edge index.SearchEdge, content string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.seq++
	x.docs[docKey(entity, edge)] = document{entity: entity, version: version, edge: edge, content: content, seq: x.seq}
}

// Remove drops the document for one (entity, edge) pair.
func (x *Index) Remove(entity models.Id, edge index.SearchEdge) {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, docKey(entity, edge))
}

// RemoveEntity drops an entity's documents across all edges.
func (x *Index) RemoveEntity(entity models.Id) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for k, d := range x.docs {
		if d.entity == entity {
			delete(x.docs, k)
		}
	}
}

// Search matches documents on the requested edge and types, filters on
// a substring of content when a query is given, and pages by insertion
// order. Results are stable across calls, so offset paging is exact.
func (x *Index) Search(ctx context.Context, req index.SearchRequest) (index.CandidateResults, error) {
	if err := ctx.Err(); err != nil {
		return index.CandidateResults{}, err
	}
	if req.Limit <= 0 {
		return index.CandidateResults{}, index.Rejected("non-positive limit")
	}
	if req.Offset < 0 {
		return index.CandidateResults{}, index.Rejected("negative offset")
	}
	if req.Offset+req.Limit > x.maxScan {
		return index.CandidateResults{}, index.Rejected(fmt.Sprintf("scan depth %d exceeds maximum %d", req.Offset+req.Limit, x.maxScan))
	}

	rendered := ""
	if req.AnalyzeOnly || req.ReturnQuery {
		rendered = fmt.Sprintf("mem node=%s edge=%s types=%v query=%q limit=%d offset=%d",
			req.Edge.Node.String(), req.Edge.Name, req.Types.Types, req.Query, req.Limit, req.Offset)
	}
	if req.AnalyzeOnly {
		return index.CandidateResults{Query: rendered}, nil
	}

	x.mu.RLock()
	var matched []document
	for _, d := range x.docs {
		if d.edge.Node != req.Edge.Node || d.edge.Name != req.Edge.Name || d.edge.Direction != req.Edge.Direction {
			continue
		}
		if len(req.Types.Types) > 0 && !containsType(req.Types.Types, d.entity.Type) {
			continue
		}
		if req.Query != "" && !strings.Contains(strings.ToLower(d.content), strings.ToLower(req.Query)) {
			continue
		}
		matched = append(matched, d)
	}
	x.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	out := index.CandidateResults{Query: rendered}
	for i := req.Offset; i < len(matched) && len(out.Candidates) < req.Limit; i++ {
		d := matched[i]
		out.Candidates = append(out.Candidates, index.CandidateResult{
			ID:      d.entity.String(),
			Version: d.version,
			Score:   1,
		})
	}
	return out, nil
}

func containsType(types []string, t string) bool {
	for _, v := range types {
		if v == t {
			return true
		}
	}
	return false
}
