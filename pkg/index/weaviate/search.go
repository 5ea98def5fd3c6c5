package weaviate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"github.com/aurodev/usergrid/pkg/index"
)

// Search runs one page of an edge-scoped candidate query.
func (x *Index) Search(ctx context.Context, req index.SearchRequest) (index.CandidateResults, error) {
	if err := x.analyze(req); err != nil {
		return index.CandidateResults{}, err
	}
	rendered := x.render(req)
	if req.AnalyzeOnly {
		return index.CandidateResults{Query: rendered}, nil
	}

	if err := x.wait(ctx); err != nil {
		return index.CandidateResults{}, err
	}

	fields := []graphql.Field{
		{Name: "entityId"},
		{Name: "entityVersion"},
		{Name: "_additional { id score }"},
	}
	builder := x.client.GraphQL().Get().
		WithClassName(x.class).
		WithFields(fields...).
		WithWhere(x.where(req)).
		WithLimit(req.Limit).
		WithOffset(req.Offset)
	if req.Query != "" {
		builder = builder.WithBM25(x.client.GraphQL().Bm25ArgBuilder().WithQuery(req.Query))
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return index.CandidateResults{}, fmt.Errorf("weaviate: search: %w", err)
	}
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Message
		if isRejection(msg) {
			return index.CandidateResults{}, index.Rejected(msg)
		}
		return index.CandidateResults{}, fmt.Errorf("weaviate: search: %s", msg)
	}

	out := index.CandidateResults{}
	if req.ReturnQuery {
		out.Query = rendered
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return out, nil
	}
	objects, ok := data[x.class].([]interface{})
	if !ok {
		return out, nil
	}

	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		cand := index.CandidateResult{}
		if s, ok := m["entityId"].(string); ok {
			cand.ID = s
		}
		if s, ok := m["entityVersion"].(string); ok {
			if v, err := uuid.Parse(s); err == nil {
				cand.Version = v
			}
		}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			cand.Score = parseScore(add["score"])
		}
		out.Candidates = append(out.Candidates, cand)
	}
	return out, nil
}

// isRejection classifies a server-side graphql error: parse and
// validation failures are query defects, everything else is an index
// fault.
func isRejection(msg string) bool {
	m := strings.ToLower(msg)
	for _, s := range []string{
		"syntax error",
		"cannot query field",
		"unknown argument",
		"invalid 'where' filter",
		"parse",
	} {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

// analyze rejects queries the instance should never see. Matches via
// index.ErrQueryRejected so callers can short-circuit cleanly.
func (x *Index) analyze(req index.SearchRequest) error {
	if req.Limit <= 0 {
		return index.Rejected("non-positive limit")
	}
	if req.Offset < 0 {
		return index.Rejected("negative offset")
	}
	if req.Offset+req.Limit > x.maxScan {
		return index.Rejected(fmt.Sprintf("scan depth %d exceeds maximum %d", req.Offset+req.Limit, x.maxScan))
	}
	for _, t := range req.Types.Types {
		if t == "" {
			return index.Rejected("empty search type")
		}
	}
	return nil
}

func (x *Index) where(req index.SearchRequest) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().WithPath([]string{"edgeNode"}).WithOperator(filters.Equal).WithValueString(req.Edge.Node.String()),
		filters.Where().WithPath([]string{"edgeName"}).WithOperator(filters.Equal).WithValueString(req.Edge.Name),
		filters.Where().WithPath([]string{"edgeDirection"}).WithOperator(filters.Equal).WithValueString(directionValue(req.Edge.Direction)),
	}
	if len(req.Types.Types) > 0 {
		typeOps := make([]*filters.WhereBuilder, 0, len(req.Types.Types))
		for _, t := range req.Types.Types {
			typeOps = append(typeOps, filters.Where().WithPath([]string{"entityType"}).WithOperator(filters.Equal).WithValueString(t))
		}
		operands = append(operands, filters.Where().WithOperator(filters.Or).WithOperands(typeOps))
	}
	return filters.Where().WithOperator(filters.And).WithOperands(operands)
}

func (x *Index) render(req index.SearchRequest) string {
	return fmt.Sprintf("class=%s node=%s edge=%s dir=%s types=%v bm25=%q limit=%d offset=%d",
		x.class, req.Edge.Node.String(), req.Edge.Name, directionValue(req.Edge.Direction),
		req.Types.Types, req.Query, req.Limit, req.Offset)
}

func directionValue(d index.Direction) string {
	if d == index.ToTarget {
		return "tgt"
	}
	return "src"
}

// weaviate returns BM25 scores as strings in _additional.
func parseScore(v interface{}) float64 {
	switch s := v.(type) {
	case string:
		f, _ := strconv.ParseFloat(s, 64)
		return f
	case float64:
		return s
	}
	return 0
}
