package search

import (
	"context"
	"errors"
	"time"

	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/pipeline"
	"github.com/aurodev/usergrid/pkg/pipeline/cursor"
	"github.com/aurodev/usergrid/pkg/telemetry"
)

// CandidateFilter is the pipeline stage that queries the search index
// for each incoming node and streams out individual candidates. Its
// cursor state is the absolute offset of the next unseen result, so a
// resumed traversal re-issues the query and continues where the prior
// page ended.
type CandidateFilter struct {
	Index    index.SearchIndex
	Strategy Strategy

	Query         string
	PropertyTypes map[string]string
	AnalyzeOnly   bool
	ReturnQuery   bool
}

// Run pages through the index one limit-sized request at a time. The
// stream is complete for a node when a page comes back short of the
// limit; a page of exactly limit results costs one further round trip
// that returns empty. The resume offset applies to the first incoming
// node only.
func (f *CandidateFilter) Run(ctx context.Context, sc *pipeline.StageContext, in <-chan pipeline.FilterResult[models.Id], out chan<- pipeline.FilterResult[index.Candidate]) error {
	limit := sc.Limit
	if limit <= 0 {
		limit = 1
	}
	resume := sc.Resume.OffsetOr(0)
	first := true

	for parent := range in {
		offset := 0
		if first {
			offset = resume
			first = false
		}
		edge := f.Strategy.SearchEdgeFor(parent.Value)
		if err := f.searchNode(ctx, sc, parent, edge, offset, limit, out); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return nil
}

func (f *CandidateFilter) searchNode(ctx context.Context, sc *pipeline.StageContext, parent pipeline.FilterResult[models.Id], edge index.SearchEdge, offset, limit int, out chan<- pipeline.FilterResult[index.Candidate]) error {
	req := index.SearchRequest{
		Edge:          edge,
		Types:         f.Strategy.SearchTypes(),
		Query:         f.Query,
		Limit:         limit,
		PropertyTypes: f.PropertyTypes,
		AnalyzeOnly:   f.AnalyzeOnly,
		ReturnQuery:   f.ReturnQuery,
	}

	for {
		req.Offset = offset
		start := time.Now()
		page, err := f.Index.Search(ctx, req)
		telemetry.TimeSearch(start)
		if err != nil {
			if errors.Is(err, index.ErrQueryRejected) {
				// policy rejection, not an index fault
				telemetry.SearchRejected.Inc()
				logger.Debug("search_rejected", "node", edge.Node.String(), "edge", edge.Name, "err", err)
				return err
			}
			telemetry.SearchFailures.Inc()
			logger.Error("search_failed", "node", edge.Node.String(), "edge", edge.Name, "offset", offset, "err", err)
			return index.ExecutionFailed(err)
		}

		for i, c := range page.Candidates {
			if ctx.Err() != nil {
				return nil
			}
			cand := index.Candidate{
				Result:        c,
				Edge:          edge,
				FieldMappings: page.FieldMappings,
			}
			next := pipeline.ChildResult(cand, parent.Path, sc.StageID, cursor.OffsetState(offset+i+1))
			if !pipeline.Emit(ctx, out, next) {
				return nil
			}
		}

		if len(page.Candidates) < limit {
			return nil
		}
		offset += len(page.Candidates)
	}
}
