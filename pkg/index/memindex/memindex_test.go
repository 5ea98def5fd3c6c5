package memindex

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/models"
)

func edgeFor(node models.Id) index.SearchEdge {
	return index.SearchEdge{Node: node, Name: "coll|things", Direction: index.FromSource}
}

func TestSearchMatchesEdgeAndTypes(t *testing.T) {
	x := New(0)
	node := models.NewId("user")
	other := models.NewId("user")
	edge := edgeFor(node)

	device := models.NewId("device")
	post := models.NewId("post")
	x.Add(device, uuid.Must(uuid.NewV7()), edge, "a device")
	x.Add(post, uuid.Must(uuid.NewV7()), edge, "a post")
	x.Add(models.NewId("device"), uuid.Must(uuid.NewV7()), edgeFor(other), "someone else's")

	res, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res.Candidates))
	}

	res, err = x.Search(context.Background(), index.SearchRequest{
		Edge:  edge,
		Types: index.SearchTypes{Types: []string{"device"}},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("Search typed: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].ID != device.String() {
		t.Fatalf("typed candidates: %+v", res.Candidates)
	}
}

func TestSearchQueryFiltersContent(t *testing.T) {
	x := New(0)
	node := models.NewId("user")
	edge := edgeFor(node)
	hit := models.NewId("post")
	x.Add(hit, uuid.Must(uuid.NewV7()), edge, "Hello Graph World")
	x.Add(models.NewId("post"), uuid.Must(uuid.NewV7()), edge, "unrelated")

	res, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Query: "graph", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].ID != hit.String() {
		t.Fatalf("query candidates: %+v", res.Candidates)
	}
}

func TestSearchPagesByInsertionOrder(t *testing.T) {
	x := New(0)
	node := models.NewId("user")
	edge := edgeFor(node)
	var ids []string
	for i := 0; i < 5; i++ {
		id := models.NewId("post")
		ids = append(ids, id.String())
		x.Add(id, uuid.Must(uuid.NewV7()), edge, "content")
	}

	var got []string
	for offset := 0; ; {
		res, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 2, Offset: offset})
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		for _, c := range res.Candidates {
			got = append(got, c.ID)
		}
		if len(res.Candidates) < 2 {
			break
		}
		offset += len(res.Candidates)
	}
	if len(got) != len(ids) {
		t.Fatalf("paging lost results: %v", got)
	}
	for i := range ids {
		if got[i] != ids[i] {
			t.Fatalf("position %d: got %s want %s", i, got[i], ids[i])
		}
	}
}

func TestSearchRejections(t *testing.T) {
	x := New(100)
	edge := edgeFor(models.NewId("user"))
	cases := []index.SearchRequest{
		{Edge: edge, Limit: 0},
		{Edge: edge, Limit: -1},
		{Edge: edge, Limit: 10, Offset: -1},
		{Edge: edge, Limit: 10, Offset: 95},
	}
	for i, req := range cases {
		if _, err := x.Search(context.Background(), req); !errors.Is(err, index.ErrQueryRejected) {
			t.Fatalf("case %d: expected ErrQueryRejected, got %v", i, err)
		}
	}
	// at the boundary the scan is allowed
	if _, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 10, Offset: 90}); err != nil {
		t.Fatalf("boundary scan rejected: %v", err)
	}
}

func TestAnalyzeOnlySkipsExecution(t *testing.T) {
	x := New(0)
	edge := edgeFor(models.NewId("user"))
	x.Add(models.NewId("post"), uuid.Must(uuid.NewV7()), edge, "content")

	res, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 10, AnalyzeOnly: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Query == "" {
		t.Fatalf("expected rendered query")
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("analyze-only returned candidates: %d", len(res.Candidates))
	}
}

func TestAddReplacesAndRemoveDrops(t *testing.T) {
	x := New(0)
	edge := edgeFor(models.NewId("user"))
	entity := models.NewId("post")

	v1 := uuid.Must(uuid.NewV7())
	v2 := uuid.Must(uuid.NewV7())
	x.Add(entity, v1, edge, "old")
	x.Add(entity, v2, edge, "new")

	res, err := x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Candidates) != 1 || res.Candidates[0].Version != v2 {
		t.Fatalf("expected single candidate at v2: %+v", res.Candidates)
	}

	x.Remove(entity, edge)
	res, err = x.Search(context.Background(), index.SearchRequest{Edge: edge, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("expected empty after remove: %+v", res.Candidates)
	}
}
