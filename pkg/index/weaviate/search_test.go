package weaviate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/models"
)

func newIndex(t *testing.T, cfg Config) *Index {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8080"
	}
	x, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return x
}

func edgeFor(node models.Id) index.SearchEdge {
	return index.SearchEdge{Node: node, Name: "coll|things", Direction: index.FromSource}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	x := newIndex(t, Config{})
	if x.class != DefaultClass {
		t.Fatalf("class: %s", x.class)
	}
	if x.maxScan != DefaultMaxScanDepth {
		t.Fatalf("max scan: %d", x.maxScan)
	}
}

// the analyzer runs before any network call, so rejections need no
// instance
func TestAnalyzerRejections(t *testing.T) {
	x := newIndex(t, Config{MaxScanDepth: 100})
	edge := edgeFor(models.NewId("user"))

	cases := []index.SearchRequest{
		{Edge: edge, Limit: 0},
		{Edge: edge, Limit: -5},
		{Edge: edge, Limit: 10, Offset: -1},
		{Edge: edge, Limit: 10, Offset: 95},
		{Edge: edge, Limit: 10, Types: index.SearchTypes{Types: []string{"post", ""}}},
	}
	for i, req := range cases {
		if _, err := x.Search(context.Background(), req); !errors.Is(err, index.ErrQueryRejected) {
			t.Fatalf("case %d: expected ErrQueryRejected, got %v", i, err)
		}
	}
}

func TestAnalyzeOnlyReturnsRenderedQuery(t *testing.T) {
	x := newIndex(t, Config{})
	node := models.NewId("user")
	req := index.SearchRequest{
		Edge:        edgeFor(node),
		Types:       index.SearchTypes{Types: []string{"post"}},
		Query:       "hello",
		Limit:       10,
		Offset:      20,
		AnalyzeOnly: true,
	}
	res, err := x.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("analyze-only returned candidates")
	}
	for _, want := range []string{node.String(), "coll|things", "dir=src", "post", `bm25="hello"`, "limit=10", "offset=20"} {
		if !strings.Contains(res.Query, want) {
			t.Fatalf("rendered query %q missing %q", res.Query, want)
		}
	}
}

// server-side parse and validation failures classify as rejections so
// the traversal short-circuits cleanly instead of logging an index fault
func TestIsRejection(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Syntax Error GraphQL request (1:8)", true},
		{`Cannot query field "bogus" on type "GetObjectsObj"`, true},
		{`Unknown argument "nearVector" on field "Entity"`, true},
		{"invalid 'where' filter: data type filter cannot use 'valueInt'", true},
		{"could not parse where filter operands", true},
		{"connection refused", false},
		{"shard entity_abc: no replica found", false},
	}
	for _, c := range cases {
		if got := isRejection(c.msg); got != c.want {
			t.Fatalf("isRejection(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

func TestDirectionValues(t *testing.T) {
	if directionValue(index.FromSource) != "src" || directionValue(index.ToTarget) != "tgt" {
		t.Fatalf("direction rendering broken")
	}
}

func TestParseScore(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
	}{
		{"1.5", 1.5},
		{2.25, 2.25},
		{nil, 0},
		{"bogus", 0},
	}
	for _, c := range cases {
		if got := parseScore(c.in); got != c.want {
			t.Fatalf("parseScore(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
