// Package weaviate implements the search index over a Weaviate
// instance. Entities are indexed as one object per edge they are
// reachable from, so an edge-scoped search is a filtered BM25 query.
package weaviate

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	"golang.org/x/time/rate"

	"github.com/aurodev/usergrid/pkg/logger"
)

const (
	// DefaultClass holds every indexed entity; the entityType property
	// narrows searches to requested types.
	DefaultClass = "Entity"

	// DefaultMaxScanDepth bounds offset+limit; deeper scans are
	// rejected by the analyzer before touching the index.
	DefaultMaxScanDepth = 10000
)

// Config for the Weaviate-backed index.
type Config struct {
	// URL of the Weaviate instance, scheme optional.
	URL string
	// Class overrides DefaultClass.
	Class string
	// MaxScanDepth overrides DefaultMaxScanDepth; <=0 keeps the default.
	MaxScanDepth int
	// QPS caps outbound queries per second; <=0 disables the gate.
	QPS   float64
	Burst int
	// PropertyTypes declares entity properties for the class schema;
	// values are "text", "int", "number", "boolean" or "date".
	PropertyTypes map[string]string
}

// Index is a SearchIndex over one Weaviate class.
type Index struct {
	client  *weaviate.Client
	class   string
	maxScan int
	limiter *rate.Limiter
	props   map[string]string
}

// New builds the index client. It does not touch the instance; call
// EnsureSchema before the first write.
func New(cfg Config) (*Index, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("weaviate: empty url")
	}
	wcfg := weaviate.Config{Host: cfg.URL, Scheme: "http"}
	if strings.HasPrefix(cfg.URL, "https://") {
		wcfg.Scheme = "https"
		wcfg.Host = strings.TrimPrefix(cfg.URL, "https://")
	} else if strings.HasPrefix(cfg.URL, "http://") {
		wcfg.Host = strings.TrimPrefix(cfg.URL, "http://")
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("weaviate: create client: %w", err)
	}

	idx := &Index{
		client:  client,
		class:   cfg.Class,
		maxScan: cfg.MaxScanDepth,
		props:   cfg.PropertyTypes,
	}
	if idx.class == "" {
		idx.class = DefaultClass
	}
	if idx.maxScan <= 0 {
		idx.maxScan = DefaultMaxScanDepth
	}
	if cfg.QPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		idx.limiter = rate.NewLimiter(rate.Limit(cfg.QPS), burst)
	}
	return idx, nil
}

// EnsureSchema creates the entity class if it does not exist yet. The
// built-in properties carry edge membership; configured property types
// add the searchable entity fields.
func (x *Index) EnsureSchema(ctx context.Context) error {
	exists, err := x.client.Schema().ClassExistenceChecker().WithClassName(x.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: check class: %w", err)
	}
	if exists {
		return nil
	}

	props := []*models.Property{
		{Name: "entityId", DataType: []string{"text"}},
		{Name: "entityType", DataType: []string{"text"}},
		{Name: "entityVersion", DataType: []string{"text"}},
		{Name: "edgeNode", DataType: []string{"text"}},
		{Name: "edgeName", DataType: []string{"text"}},
		{Name: "edgeDirection", DataType: []string{"text"}},
		{Name: "application", DataType: []string{"text"}},
		{Name: "content", DataType: []string{"text"}},
	}
	for name, typ := range x.props {
		props = append(props, &models.Property{Name: name, DataType: []string{typ}})
	}

	class := &models.Class{
		Class:      x.class,
		Vectorizer: "none",
		Properties: props,
	}
	if err := x.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("weaviate: create class: %w", err)
	}
	logger.Info("index_schema_created", "class", x.class)
	return nil
}

func (x *Index) wait(ctx context.Context) error {
	if x.limiter == nil {
		return nil
	}
	return x.limiter.Wait(ctx)
}
