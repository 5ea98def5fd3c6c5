package weaviate

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	wmodels "github.com/weaviate/weaviate/entities/models"

	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/logger"
	"github.com/aurodev/usergrid/pkg/models"
)

// Document is one entity indexed under one edge. The same entity
// appears once per edge it is reachable from.
type Document struct {
	Entity      models.Id
	Version     uuid.UUID
	Application models.Id
	Edge        index.SearchEdge
	Content     string
	Properties  map[string]interface{}
}

// IndexDocuments writes a batch of documents. Returns the count
// accepted by the instance.
func (x *Index) IndexDocuments(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	objects := make([]*wmodels.Object, len(docs))
	for i, doc := range docs {
		props := map[string]interface{}{
			"entityId":      doc.Entity.String(),
			"entityType":    doc.Entity.Type,
			"entityVersion": doc.Version.String(),
			"edgeNode":      doc.Edge.Node.String(),
			"edgeName":      doc.Edge.Name,
			"edgeDirection": directionValue(doc.Edge.Direction),
			"application":   doc.Application.String(),
			"content":       doc.Content,
		}
		for k, v := range doc.Properties {
			props[k] = v
		}
		objects[i] = &wmodels.Object{Class: x.class, Properties: props}
	}

	result, err := x.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate: batch index: %w", err)
	}
	indexed := 0
	for _, obj := range result {
		if obj.Result != nil && obj.Result.Errors == nil {
			indexed++
		}
	}
	if indexed < len(docs) {
		logger.Warn("index_partial_batch", "requested", len(docs), "indexed", indexed)
	}
	return indexed, nil
}

// DeindexEdge removes an entity's document for one edge, leaving its
// documents under other edges intact.
func (x *Index) DeindexEdge(ctx context.Context, entity models.Id, edge index.SearchEdge) error {
	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().WithPath([]string{"entityId"}).WithOperator(filters.Equal).WithValueString(entity.String()),
		filters.Where().WithPath([]string{"edgeNode"}).WithOperator(filters.Equal).WithValueString(edge.Node.String()),
		filters.Where().WithPath([]string{"edgeName"}).WithOperator(filters.Equal).WithValueString(edge.Name),
		filters.Where().WithPath([]string{"edgeDirection"}).WithOperator(filters.Equal).WithValueString(directionValue(edge.Direction)),
	})
	return x.deleteWhere(ctx, where)
}

// DeindexEntity removes every document for an entity across all edges.
func (x *Index) DeindexEntity(ctx context.Context, entity models.Id) error {
	where := filters.Where().WithPath([]string{"entityId"}).WithOperator(filters.Equal).WithValueString(entity.String())
	return x.deleteWhere(ctx, where)
}

// DeindexApplication removes every document in an application scope.
func (x *Index) DeindexApplication(ctx context.Context, app models.Id) error {
	where := filters.Where().WithPath([]string{"application"}).WithOperator(filters.Equal).WithValueString(app.String())
	return x.deleteWhere(ctx, where)
}

func (x *Index) deleteWhere(ctx context.Context, where *filters.WhereBuilder) error {
	_, err := x.client.Batch().ObjectsBatchDeleter().
		WithClassName(x.class).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: batch delete: %w", err)
	}
	return nil
}
