// Package search provides the pipeline stage that turns a traversal
// node into a stream of index candidates, paging through the external
// search index with a resumable offset.
package search

import (
	"github.com/aurodev/usergrid/pkg/index"
	"github.com/aurodev/usergrid/pkg/models"
)

// Strategy tells the candidate stage which edge and entity types to
// search for a given node. Concrete strategies only contribute these
// two facts; paging, cancellation and error handling stay in the stage.
type Strategy interface {
	SearchEdgeFor(node models.Id) index.SearchEdge
	SearchTypes() index.SearchTypes
}

// CollectionStrategy searches the members of a named collection owned
// by the node, that is edges leaving the node.
type CollectionStrategy struct {
	Collection string
	Types      []string
}

func (s CollectionStrategy) SearchEdgeFor(node models.Id) index.SearchEdge {
	return index.SearchEdge{Node: node, Name: "coll|" + s.Collection, Direction: index.FromSource}
}

func (s CollectionStrategy) SearchTypes() index.SearchTypes {
	return index.SearchTypes{Types: s.Types}
}

// ConnectionStrategy searches the targets of a named connection leaving
// the node.
type ConnectionStrategy struct {
	Connection string
	Types      []string
}

func (s ConnectionStrategy) SearchEdgeFor(node models.Id) index.SearchEdge {
	return index.SearchEdge{Node: node, Name: "conn|" + s.Connection, Direction: index.FromSource}
}

func (s ConnectionStrategy) SearchTypes() index.SearchTypes {
	return index.SearchTypes{Types: s.Types}
}

// IncomingStrategy searches the sources of a named connection arriving
// at the node.
type IncomingStrategy struct {
	Connection string
	Types      []string
}

func (s IncomingStrategy) SearchEdgeFor(node models.Id) index.SearchEdge {
	return index.SearchEdge{Node: node, Name: "conn|" + s.Connection, Direction: index.ToTarget}
}

func (s IncomingStrategy) SearchTypes() index.SearchTypes {
	return index.SearchTypes{Types: s.Types}
}
