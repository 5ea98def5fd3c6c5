package keys

const (
	// notation dictionary for key formats:
	// e   = edge row
	// g   = graph metadata row
	// src = forward direction (rows owned by the source node)
	// tgt = reverse direction (rows owned by the target node)
	// t   = edge type segment
	// v   = version segment
	// et  = edge-type discovery column
	// it  = id-type discovery column
	// All keys are lowercase; segments are separated by ":".
	// Scope and node segments render an Id as <type>|<uuid>; edge types
	// and id types must not contain ":" (enforced by model validation).
	// <...> = variable segment

	// primary edge rows, one per direction
	EdgeFromSourceKey = "e:%s:src:%s:t:%s:tgt:%s:v:%s" // e:<scope>:src:<source>:t:<type>:tgt:<target>:v:<version>
	EdgeToTargetKey   = "e:%s:tgt:%s:t:%s:src:%s:v:%s" // e:<scope>:tgt:<target>:t:<type>:src:<source>:v:<version>

	// type-discovery metadata columns
	SourceEdgeTypeKey = "g:%s:src:%s:et:%s"    // g:<scope>:src:<node>:et:<edge_type>
	SourceIdTypeKey   = "g:%s:src:%s:it:%s:%s" // g:<scope>:src:<node>:it:<edge_type>:<id_type>
	TargetEdgeTypeKey = "g:%s:tgt:%s:et:%s"    // g:<scope>:tgt:<node>:et:<edge_type>
	TargetIdTypeKey   = "g:%s:tgt:%s:it:%s:%s" // g:<scope>:tgt:<node>:it:<edge_type>:<id_type>
)

// Partial formats for prefix scans (incomplete keys).
const (
	// all edges of one type from a node (missing target and version)
	EdgeFromSourceTypePrefix = "e:%s:src:%s:t:%s:tgt:"
	// all edges of one type into a node (missing source and version)
	EdgeToTargetTypePrefix = "e:%s:tgt:%s:t:%s:src:"
	// all forward edge rows of a node
	EdgeFromSourcePrefix = "e:%s:src:%s:t:"
	// all reverse edge rows of a node
	EdgeToTargetPrefix = "e:%s:tgt:%s:t:"

	// all edge-type columns of a node, per direction
	SourceEdgeTypePrefix = "g:%s:src:%s:et:"
	TargetEdgeTypePrefix = "g:%s:tgt:%s:et:"
	// all id-type columns of a node for one edge type, per direction
	SourceIdTypePrefix = "g:%s:src:%s:it:%s:"
	TargetIdTypePrefix = "g:%s:tgt:%s:it:%s:"

	// all metadata rows of a scope (auditor scan)
	ScopeMetadataPrefix = "g:%s:"
	// all metadata rows across every scope
	AllMetadataPrefix = "g:"
	// all edge rows of a scope
	ScopeEdgePrefix = "e:%s:"
)
