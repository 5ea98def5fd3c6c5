package keys

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aurodev/usergrid/pkg/models"
)

// Direction markers inside keys.
const (
	DirSource = "src"
	DirTarget = "tgt"
)

// Metadata column kinds.
const (
	KindEdgeType = "et"
	KindIdType   = "it"
)

type EdgeKeyParts struct {
	Scope     models.ApplicationScope
	Source    models.Id
	Target    models.Id
	Type      string
	Version   uuid.UUID
	Direction string // DirSource or DirTarget (which row the key came from)
}

type MetadataKeyParts struct {
	Scope     models.ApplicationScope
	Node      models.Id
	Direction string // DirSource or DirTarget
	Kind      string // KindEdgeType or KindIdType
	EdgeType  string
	IdType    string // set only for KindIdType
}

// ParseIdSegment inverts IdSegment.
func ParseIdSegment(seg string) (models.Id, error) {
	sep := strings.LastIndex(seg, "|")
	if sep <= 0 || sep == len(seg)-1 {
		return models.Id{}, fmt.Errorf("invalid id segment: %s", seg)
	}
	u, err := uuid.Parse(seg[sep+1:])
	if err != nil {
		return models.Id{}, fmt.Errorf("invalid id segment %s: %w", seg, err)
	}
	return models.Id{Type: seg[:sep], UUID: u}, nil
}

// ParseEdgeKey parses either edge row form back into its parts.
func ParseEdgeKey(key string) (*EdgeKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 10 || parts[0] != "e" || parts[4] != "t" || parts[8] != "v" {
		return nil, fmt.Errorf("invalid edge key: %s", key)
	}
	scopeID, err := ParseIdSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid edge key %s: %w", key, err)
	}
	owner, err := ParseIdSegment(parts[3])
	if err != nil {
		return nil, fmt.Errorf("invalid edge key %s: %w", key, err)
	}
	other, err := ParseIdSegment(parts[7])
	if err != nil {
		return nil, fmt.Errorf("invalid edge key %s: %w", key, err)
	}
	version, err := uuid.Parse(parts[9])
	if err != nil {
		return nil, fmt.Errorf("invalid edge key %s: %w", key, err)
	}
	p := &EdgeKeyParts{
		Scope:     models.ApplicationScope{Application: scopeID},
		Type:      parts[5],
		Version:   version,
		Direction: parts[2],
	}
	switch parts[2] {
	case DirSource:
		if parts[6] != DirTarget {
			return nil, fmt.Errorf("invalid edge key: %s", key)
		}
		p.Source, p.Target = owner, other
	case DirTarget:
		if parts[6] != DirSource {
			return nil, fmt.Errorf("invalid edge key: %s", key)
		}
		p.Target, p.Source = owner, other
	default:
		return nil, fmt.Errorf("invalid edge key: %s", key)
	}
	return p, nil
}

// ParseMetadataKey parses a type-discovery column key back into its parts.
func ParseMetadataKey(key string) (*MetadataKeyParts, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 6 || parts[0] != "g" {
		return nil, fmt.Errorf("invalid metadata key: %s", key)
	}
	if parts[2] != DirSource && parts[2] != DirTarget {
		return nil, fmt.Errorf("invalid metadata key: %s", key)
	}
	scopeID, err := ParseIdSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid metadata key %s: %w", key, err)
	}
	node, err := ParseIdSegment(parts[3])
	if err != nil {
		return nil, fmt.Errorf("invalid metadata key %s: %w", key, err)
	}
	p := &MetadataKeyParts{
		Scope:     models.ApplicationScope{Application: scopeID},
		Node:      node,
		Direction: parts[2],
		Kind:      parts[4],
	}
	switch parts[4] {
	case KindEdgeType:
		if len(parts) != 6 {
			return nil, fmt.Errorf("invalid metadata key: %s", key)
		}
		p.EdgeType = parts[5]
	case KindIdType:
		if len(parts) != 7 {
			return nil, fmt.Errorf("invalid metadata key: %s", key)
		}
		p.EdgeType = parts[5]
		p.IdType = parts[6]
	default:
		return nil, fmt.Errorf("invalid metadata key: %s", key)
	}
	return p, nil
}
