package keys

import (
	"fmt"

	"github.com/aurodev/usergrid/pkg/models"
)

// IdSegment renders an Id for use inside a key segment. Uses "|" so the
// segment never collides with the ":" key separator.
func IdSegment(id models.Id) string {
	return id.Type + "|" + id.UUID.String()
}

// ScopeSegment renders a scope for use inside a key segment.
func ScopeSegment(scope models.ApplicationScope) string {
	return IdSegment(scope.Application)
}

// edge rows

func GenEdgeFromSourceKey(scope models.ApplicationScope, e models.Edge) string {
	return fmt.Sprintf(EdgeFromSourceKey, ScopeSegment(scope), IdSegment(e.Source), e.Type, IdSegment(e.Target), e.Version.String())
}

func GenEdgeToTargetKey(scope models.ApplicationScope, e models.Edge) string {
	return fmt.Sprintf(EdgeToTargetKey, ScopeSegment(scope), IdSegment(e.Target), e.Type, IdSegment(e.Source), e.Version.String())
}

// metadata columns

func GenSourceEdgeTypeKey(scope models.ApplicationScope, source models.Id, edgeType string) string {
	return fmt.Sprintf(SourceEdgeTypeKey, ScopeSegment(scope), IdSegment(source), edgeType)
}

func GenSourceIdTypeKey(scope models.ApplicationScope, source models.Id, edgeType, idType string) string {
	return fmt.Sprintf(SourceIdTypeKey, ScopeSegment(scope), IdSegment(source), edgeType, idType)
}

func GenTargetEdgeTypeKey(scope models.ApplicationScope, target models.Id, edgeType string) string {
	return fmt.Sprintf(TargetEdgeTypeKey, ScopeSegment(scope), IdSegment(target), edgeType)
}

func GenTargetIdTypeKey(scope models.ApplicationScope, target models.Id, edgeType, idType string) string {
	return fmt.Sprintf(TargetIdTypeKey, ScopeSegment(scope), IdSegment(target), edgeType, idType)
}

// prefixes

func GenEdgeFromSourceTypePrefix(scope models.ApplicationScope, source models.Id, edgeType string) string {
	return fmt.Sprintf(EdgeFromSourceTypePrefix, ScopeSegment(scope), IdSegment(source), edgeType)
}

func GenEdgeToTargetTypePrefix(scope models.ApplicationScope, target models.Id, edgeType string) string {
	return fmt.Sprintf(EdgeToTargetTypePrefix, ScopeSegment(scope), IdSegment(target), edgeType)
}

func GenEdgeFromSourcePrefix(scope models.ApplicationScope, source models.Id) string {
	return fmt.Sprintf(EdgeFromSourcePrefix, ScopeSegment(scope), IdSegment(source))
}

func GenEdgeToTargetPrefix(scope models.ApplicationScope, target models.Id) string {
	return fmt.Sprintf(EdgeToTargetPrefix, ScopeSegment(scope), IdSegment(target))
}

func GenSourceEdgeTypePrefix(scope models.ApplicationScope, source models.Id) string {
	return fmt.Sprintf(SourceEdgeTypePrefix, ScopeSegment(scope), IdSegment(source))
}

func GenTargetEdgeTypePrefix(scope models.ApplicationScope, target models.Id) string {
	return fmt.Sprintf(TargetEdgeTypePrefix, ScopeSegment(scope), IdSegment(target))
}

func GenSourceIdTypePrefix(scope models.ApplicationScope, source models.Id, edgeType string) string {
	return fmt.Sprintf(SourceIdTypePrefix, ScopeSegment(scope), IdSegment(source), edgeType)
}

func GenTargetIdTypePrefix(scope models.ApplicationScope, target models.Id, edgeType string) string {
	return fmt.Sprintf(TargetIdTypePrefix, ScopeSegment(scope), IdSegment(target), edgeType)
}

func GenScopeMetadataPrefix(scope models.ApplicationScope) string {
	return fmt.Sprintf(ScopeMetadataPrefix, ScopeSegment(scope))
}

func GenScopeEdgePrefix(scope models.ApplicationScope) string {
	return fmt.Sprintf(ScopeEdgePrefix, ScopeSegment(scope))
}
