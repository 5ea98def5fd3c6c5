package metadata

import (
	"bytes"
	"errors"
	"testing"

	"github.com/aurodev/usergrid/pkg/models"
	"github.com/aurodev/usergrid/pkg/store"
	"github.com/aurodev/usergrid/pkg/store/keys"
)

func openStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir(), false); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
}

func writeEdge(t *testing.T, scope models.ApplicationScope, edge models.Edge) {
	t.Helper()
	b, err := WriteEdge(scope, edge)
	if err != nil {
		t.Fatalf("WriteEdge: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
}

func removeEdge(t *testing.T, scope models.ApplicationScope, edge models.Edge) {
	t.Helper()
	b, err := RemoveEdge(scope, edge)
	if err != nil {
		t.Fatalf("RemoveEdge: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
}

func collectTypes(t *testing.T, it *TypeIterator, err error) []string {
	t.Helper()
	if err != nil {
		t.Fatalf("iterator: %v", err)
	}
	defer it.Close()
	var out []string
	for it.Next() {
		out = append(out, it.Value())
	}
	if it.Err() != nil {
		t.Fatalf("iterate: %v", it.Err())
	}
	return out
}

func TestWriteEdgeRecordsAllFourColumns(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	edge := models.NewEdge(models.NewId("user"), "owns", models.NewId("device"))
	writeEdge(t, scope, edge)

	it, itErr := GetEdgeTypesFromSource(scope, models.SearchEdgeType{Node: edge.Source})
	got := collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "owns" {
		t.Fatalf("edge types from source: %v", got)
	}
	it, itErr = GetEdgeTypesToTarget(scope, models.SearchEdgeType{Node: edge.Target})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "owns" {
		t.Fatalf("edge types to target: %v", got)
	}
	it, itErr = GetIdTypesFromSource(scope, models.SearchIdType{SearchEdgeType: models.SearchEdgeType{Node: edge.Source}, EdgeType: "owns"})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "device" {
		t.Fatalf("id types from source: %v", got)
	}
	it, itErr = GetIdTypesToTarget(scope, models.SearchIdType{SearchEdgeType: models.SearchEdgeType{Node: edge.Target}, EdgeType: "owns"})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "user" {
		t.Fatalf("id types to target: %v", got)
	}
}

func TestWriteEdgeIsIdempotent(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	edge := models.NewEdge(models.NewId("user"), "owns", models.NewId("device"))

	writeEdge(t, scope, edge)
	writeEdge(t, scope, edge)

	it, itErr := GetEdgeTypesFromSource(scope, models.SearchEdgeType{Node: edge.Source})
	got := collectTypes(t, it, itErr)
	if len(got) != 1 {
		t.Fatalf("expected one edge type, got %v", got)
	}

	// both directions hold exactly one row for the edge
	iter, err := store.NewPrefixIter(keys.GenScopeEdgePrefix(scope))
	if err != nil {
		t.Fatalf("NewPrefixIter: %v", err)
	}
	defer iter.Close()
	count := 0
	prefix := []byte(keys.GenScopeEdgePrefix(scope))
	for ; iter.Valid() && bytes.HasPrefix(iter.Key(), prefix); iter.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 edge rows, got %d", count)
	}
}

func TestColumnKeepsNewestVersion(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")
	tgt := models.NewId("device")

	older := models.NewEdge(src, "owns", tgt)
	newer := models.NewEdge(src, "owns", tgt)

	writeEdge(t, scope, newer)
	// a late-arriving write of the older version must not roll the
	// column back
	writeEdge(t, scope, older)

	val, ok, err := store.Get(keys.GenSourceEdgeTypeKey(scope, src, "owns"))
	if err != nil || !ok {
		t.Fatalf("column read: ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(val, newer.Version[:]) {
		t.Fatalf("column holds %x, want newest %x", val, newer.Version[:])
	}
}

func TestRemoveEdgeDeletesBothRows(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	edge := models.NewEdge(models.NewId("user"), "owns", models.NewId("device"))
	writeEdge(t, scope, edge)
	removeEdge(t, scope, edge)

	for _, key := range []string{
		keys.GenEdgeFromSourceKey(scope, edge),
		keys.GenEdgeToTargetKey(scope, edge),
	} {
		if _, ok, err := store.Get(key); err != nil || ok {
			t.Fatalf("edge row %s still present: ok=%v err=%v", key, ok, err)
		}
	}

	// metadata columns survive an edge removal until explicitly cleaned
	if _, ok, err := store.Get(keys.GenSourceEdgeTypeKey(scope, edge.Source, "owns")); err != nil || !ok {
		t.Fatalf("column should survive edge removal: ok=%v err=%v", ok, err)
	}
}

func TestRemoveColumnRespectsNewerWrite(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")
	tgt := models.NewId("device")

	older := models.NewEdge(src, "owns", tgt)
	newer := models.NewEdge(src, "owns", tgt)
	writeEdge(t, scope, newer)

	// delete at the older version loses to the stored newer one
	b, err := RemoveEdgeTypeFromSourceAt(scope, src, "owns", older.Version)
	if err != nil {
		t.Fatalf("RemoveEdgeTypeFromSourceAt: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if _, ok, _ := store.Get(keys.GenSourceEdgeTypeKey(scope, src, "owns")); !ok {
		t.Fatalf("column deleted by a stale remove")
	}

	// delete at the stored version lands
	b, err = RemoveEdgeTypeFromSourceAt(scope, src, "owns", newer.Version)
	if err != nil {
		t.Fatalf("RemoveEdgeTypeFromSourceAt: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	if _, ok, _ := store.Get(keys.GenSourceEdgeTypeKey(scope, src, "owns")); ok {
		t.Fatalf("column survived a current remove")
	}
}

func TestCheckDeleteSafety(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")
	edge := models.NewEdge(src, "owns", models.NewId("device"))
	writeEdge(t, scope, edge)

	// a live edge at the delete version blocks the delete
	err := CheckDeleteSafety(scope, src, keys.DirSource, "owns", edge.Version)
	if !errors.Is(err, ErrInvariantRisk) {
		t.Fatalf("expected ErrInvariantRisk, got %v", err)
	}

	// an edge newer than the delete version does not
	newer := models.NewEdge(src, "owns", edge.Target)
	removeEdge(t, scope, edge)
	writeEdge(t, scope, newer)
	if err := CheckDeleteSafety(scope, src, keys.DirSource, "owns", edge.Version); err != nil {
		t.Fatalf("newer edge should not block: %v", err)
	}

	removeEdge(t, scope, newer)
	if err := CheckDeleteSafety(scope, src, keys.DirSource, "owns", newer.Version); err != nil {
		t.Fatalf("no live edges, expected nil, got %v", err)
	}
}

// skipping the safety check lets a concurrent-style writer's metadata
// vanish: the column delete lands even though another edge of the
// type is still live at an older version
func TestUncheckedDeleteDropsLiveTypeColumn(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")

	first := models.NewEdge(src, "likes", models.NewId("post"))
	second := models.NewEdge(src, "likes", models.NewId("post"))
	writeEdge(t, scope, first)
	writeEdge(t, scope, second)

	// remove only the second edge, then delete the column at its
	// version without checking: the first edge is still live
	removeEdge(t, scope, second)
	b, err := RemoveEdgeTypeFromSourceAt(scope, src, "likes", second.Version)
	if err != nil {
		t.Fatalf("RemoveEdgeTypeFromSourceAt: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}

	if _, ok, _ := store.Get(keys.GenSourceEdgeTypeKey(scope, src, "likes")); ok {
		t.Fatalf("expected the column gone after unchecked delete")
	}
	// the first edge row is orphaned from type discovery
	if ok, _ := store.HasPrefix(keys.GenEdgeFromSourceTypePrefix(scope, src, "likes")); !ok {
		t.Fatalf("first edge should still exist")
	}
	// the safety check would have flagged it
	if err := CheckDeleteSafety(scope, src, keys.DirSource, "likes", second.Version); !errors.Is(err, ErrInvariantRisk) {
		t.Fatalf("expected ErrInvariantRisk, got %v", err)
	}
}

func TestTypeIteratorPagination(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")
	types := []string{"follows", "likes", "owns", "rates", "views"}
	for _, et := range types {
		writeEdge(t, scope, models.NewEdge(src, et, models.NewId("thing")))
	}

	var got []string
	last := ""
	for {
		it, itErr := GetEdgeTypesFromSource(scope, models.SearchEdgeType{Node: src, Last: last, Limit: 2})
		page := collectTypes(t, it, itErr)
		if len(page) == 0 {
			break
		}
		got = append(got, page...)
		last = page[len(page)-1]
	}
	if len(got) != len(types) {
		t.Fatalf("pagination lost or duplicated types: %v", got)
	}
	for i, et := range types {
		if got[i] != et {
			t.Fatalf("position %d: got %q want %q", i, got[i], et)
		}
	}
}

func TestTypeIteratorScopesAreIsolated(t *testing.T) {
	openStore(t)
	scopeA := models.NewApplicationScope(models.NewId("application"))
	scopeB := models.NewApplicationScope(models.NewId("application"))
	src := models.NewId("user")
	writeEdge(t, scopeA, models.NewEdge(src, "owns", models.NewId("device")))

	it, itErr := GetEdgeTypesFromSource(scopeB, models.SearchEdgeType{Node: src})
	got := collectTypes(t, it, itErr)
	if len(got) != 0 {
		t.Fatalf("scope B sees scope A's types: %v", got)
	}
}

// users liking posts: type discovery answers "what does this user
// like" and "who likes this post" from either end of the edge
func TestLikesEdgesScenario(t *testing.T) {
	openStore(t)
	scope := models.NewApplicationScope(models.NewId("application"))
	user := models.NewId("user")
	post1 := models.NewId("post")
	post2 := models.NewId("post")

	like1 := models.NewEdge(user, "likes", post1)
	like2 := models.NewEdge(user, "likes", post2)
	writeEdge(t, scope, like1)
	writeEdge(t, scope, like2)

	it, itErr := GetEdgeTypesFromSource(scope, models.SearchEdgeType{Node: user})
	got := collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "likes" {
		t.Fatalf("user edge types: %v", got)
	}
	it, itErr = GetIdTypesFromSource(scope, models.SearchIdType{SearchEdgeType: models.SearchEdgeType{Node: user}, EdgeType: "likes"})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "post" {
		t.Fatalf("user id types: %v", got)
	}
	it, itErr = GetEdgeTypesToTarget(scope, models.SearchEdgeType{Node: post1})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "likes" {
		t.Fatalf("post edge types: %v", got)
	}
	it, itErr = GetIdTypesToTarget(scope, models.SearchIdType{SearchEdgeType: models.SearchEdgeType{Node: post1}, EdgeType: "likes"})
	got = collectTypes(t, it, itErr)
	if len(got) != 1 || got[0] != "user" {
		t.Fatalf("post id types: %v", got)
	}

	// unliking one post keeps the user's metadata: another like is live
	removeEdge(t, scope, like1)
	if err := CheckDeleteSafety(scope, user, keys.DirSource, "likes", like2.Version); !errors.Is(err, ErrInvariantRisk) {
		t.Fatalf("expected ErrInvariantRisk while like2 lives, got %v", err)
	}

	// unliking the last post clears the way for metadata cleanup
	removeEdge(t, scope, like2)
	if err := CheckDeleteSafety(scope, user, keys.DirSource, "likes", like2.Version); err != nil {
		t.Fatalf("expected safe delete, got %v", err)
	}
	b, err := RemoveEdgeTypeFromSource(scope, like2)
	if err != nil {
		t.Fatalf("RemoveEdgeTypeFromSource: %v", err)
	}
	if err := store.ApplyBatch(b, false); err != nil {
		t.Fatalf("ApplyBatch: %v", err)
	}
	it, itErr = GetEdgeTypesFromSource(scope, models.SearchEdgeType{Node: user})
	got = collectTypes(t, it, itErr)
	if len(got) != 0 {
		t.Fatalf("user edge types after cleanup: %v", got)
	}
}
