package executor

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/n9te9/go-graphql-federation-gateway/federation/cache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/planner"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
)

const cachedProductSDL = `
type Product @key(fields: "id") {
	id: ID!
	reviewCount: Int! @cacheControl(maxAge: 60)
}

type Query {
	_unused: Boolean
}
`

type stubFetcher struct {
	calls int
	resp  SubgraphResponse
}

func (f *stubFetcher) Fetch(ctx context.Context, endpoint EndpointID, req SubgraphRequest) (SubgraphResponse, error) {
	f.calls++
	return f.resp, nil
}

func TestFetchEntitiesCached_SecondCallServesFromCache(t *testing.T) {
	sch, err := schema.Compose([]schema.SubgraphSDL{{Name: "reviews", SDL: []byte(cachedProductSDL), Host: "http://reviews.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	fetcher := &stubFetcher{resp: SubgraphResponse{
		Data: map[string]any{"_entities": []any{map[string]any{"reviewCount": 42}}},
	}}

	st := &execState{
		schema:  sch,
		fetcher: fetcher,
		qb:      NewQueryBuilder(),
		cache:   cache.New(10, time.Minute),
	}

	plan := &planner.Plan{
		StepType:     planner.StepTypeEntity,
		ParentType:   "Product",
		SubgraphName: "reviews",
		SelectionSet: []ast.Selection{&ast.Field{Name: ast.Name("reviewCount")}},
	}
	reps := []map[string]any{{"__typename": "Product", "id": "1"}}

	resp1, err := st.fetchEntitiesCached(context.Background(), plan, reps)
	if err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}
	entities1, _ := resp1.Data["_entities"].([]any)
	if len(entities1) != 1 || entities1[0].(map[string]any)["reviewCount"] != 42 {
		t.Fatalf("unexpected first response: %#v", resp1.Data)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 subgraph call on a cold cache, got %d", fetcher.calls)
	}

	resp2, err := st.fetchEntitiesCached(context.Background(), plan, reps)
	if err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}
	entities2, _ := resp2.Data["_entities"].([]any)
	if len(entities2) != 1 || entities2[0].(map[string]any)["reviewCount"] != 42 {
		t.Fatalf("unexpected second response: %#v", resp2.Data)
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected the second call to be served from cache, got %d subgraph calls", fetcher.calls)
	}
}

func TestPlanCacheMaxAge_NoCacheControlIsUncacheable(t *testing.T) {
	const sdl = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	_unused: Boolean
}
`
	sch, err := schema.Compose([]schema.SubgraphSDL{{Name: "products", SDL: []byte(sdl), Host: "http://products.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	st := &execState{schema: sch}
	plan := &planner.Plan{
		ParentType:   "Product",
		SelectionSet: []ast.Selection{&ast.Field{Name: ast.Name("name")}},
	}

	if got := st.planCacheMaxAge(plan); got != 0 {
		t.Errorf("expected 0 (uncacheable) without @cacheControl, got %v", got)
	}
}

func TestExtractRepresentations_FlattensLists(t *testing.T) {
	root := map[string]any{
		"products": []any{
			map[string]any{"__typename": "Product", "id": "1"},
			map[string]any{"__typename": "Product", "id": "2"},
		},
	}
	reps, paths := extractRepresentations(root, []string{"products"}, []string{"id"})

	wantReps := []map[string]any{
		{"__typename": "Product", "id": "1"},
		{"__typename": "Product", "id": "2"},
	}
	if diff := cmp.Diff(wantReps, reps); diff != "" {
		t.Errorf("representations mismatch (-want +got):\n%s", diff)
	}

	wantPaths := [][]any{{"products", 0}, {"products", 1}}
	if diff := cmp.Diff(wantPaths, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeEntityAtPath_SplicesNestedListElement(t *testing.T) {
	root := map[string]any{
		"products": []any{
			map[string]any{"id": "1"},
			map[string]any{"id": "2"},
		},
	}
	if err := mergeEntityAtPath(root, []any{"products", 1}, map[string]any{"reviewCount": 3}); err != nil {
		t.Fatalf("mergeEntityAtPath failed: %v", err)
	}
	list := root["products"].([]any)
	second := list[1].(map[string]any)
	if second["reviewCount"] != 3 {
		t.Errorf("expected reviewCount to be merged in, got %#v", second)
	}
	first := list[0].(map[string]any)
	if _, ok := first["reviewCount"]; ok {
		t.Errorf("unrelated element should not have been touched: %#v", first)
	}
}

func TestNullifyFieldEverywhere_MatchesOnlyTargetType(t *testing.T) {
	root := map[string]any{
		"a": map[string]any{"__typename": "Product", "name": "Widget"},
		"b": map[string]any{"__typename": "Review", "name": "unaffected"},
	}
	nullifyFieldEverywhere(root, "Product.name")

	want := map[string]any{
		"a": map[string]any{"__typename": "Product", "name": nil},
		"b": map[string]any{"__typename": "Review", "name": "unaffected"},
	}
	if diff := cmp.Diff(want, root); diff != "" {
		t.Errorf("root mismatch after nullifyFieldEverywhere (-want +got):\n%s", diff)
	}
}
