package executor_test

import (
	"context"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
	"github.com/n9te9/go-graphql-federation-gateway/federation/opcache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/planner"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/internal/fedtest"
	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

const productSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	product(id: ID!): Product
}
`

func mustComposeSchema(t *testing.T, sdl, name string) *schema.Schema {
	t.Helper()
	sch, err := schema.Compose([]schema.SubgraphSDL{{Name: name, SDL: []byte(sdl), Host: "http://" + name + ".example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	return sch
}

func mustBuildPlan(t *testing.T, sch *schema.Schema, query string) *planner.OperationPlan {
	t.Helper()
	l := lexer.New(query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		t.Fatalf("parse errors: %v", errs)
	}

	var op *ast.OperationDefinition
	for _, def := range doc.Definitions {
		if od, ok := def.(*ast.OperationDefinition); ok {
			op = od
			break
		}
	}
	if op == nil {
		t.Fatal("no operation found in query")
	}

	bound := &opcache.BoundOperation{
		Document:         doc,
		OperationType:    op.OperationType,
		RootTypeName:     "Query",
		RootSelectionSet: op.SelectionSet,
		Variables:        map[string]any{},
	}

	plan, err := planner.Build(sch, bound, "Query")
	if err != nil {
		t.Fatalf("planner.Build failed: %v", err)
	}
	return plan
}

func TestDriver_RootQueryFetchesAndMergesResult(t *testing.T) {
	sch := mustComposeSchema(t, productSDL, "products")
	plan := mustBuildPlan(t, sch, `{ product(id: "1") { id name } }`)

	fetcher := fedtest.NewRecordingFetcher()
	fetcher.Responses["products"] = executor.SubgraphResponse{
		Data: map[string]any{"product": map[string]any{"id": "1", "name": "Widget"}},
	}

	driver := executor.NewDriver(sch, fetcher, fedtest.AllowAllAuth{})
	result, err := driver.Execute(context.Background(), plan, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}

	product, ok := result.Data["product"].(map[string]any)
	if !ok {
		t.Fatalf("expected product object in response, got %#v", result.Data)
	}
	if product["name"] != "Widget" {
		t.Errorf("expected name %q, got %v", "Widget", product["name"])
	}

	if len(fetcher.Requests) != 1 {
		t.Fatalf("expected exactly one subgraph request, got %d", len(fetcher.Requests))
	}
	if fetcher.Requests[0].Endpoint != "products" {
		t.Errorf("expected request against the products endpoint, got %q", fetcher.Requests[0].Endpoint)
	}
}

func TestDriver_PropagatesSubgraphErrors(t *testing.T) {
	sch := mustComposeSchema(t, productSDL, "products")
	plan := mustBuildPlan(t, sch, `{ product(id: "1") { id name } }`)

	fetcher := fedtest.NewRecordingFetcher()
	fetcher.Responses["products"] = executor.SubgraphResponse{
		Errors: []executor.GraphqlError{{Message: "boom"}},
	}

	driver := executor.NewDriver(sch, fetcher, nil)
	result, err := driver.Execute(context.Background(), plan, map[string]any{}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Message != "boom" {
		t.Fatalf("expected the subgraph error to propagate, got %#v", result.Errors)
	}
}
