package graph

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

const graphProductsSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	product(id: ID!): Product
}
`

const graphInventorySDL = `
type Product @key(fields: "id") {
	id: ID!
	inStock: Boolean!
}

type Query {
	_unused: Boolean
}
`

func composeGraphSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Compose([]schema.SubgraphSDL{
		{Name: "products", SDL: []byte(graphProductsSDL), Host: "http://products.example.com"},
		{Name: "inventory", SDL: []byte(graphInventorySDL), Host: "http://inventory.example.com"},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	return sch
}

func TestNodeKey_TypeLevelOmitsField(t *testing.T) {
	if got := NodeKey("products", "Product", ""); got != "products:Product" {
		t.Errorf("expected %q, got %q", "products:Product", got)
	}
}

func TestNodeKey_FieldLevelIncludesField(t *testing.T) {
	if got := NodeKey("products", "Product", "name"); got != "products:Product.name" {
		t.Errorf("expected %q, got %q", "products:Product.name", got)
	}
}

func TestBuild_CreatesCrossSubgraphKeyEdgeForSharedEntity(t *testing.T) {
	sch := composeGraphSchema(t)
	g := Build(sch, []string{"Product"})

	productsNode := NodeKey("products", "Product", "")
	inventoryNode := NodeKey("inventory", "Product", "")

	if _, ok := g.Nodes[productsNode]; !ok {
		t.Fatalf("expected node %q to exist", productsNode)
	}
	if _, ok := g.Nodes[inventoryNode]; !ok {
		t.Fatalf("expected node %q to exist", inventoryNode)
	}
	if w, ok := g.Nodes[productsNode].Edges[inventoryNode]; !ok || w != 10 {
		t.Errorf("expected a cross-subgraph @key edge weight of 10, got %d (ok=%v)", w, ok)
	}
	if w, ok := g.Nodes[inventoryNode].Edges[productsNode]; !ok || w != 10 {
		t.Errorf("expected the reverse @key edge too, got %d (ok=%v)", w, ok)
	}
}

func TestBuild_FieldEdgeFromOwningType(t *testing.T) {
	sch := composeGraphSchema(t)
	g := Build(sch, []string{"Product"})

	typeNode := NodeKey("products", "Product", "")
	fieldNode := NodeKey("products", "Product", "name")
	if w, ok := g.Nodes[typeNode].Edges[fieldNode]; !ok || w != 1 {
		t.Errorf("expected a type->field edge of weight 1, got %d (ok=%v)", w, ok)
	}
}

func TestRelax_FindsShortestPathAcrossSubgraphs(t *testing.T) {
	sch := composeGraphSchema(t)
	g := Build(sch, []string{"Product"})

	productsNode := NodeKey("products", "Product", "")
	inventoryFieldNode := NodeKey("inventory", "Product", "inStock")

	dist, prev := g.Relax([]string{productsNode}, nil)
	if dist[inventoryFieldNode] == int(^uint(0)>>1) {
		t.Fatal("expected a reachable path from products to inventory's inStock field")
	}

	path := Path(prev, inventoryFieldNode)
	if len(path) == 0 || path[0] != productsNode {
		t.Errorf("expected path to start at %q, got %v", productsNode, path)
	}
	if path[len(path)-1] != inventoryFieldNode {
		t.Errorf("expected path to end at %q, got %v", inventoryFieldNode, path)
	}
}
