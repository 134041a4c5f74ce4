package planner

import (
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

const ownerProductsSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	product(id: ID!): Product
}
`

const ownerInventorySDL = `
type Product @key(fields: "id") {
	id: ID!
	inStock: Boolean!
}

type Query {
	_unused: Boolean
}
`

func TestPickEntityOwner_SingleOwnerIsImmediate(t *testing.T) {
	sch, err := schema.Compose([]schema.SubgraphSDL{
		{Name: "products", SDL: []byte(ownerProductsSDL), Host: "http://products.example.com"},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	b := &builder{schema: sch, byKey: map[string]ExecutableID{}}

	owner := b.pickEntityOwner("Product")
	if owner.name != "products" {
		t.Errorf("expected sole owner %q, got %q", "products", owner.name)
	}
}

func TestPickEntityOwner_MultiOwnerPicksAKnownSubgraph(t *testing.T) {
	sch, err := schema.Compose([]schema.SubgraphSDL{
		{Name: "products", SDL: []byte(ownerProductsSDL), Host: "http://products.example.com"},
		{Name: "inventory", SDL: []byte(ownerInventorySDL), Host: "http://inventory.example.com"},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	b := &builder{schema: sch, byKey: map[string]ExecutableID{}}

	owner := b.pickEntityOwner("Product")
	if owner.name != "products" && owner.name != "inventory" {
		t.Errorf("expected owner to be one of the two subgraphs declaring Product, got %q", owner.name)
	}
}

func TestPickEntityOwner_UnknownTypeReturnsZeroValue(t *testing.T) {
	sch, err := schema.Compose([]schema.SubgraphSDL{
		{Name: "products", SDL: []byte(ownerProductsSDL), Host: "http://products.example.com"},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	b := &builder{schema: sch, byKey: map[string]ExecutableID{}}

	owner := b.pickEntityOwner("NoSuchType")
	if owner.name != "" {
		t.Errorf("expected zero-value entityOwner for an unknown type, got %q", owner.name)
	}
}
