package schema

import "testing"

const reviewsOwnerSDL = `
type Product @key(fields: "id") {
	id: ID!
	reviewCount: Int!
}

type Query {
	_unused: Boolean
}
`

const inventoryOwnerSDL = `
type Product @key(fields: "id") {
	id: ID!
	inStock: Boolean!
}

type Query {
	_unused2: Boolean
}
`

func TestCompose_MultiSubgraphEntityHasBothOwners(t *testing.T) {
	sch, err := Compose([]SubgraphSDL{
		{Name: "reviews", SDL: []byte(reviewsOwnerSDL), Host: "http://reviews.example.com"},
		{Name: "inventory", SDL: []byte(inventoryOwnerSDL), Host: "http://inventory.example.com"},
	})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	owners := sch.EntityOwners("Product")
	if len(owners) != 2 {
		t.Fatalf("expected Product to be owned by both subgraphs, got %d owners", len(owners))
	}
}

func TestCompose_FieldReturnTypeNameUnwrapsNonNull(t *testing.T) {
	sch, err := Compose([]SubgraphSDL{{Name: "reviews", SDL: []byte(reviewsOwnerSDL), Host: "http://reviews.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if got := sch.FieldReturnTypeName("Product", "reviewCount"); got != "Int" {
		t.Errorf("expected Int, got %q", got)
	}
	if got := sch.FieldReturnTypeName("Product", "id"); got != "ID" {
		t.Errorf("expected ID, got %q", got)
	}
	if got := sch.FieldReturnTypeName("Product", "doesNotExist"); got != "" {
		t.Errorf("expected empty string for missing field, got %q", got)
	}
}

func TestCompose_FieldDefinitionByNameMissingField(t *testing.T) {
	sch, err := Compose([]SubgraphSDL{{Name: "reviews", SDL: []byte(reviewsOwnerSDL), Host: "http://reviews.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if _, ok := sch.FieldDefinitionByName("Product", "nope"); ok {
		t.Error("expected ok=false for a field that doesn't exist")
	}
	if _, ok := sch.FieldDefinitionByName("NoSuchType", "id"); ok {
		t.Error("expected ok=false for a type that doesn't exist")
	}
}

const inaccessibleSDL = `
type Product @key(fields: "id") {
	id: ID!
	internalCode: String! @inaccessible
}

type Query {
	product(id: ID!): Product
}
`

func TestCompose_FieldInaccessible(t *testing.T) {
	sch, err := Compose([]SubgraphSDL{{Name: "products", SDL: []byte(inaccessibleSDL), Host: "http://products.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	fid, ok := sch.FieldDefinitionByName("Product", "internalCode")
	if !ok {
		t.Fatal("expected internalCode field to exist")
	}
	if !sch.FieldInaccessible(fid) {
		t.Error("expected internalCode to be @inaccessible")
	}

	idField, ok := sch.FieldDefinitionByName("Product", "id")
	if !ok {
		t.Fatal("expected id field to exist")
	}
	if sch.FieldInaccessible(idField) {
		t.Error("id should not be @inaccessible")
	}
}
