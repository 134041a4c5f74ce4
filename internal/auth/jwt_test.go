package auth

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

const scopedProductSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
	cost: Float! @requires_scopes(scopes: "internal:pricing")
}

type Query {
	product(id: ID!): Product
}
`

func mustComposeScopedSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Compose([]schema.SubgraphSDL{{Name: "products", SDL: []byte(scopedProductSDL), Host: "http://products.example.com"}})
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	return sch
}

func signToken(t *testing.T, key []byte, scope string) string {
	t.Helper()
	claims := jwt.MapClaims{"scope": scope}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return signed
}

func TestScopesAuthorizer_DeniesWithoutRequiredScope(t *testing.T) {
	key := []byte("test-signing-key")
	sch := mustComposeScopedSchema(t)
	a := NewScopesAuthorizer(sch, func(*jwt.Token) (any, error) { return key, nil })

	token := signToken(t, key, "internal:other")
	groups := []executor.AuthElementGroup{{Elements: []map[string]any{{"target": "Product.cost"}}}}

	dec, err := a.AuthorizeQuery(context.Background(), nil, "Bearer "+token, groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != executor.AuthDenySome {
		t.Fatalf("expected AuthDenySome, got %v", dec.Kind)
	}
	if _, denied := dec.ElementToError[0]; !denied {
		t.Error("expected element 0 (Product.cost) to be denied")
	}
}

func TestScopesAuthorizer_AllowsWithRequiredScope(t *testing.T) {
	key := []byte("test-signing-key")
	sch := mustComposeScopedSchema(t)
	a := NewScopesAuthorizer(sch, func(*jwt.Token) (any, error) { return key, nil })

	token := signToken(t, key, "internal:pricing")
	groups := []executor.AuthElementGroup{{Elements: []map[string]any{{"target": "Product.cost"}}}}

	dec, err := a.AuthorizeQuery(context.Background(), nil, "Bearer "+token, groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != executor.AuthAllowAll {
		t.Fatalf("expected AuthAllowAll, got %v", dec.Kind)
	}
}

func TestScopesAuthorizer_MissingTokenDeniesAll(t *testing.T) {
	key := []byte("test-signing-key")
	sch := mustComposeScopedSchema(t)
	a := NewScopesAuthorizer(sch, func(*jwt.Token) (any, error) { return key, nil })

	dec, err := a.AuthorizeQuery(context.Background(), nil, "", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != executor.AuthDenyAll {
		t.Fatalf("expected AuthDenyAll for a missing token, got %v", dec.Kind)
	}
}

func TestScopesAuthorizer_UnscopedFieldIsUnaffected(t *testing.T) {
	key := []byte("test-signing-key")
	sch := mustComposeScopedSchema(t)
	a := NewScopesAuthorizer(sch, func(*jwt.Token) (any, error) { return key, nil })

	token := signToken(t, key, "")
	groups := []executor.AuthElementGroup{{Elements: []map[string]any{{"target": "Product.name"}}}}

	dec, err := a.AuthorizeQuery(context.Background(), nil, "Bearer "+token, groups)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Kind != executor.AuthAllowAll {
		t.Fatalf("expected AuthAllowAll for a field without @requires_scopes, got %v", dec.Kind)
	}
}
