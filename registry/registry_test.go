package registry

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

const registryProductSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
}

type Query {
	product(id: ID!): Product
}
`

func TestRegisterGateway_ValidSubgraphReturnsNoContent(t *testing.T) {
	r := NewRegistry()
	r.Start()

	body, _ := json.Marshal(RegistrationRequest{
		RegistrationGraphs: []RegistrationGraph{
			{Name: "products", Host: "http://products.example.com", SDL: registryProductSDL},
		},
	})

	req := httptest.NewRequest("POST", "/schema/registration", bytes.NewReader(body))
	w := httptest.NewRecorder()

	r.RegisterGateway(w, req)

	if w.Code != 204 {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterGateway_InvalidSDLIsRejected(t *testing.T) {
	r := NewRegistry()
	r.Start()

	body, _ := json.Marshal(RegistrationRequest{
		RegistrationGraphs: []RegistrationGraph{
			{Name: "broken", Host: "http://broken.example.com", SDL: "not valid graphql sdl {{{"},
		},
	})

	req := httptest.NewRequest("POST", "/schema/registration", bytes.NewReader(body))
	w := httptest.NewRecorder()

	r.RegisterGateway(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400 for an SDL that fails composition, got %d", w.Code)
	}
}

func TestRegisterGateway_MalformedJSONIsRejected(t *testing.T) {
	r := NewRegistry()
	r.Start()

	req := httptest.NewRequest("POST", "/schema/registration", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()

	r.RegisterGateway(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400 for malformed JSON, got %d", w.Code)
	}
}

func TestServeHTTP_UnknownPathReturnsNotFound(t *testing.T) {
	r := NewRegistry()
	req := httptest.NewRequest("POST", "/unknown", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != 404 {
		t.Fatalf("expected 404 for an unknown path, got %d", w.Code)
	}
}
