package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

const inaccessibleProductSDL = `
type Product @key(fields: "id") {
	id: ID!
	name: String!
	internalCode: String! @inaccessible
}

type Query {
	product(id: ID!): Product
}
`

func writeTempSchema(t *testing.T, sdl string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "product.graphql")
	if err := os.WriteFile(path, []byte(sdl), 0o644); err != nil {
		t.Fatalf("failed to write test schema: %v", err)
	}
	return path
}

func newTestGateway(t *testing.T, sdl string) *Gateway {
	t.Helper()
	gw, err := NewGateway(GatewayOption{
		ServiceName:           "test-gateway",
		CSRFProtectionEnabled: true,
		Services: []GatewayService{{
			Name:        "product",
			Host:        "http://product.example.com",
			SchemaFiles: []string{writeTempSchema(t, sdl)},
		}},
	})
	if err != nil {
		t.Fatalf("NewGateway failed: %v", err)
	}
	return gw
}

func postGraphQL(gw *Gateway, query string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(graphqlRequest{Query: query})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)
	return w
}

func errorCodes(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var resp graphqlResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	var codes []string
	for _, e := range resp.Errors {
		if code, ok := e.Extensions["code"].(string); ok {
			codes = append(codes, code)
		}
	}
	return codes
}

func TestGateway_QueryInaccessibleFieldFails(t *testing.T) {
	gw := newTestGateway(t, inaccessibleProductSDL)

	w := postGraphQL(gw, `{ product(id: "1") { id internalCode } }`)
	codes := errorCodes(t, w)

	found := false
	for _, c := range codes {
		if c == "INACCESSIBLE_FIELD" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an INACCESSIBLE_FIELD error, got codes: %v", codes)
	}
}

func TestGateway_QueryAccessibleFieldSucceeds(t *testing.T) {
	gw := newTestGateway(t, inaccessibleProductSDL)

	w := postGraphQL(gw, `{ product(id: "1") { id name } }`)
	for _, c := range errorCodes(t, w) {
		if c == "INACCESSIBLE_FIELD" {
			t.Errorf("unexpected INACCESSIBLE_FIELD error for an accessible selection")
		}
	}
}

func TestGateway_CSRFProtectionRejectsPlainPost(t *testing.T) {
	gw := newTestGateway(t, inaccessibleProductSDL)

	body, _ := json.Marshal(graphqlRequest{Query: `{ product(id: "1") { id } }`})
	req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader(body))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("expected CSRF rejection (403), got %d", w.Code)
	}
}

func TestGateway_ServeRegistrationSwapsEngine(t *testing.T) {
	gw := newTestGateway(t, inaccessibleProductSDL)

	payload, _ := json.Marshal(registrationRequest{RegistrationGraphs: []registrationGraph{{
		Name: "product",
		Host: "http://product.example.com",
		SDL:  inaccessibleProductSDL,
	}}})
	req := httptest.NewRequest(http.MethodPost, "/schema/registration", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from registration, got %d: %s", w.Code, w.Body.String())
	}
}
