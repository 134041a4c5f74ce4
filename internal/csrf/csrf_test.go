package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCheck_GetAlwaysPasses(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/graphql", nil)
	if !Check(r) {
		t.Error("expected GET requests to always pass the CSRF check")
	}
}

func TestCheck_SimpleFormContentTypeWithNoOtherHeaderFails(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if Check(r) {
		t.Error("expected a simple form POST with no mitigation header to fail the CSRF check")
	}
}

func TestCheck_JSONContentTypePasses(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Content-Type", "application/json")
	if !Check(r) {
		t.Error("expected a non-simple Content-Type to pass the CSRF check on its own")
	}
}

func TestCheck_RequestedWithHeaderPasses(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	r.Header.Set("Content-Type", "text/plain")
	r.Header.Set("X-Requested-With", "XMLHttpRequest")
	if !Check(r) {
		t.Error("expected X-Requested-With to satisfy the CSRF mitigation even with a simple Content-Type")
	}
}

func TestCheck_NoHeadersAtAllFails(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	if Check(r) {
		t.Error("expected a POST with no Content-Type or mitigation header to fail")
	}
}
