package httpnegotiate

import "testing"

func TestNegotiate_EmptyAcceptDefaultsToFirstOffered(t *testing.T) {
	got := Negotiate("", []string{JSON, GraphQLResponseJSON})
	if got != JSON {
		t.Errorf("expected %q, got %q", JSON, got)
	}
}

func TestNegotiate_ExactMatchWins(t *testing.T) {
	got := Negotiate(GraphQLResponseJSON, []string{JSON, GraphQLResponseJSON})
	if got != GraphQLResponseJSON {
		t.Errorf("expected %q, got %q", GraphQLResponseJSON, got)
	}
}

func TestNegotiate_QualityValuesOrderPreference(t *testing.T) {
	accept := "application/json;q=0.5, application/graphql-response+json;q=0.9"
	got := Negotiate(accept, []string{JSON, GraphQLResponseJSON})
	if got != GraphQLResponseJSON {
		t.Errorf("expected the higher-quality media type %q, got %q", GraphQLResponseJSON, got)
	}
}

func TestNegotiate_WildcardMatchesAnyOffered(t *testing.T) {
	got := Negotiate("*/*", []string{JSON, GraphQLResponseJSON})
	if got != JSON {
		t.Errorf("expected the first offered type for a bare wildcard, got %q", got)
	}
}

func TestNegotiate_NoOverlapFallsBackToFirstOffered(t *testing.T) {
	got := Negotiate("text/html", []string{JSON, GraphQLResponseJSON})
	if got != JSON {
		t.Errorf("expected fallback to the first offered type, got %q", got)
	}
}
