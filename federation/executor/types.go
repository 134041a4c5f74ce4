// Package executor drives a lowered operation plan to completion: it
// dispatches ready plans/modifiers, shapes subgraph JSON into the response
// tree, propagates nulls per GraphQL semantics, and merges partial results
// with a single-threaded cooperative driver over a dependency DAG (see
// driver.go).
package executor

import (
	"context"
	"fmt"
)

// GraphqlError is the wire shape of one response error entry.
type GraphqlError struct {
	Message    string         `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// EndpointID identifies a subgraph endpoint for SubgraphFetcher.Fetch.
type EndpointID string

// SubgraphRequest is one outgoing request to a subgraph.
type SubgraphRequest struct {
	Query         string
	OperationName string
	Variables     map[string]any
	Extensions    map[string]any
	Headers       map[string][]string
}

// SubgraphResponse is the decoded shape of a subgraph's GraphQL response.
type SubgraphResponse struct {
	Data       map[string]any `json:"data"`
	Errors     []GraphqlError `json:"errors"`
	Extensions map[string]any `json:"extensions"`
	Headers    map[string][]string
}

// SubgraphFetcher is the external collaborator the core consumes; see
// httpfetcher.go for the default net/http-based implementation.
type SubgraphFetcher interface {
	Fetch(ctx context.Context, endpoint EndpointID, req SubgraphRequest) (SubgraphResponse, error)
}

// AuthorizationDecisions is the result of one AuthorizationExtension call:
// AllowAll, DenyAll(error), or DenySome keyed by element index.
type AuthorizationDecisions struct {
	Kind           AuthDecisionKind
	DenyAllError   *GraphqlError
	ElementToError map[int]GraphqlError
}

type AuthDecisionKind int

const (
	AuthAllowAll AuthDecisionKind = iota
	AuthDenyAll
	AuthDenySome
)

// AuthElementGroup is one group of elements an AuthorizationExtension call
// evaluates together (all elements sharing the same directive/rule).
type AuthElementGroup struct {
	Rule     string
	Elements []map[string]any
}

// AuthorizationExtension is the pluggable authorization boundary.
type AuthorizationExtension interface {
	AuthorizeQuery(ctx context.Context, headers map[string][]string, token string, groups []AuthElementGroup) (AuthorizationDecisions, error)
}

func errf(format string, args ...any) error { return fmt.Errorf(format, args...) }
