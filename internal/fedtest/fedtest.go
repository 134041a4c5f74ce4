// Package fedtest provides small test doubles shared across the gateway's
// package tests: a SubgraphFetcher that replays canned responses and
// records what it was asked, and a no-op AuthorizationExtension.
package fedtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
)

// RecordingFetcher replays one canned SubgraphResponse per endpoint and
// records every request it receives, so tests can assert on the exact
// query/variables a plan produced.
type RecordingFetcher struct {
	mu        sync.Mutex
	Responses map[executor.EndpointID]executor.SubgraphResponse
	Requests  []RecordedRequest
}

type RecordedRequest struct {
	Endpoint executor.EndpointID
	Request  executor.SubgraphRequest
}

func NewRecordingFetcher() *RecordingFetcher {
	return &RecordingFetcher{Responses: map[executor.EndpointID]executor.SubgraphResponse{}}
}

func (f *RecordingFetcher) Fetch(ctx context.Context, endpoint executor.EndpointID, req executor.SubgraphRequest) (executor.SubgraphResponse, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, RecordedRequest{Endpoint: endpoint, Request: req})
	resp, ok := f.Responses[endpoint]
	f.mu.Unlock()
	if !ok {
		return executor.SubgraphResponse{}, fmt.Errorf("fedtest: no canned response for endpoint %q", endpoint)
	}
	return resp, nil
}

// AllowAllAuth is an AuthorizationExtension that never denies anything.
type AllowAllAuth struct{}

func (AllowAllAuth) AuthorizeQuery(ctx context.Context, headers map[string][]string, token string, groups []executor.AuthElementGroup) (executor.AuthorizationDecisions, error) {
	return executor.AuthorizationDecisions{Kind: executor.AuthAllowAll}, nil
}

// TokenFetcher authorizes a request only if it carries the expected bearer
// token; any other token gets an AuthDenyAll decision for the whole
// request, for exercising the AuthDenyAll path in tests.
type TokenFetcher struct {
	ExpectedToken string
}

func (t TokenFetcher) AuthorizeQuery(ctx context.Context, headers map[string][]string, token string, groups []executor.AuthElementGroup) (executor.AuthorizationDecisions, error) {
	if token == t.ExpectedToken {
		return executor.AuthorizationDecisions{Kind: executor.AuthAllowAll}, nil
	}
	return executor.AuthorizationDecisions{
		Kind:         executor.AuthDenyAll,
		DenyAllError: &executor.GraphqlError{Message: "unauthenticated"},
	}, nil
}
