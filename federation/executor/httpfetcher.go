package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

// HTTPFetcher is the default SubgraphFetcher: a plain net/http POST with a
// JSON body, resolving EndpointID against the schema's subgraph table.
type HTTPFetcher struct {
	Client *http.Client
	Schema *schema.Schema
}

func NewHTTPFetcher(client *http.Client, sch *schema.Schema) *HTTPFetcher {
	return &HTTPFetcher{Client: client, Schema: sch}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, endpoint EndpointID, req SubgraphRequest) (SubgraphResponse, error) {
	host := f.resolveHost(endpoint)
	if host == "" {
		return SubgraphResponse{}, fmt.Errorf("unknown subgraph endpoint %q", endpoint)
	}

	body, err := json.Marshal(map[string]any{
		"query":         req.Query,
		"operationName": req.OperationName,
		"variables":     req.Variables,
	})
	if err != nil {
		return SubgraphResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(body))
	if err != nil {
		return SubgraphResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.Client.Do(httpReq)
	if err != nil {
		return SubgraphResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SubgraphResponse{}, fmt.Errorf("subgraph %q returned status %d", endpoint, resp.StatusCode)
	}

	var decoded SubgraphResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return SubgraphResponse{}, fmt.Errorf("decoding subgraph response: %w", err)
	}
	decoded.Headers = resp.Header
	return decoded, nil
}

func (f *HTTPFetcher) resolveHost(endpoint EndpointID) string {
	for i := range f.Schema.Subgraphs() {
		sg := f.Schema.Subgraphs()[i]
		if f.Schema.String(sg.Name) == string(endpoint) {
			return sg.Host
		}
	}
	return ""
}
