// Package registry implements the schema registry: subgraphs push their SDL
// here, the registry validates the resulting supergraph composes cleanly,
// then forwards the full subgraph set to every known gateway host so each
// can hot-swap its own composed schema.
package registry

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

type Registry struct {
	gatewayHosts atomic.Value // map[string]struct{}
	addHostChan  chan string
	subgraphs    atomic.Value // map[string]RegistrationGraph, keyed by Name
	client       *http.Client
}

func NewRegistry() *Registry {
	gatewayHosts := atomic.Value{}
	gatewayHosts.Store(make(map[string]struct{}))

	subgraphs := atomic.Value{}
	subgraphs.Store(make(map[string]RegistrationGraph))

	return &Registry{
		gatewayHosts: gatewayHosts,
		addHostChan:  make(chan string),
		subgraphs:    subgraphs,
		client:       &http.Client{},
	}
}

func (r *Registry) Start() {
	go func() {
		for host := range r.addHostChan {
			r.addGatewayHost(host)
		}
	}()
}

func (r *Registry) addGatewayHost(host string) {
	current := r.gatewayHosts.Load().(map[string]struct{})
	next := make(map[string]struct{}, len(current)+1)
	for h := range current {
		next[h] = struct{}{}
	}
	next[host] = struct{}{}
	r.gatewayHosts.Store(next)
}

type RegistrationGraph struct {
	Name string `json:"name"`
	Host string `json:"host"`
	SDL  string `json:"sdl"`
}

type RegistrationRequest struct {
	RegistrationGraphs []RegistrationGraph `json:"registration_graphs"`
}

func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	switch req.URL.Path {
	case "/schema/registration":
		r.RegisterGateway(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// RegisterGateway merges the incoming subgraphs into the known set,
// recomposes the supergraph to make sure the result is still valid, and —
// only if composition succeeds — pushes the full merged set to every
// gateway host that has registered an address with this registry.
func (r *Registry) RegisterGateway(w http.ResponseWriter, req *http.Request) {
	var body RegistrationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "failed to decode request body", http.StatusBadRequest)
		return
	}

	merged := make(map[string]RegistrationGraph)
	for name, g := range r.subgraphs.Load().(map[string]RegistrationGraph) {
		merged[name] = g
	}
	for _, rg := range body.RegistrationGraphs {
		merged[rg.Name] = rg
	}

	subgraphSDLs := make([]schema.SubgraphSDL, 0, len(merged))
	for _, g := range merged {
		subgraphSDLs = append(subgraphSDLs, schema.SubgraphSDL{Name: g.Name, SDL: []byte(g.SDL), Host: g.Host})
	}
	if _, err := schema.Compose(subgraphSDLs); err != nil {
		http.Error(w, "composition rejected: "+err.Error(), http.StatusBadRequest)
		return
	}

	r.subgraphs.Store(merged)
	for _, rg := range body.RegistrationGraphs {
		r.addHostChan <- rg.Host
	}

	pushBody := RegistrationRequest{RegistrationGraphs: make([]RegistrationGraph, 0, len(merged))}
	for _, g := range merged {
		pushBody.RegistrationGraphs = append(pushBody.RegistrationGraphs, g)
	}
	r.pushToGateways(req, pushBody)

	w.WriteHeader(http.StatusNoContent)
}

func (r *Registry) pushToGateways(req *http.Request, body RegistrationRequest) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return
	}

	gatewayHosts := r.gatewayHosts.Load().(map[string]struct{})
	for sgHost := range gatewayHosts {
		sgHost := sgHost
		gatewayRequest, err := http.NewRequestWithContext(req.Context(), http.MethodPost, sgHost+"/schema/registration", bytes.NewReader(reqBody))
		if err != nil {
			continue
		}
		gatewayRequest.Header.Set("Content-Type", "application/json")

		go func() {
			resp, err := r.client.Do(gatewayRequest)
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
}
