package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-federation-gateway/federation/errcode"
	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
	"github.com/n9te9/go-graphql-federation-gateway/federation/opcache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/planner"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/internal/batching"
	"github.com/n9te9/go-graphql-federation-gateway/internal/csrf"
	"github.com/n9te9/go-graphql-federation-gateway/internal/httpnegotiate"
	"github.com/n9te9/go-graphql-federation-gateway/internal/ratelimit"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type GatewayService struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

type GatewayOption struct {
	Endpoint                    string               `yaml:"endpoint"`
	ServiceName                 string               `yaml:"service_name"`
	Port                        int                  `yaml:"port"`
	TimeoutDuration             string               `yaml:"timeout_duration" default:"5s"`
	EnableHangOverRequestHeader bool                 `yaml:"enable_hang_over_request_header" default:"true"`
	Services                    []GatewayService     `yaml:"services"`
	Opentelemetry               OpentelemetrySetting `yaml:"opentelemetry"`
	DisableIntrospection        bool                 `yaml:"disable_introspection"`
	CSRFProtectionEnabled       bool                 `yaml:"csrf_protection_enabled" default:"true"`
	BatchingEnabled             bool                 `yaml:"batching_enabled"`
	BatchingLimit               int                  `yaml:"batching_limit" default:"10"`
	OperationCacheSize          int                  `yaml:"operation_cache_size" default:"1000"`
	RateLimitRPS                float64              `yaml:"rate_limit_rps"`
	RateLimitBurst              int                  `yaml:"rate_limit_burst"`
	JWTSigningKey               string               `yaml:"jwt_signing_key"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable bool `yaml:"enable" default:"false"`
}

// Gateway serves GraphQL-over-HTTP against one composed supergraph. Its
// engine is held behind an atomic pointer so SwapEngine can hot-reload a
// newly composed schema (a registry push) without any request in flight
// observing a half-updated schema.
type Gateway struct {
	option GatewayOption

	engine  atomic.Pointer[executionEngine]
	limiter *ratelimit.Limiter
	metrics *gatewayMetrics
}

var _ http.Handler = (*Gateway)(nil)

func NewGateway(option GatewayOption) (*Gateway, error) {
	sdls := map[string]string{}
	hosts := map[string]string{}
	for _, s := range option.Services {
		var sdl []byte
		for _, f := range s.SchemaFiles {
			src, err := os.ReadFile(f)
			if err != nil {
				return nil, err
			}
			sdl = append(sdl, src...)
		}
		sdls[s.Name] = string(sdl)
		hosts[s.Name] = s.Host
	}

	httpClient := &http.Client{Timeout: 3 * time.Second}
	if option.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	opCacheSize := option.OperationCacheSize
	if opCacheSize <= 0 {
		opCacheSize = 1000
	}

	engine, err := buildEngine(sdls, hosts, httpClient, opCacheSize, option.JWTSigningKey)
	if err != nil {
		return nil, err
	}
	applyOptionSettings(engine.schema, option)

	gw := &Gateway{option: option}
	gw.engine.Store(engine)

	if option.RateLimitRPS > 0 {
		gw.limiter = ratelimit.New(option.RateLimitRPS, option.RateLimitBurst)
	}

	if m, err := newGatewayMetrics(option.ServiceName); err == nil {
		gw.metrics = m
	}

	return gw, nil
}

// applyOptionSettings overlays the YAML-configured settings onto the
// defaults schema.Compose already filled in, rather than replacing them
// outright, so fields the option doesn't expose (retry/timeout policy) keep
// their composed defaults.
func applyOptionSettings(sch *schema.Schema, o GatewayOption) {
	sch.Settings.DisableIntrospection = o.DisableIntrospection
	sch.Settings.CSRFProtectionEnabled = o.CSRFProtectionEnabled
	sch.Settings.BatchingEnabled = o.BatchingEnabled
	if o.BatchingLimit > 0 {
		sch.Settings.BatchingLimit = o.BatchingLimit
	}
	if o.RateLimitRPS > 0 {
		sch.Settings.RateLimitRPS = o.RateLimitRPS
		sch.Settings.RateLimitBurst = o.RateLimitBurst
	}
}

// SwapEngine atomically replaces the engine backing future requests with one
// composed from sdls/hosts, leaving any request already dispatched against
// the old engine to finish undisturbed.
func (g *Gateway) SwapEngine(sdls, hosts map[string]string, httpClient *http.Client) error {
	opCacheSize := g.option.OperationCacheSize
	if opCacheSize <= 0 {
		opCacheSize = 1000
	}
	engine, err := buildEngine(sdls, hosts, httpClient, opCacheSize, g.option.JWTSigningKey)
	if err != nil {
		return err
	}
	applyOptionSettings(engine.schema, g.option)
	g.engine.Store(engine)
	return nil
}

type graphqlRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data   map[string]any          `json:"data,omitempty"`
	Errors []executor.GraphqlError `json:"errors,omitempty"`
}

func errorResponse(code, message string) graphqlResponse {
	return graphqlResponse{Errors: []executor.GraphqlError{{
		Message:    message,
		Extensions: map[string]any{"code": code},
	}}}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/schema/registration" {
		g.ServeRegistration(w, r)
		return
	}

	start := time.Now()
	engine := g.engine.Load()
	requestID := uuid.NewString()

	if engine.schema.Settings.CSRFProtectionEnabled && r.Method == http.MethodPost && !csrf.Check(r) {
		g.writeJSON(w, http.StatusForbidden, errorResponse(errcode.OperationNotPermitted, "request failed CSRF protection checks"))
		return
	}

	if g.limiter != nil && !g.limiter.Allow(clientKey(r)) {
		g.writeJSON(w, http.StatusTooManyRequests, errorResponse(errcode.RateLimited, "rate limit exceeded"))
		return
	}

	var operationName string
	switch r.Method {
	case http.MethodGet:
		req := requestFromQuery(r)
		operationName = req.OperationName
		g.writeJSON(w, http.StatusOK, g.execute(r.Context(), engine, req, r.Header, requestID))
	case http.MethodPost:
		operationName = g.servePost(w, r, engine, requestID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}

	if g.metrics != nil {
		g.metrics.recordRequest(r.Context(), start, operationName)
	}
}

func (g *Gateway) servePost(w http.ResponseWriter, r *http.Request, engine *executionEngine, requestID string) string {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.ParseError, err.Error()))
		return ""
	}

	isBatch, _, err := batching.Peek(bytes.NewReader(body))
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.ParseError, err.Error()))
		return ""
	}

	if isBatch {
		if !engine.schema.Settings.BatchingEnabled {
			g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.OperationNotPermitted, "batched requests are disabled"))
			return ""
		}
		return g.serveBatch(w, r, engine, body, requestID)
	}

	var req graphqlRequest
	if err := json.Unmarshal(body, &req); err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.ParseError, err.Error()))
		return ""
	}
	g.writeNegotiated(w, r, g.execute(r.Context(), engine, req, r.Header, requestID))
	return req.OperationName
}

func (g *Gateway) serveBatch(w http.ResponseWriter, r *http.Request, engine *executionEngine, body []byte, requestID string) string {
	elements, err := batching.SplitArray(body)
	if err != nil {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.ParseError, err.Error()))
		return ""
	}
	if len(elements) > engine.schema.Settings.BatchingLimit {
		g.writeJSON(w, http.StatusBadRequest, errorResponse(errcode.OperationNotPermitted, "batch exceeds the configured limit"))
		return ""
	}

	responses := make([]graphqlResponse, len(elements))
	var lastOp string
	for i, raw := range elements {
		var req graphqlRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			responses[i] = errorResponse(errcode.ParseError, err.Error())
			continue
		}
		lastOp = req.OperationName
		responses[i] = g.execute(r.Context(), engine, req, r.Header, requestID)
	}
	g.writeJSON(w, http.StatusOK, responses)
	return lastOp
}

func requestFromQuery(r *http.Request) graphqlRequest {
	q := r.URL.Query()
	req := graphqlRequest{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}
	if raw := q.Get("variables"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &req.Variables)
	}
	return req
}

// execute runs one operation end to end: parse, bind (with operation-cache
// reuse), lower to an execution plan, and drive it to a response.
func (g *Gateway) execute(ctx context.Context, engine *executionEngine, req graphqlRequest, headers http.Header, requestID string) graphqlResponse {
	l := lexer.New(req.Query)
	p := parser.New(l)
	doc := p.ParseDocument()
	if errs := p.Errors(); len(errs) > 0 {
		return errorResponse(errcode.ParseError, fmt.Sprint(errs))
	}

	key := opcache.KeyForQuery(req.Query, req.OperationName)
	bound, err := opcache.BindAndCache(ctx, engine.ops, key, doc, engine.schema, req.OperationName, req.Variables)
	if err != nil {
		var inaccessible *opcache.InaccessibleFieldError
		switch {
		case err == opcache.ErrIntrospectionDisabled:
			return errorResponse(errcode.IntrospectionDisabled, err.Error())
		case errors.As(err, &inaccessible):
			return errorResponse(errcode.InaccessibleField, err.Error())
		default:
			return errorResponse(errcode.ValidationError, err.Error())
		}
	}

	plan, err := planner.Build(engine.schema, bound, bound.RootTypeName)
	if err != nil {
		return errorResponse(errcode.NoResolverFound, err.Error())
	}

	result, err := engine.driver.Execute(ctx, plan, req.Variables, headers)
	if err != nil {
		slog.Error("execution driver failed", "request_id", requestID, "error", err)
		resp := errorResponse(errcode.Internal, err.Error())
		resp.Errors[0].Extensions["request_id"] = requestID
		return resp
	}

	errs := make([]executor.GraphqlError, 0, len(result.Errors))
	for _, e := range result.Errors {
		if e.Extensions == nil {
			e.Extensions = map[string]any{"code": errcode.SubgraphRequestError}
		}
		errs = append(errs, e)
	}
	return graphqlResponse{Data: result.Data, Errors: errs}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", httpnegotiate.JSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (g *Gateway) writeNegotiated(w http.ResponseWriter, r *http.Request, resp graphqlResponse) {
	mediaType := httpnegotiate.Negotiate(r.Header.Get("Accept"), []string{
		httpnegotiate.GraphQLResponseJSON, httpnegotiate.JSON,
	})
	if mediaType == "" {
		mediaType = httpnegotiate.JSON
	}
	status := http.StatusOK
	if mediaType == httpnegotiate.GraphQLResponseJSON && len(resp.Errors) > 0 && resp.Data == nil {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", mediaType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

type registrationGraph struct {
	Name string `json:"name"`
	Host string `json:"host"`
	SDL  string `json:"sdl"`
}

type registrationRequest struct {
	RegistrationGraphs []registrationGraph `json:"registration_graphs"`
}

// ServeRegistration is the gateway side of the registry's push-based schema
// propagation: it receives the registry's full validated subgraph set and
// hot-swaps the engine to match via SwapEngine.
func (g *Gateway) ServeRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body registrationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "failed to decode registration request", http.StatusBadRequest)
		return
	}

	sdls := make(map[string]string, len(body.RegistrationGraphs))
	hosts := make(map[string]string, len(body.RegistrationGraphs))
	for _, rg := range body.RegistrationGraphs {
		sdls[rg.Name] = rg.SDL
		hosts[rg.Name] = rg.Host
	}

	httpClient := &http.Client{Timeout: 3 * time.Second}
	if g.option.Opentelemetry.TracingSetting.Enable {
		httpClient.Transport = otelhttp.NewTransport(http.DefaultTransport)
	}

	if err := g.SwapEngine(sdls, hosts, httpClient); err != nil {
		http.Error(w, fmt.Sprintf("failed to recompose schema: %v", err), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) Start(port int) error {
	return http.ListenAndServe(fmt.Sprintf(":%d", port), g)
}
