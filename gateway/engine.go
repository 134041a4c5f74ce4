package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/n9te9/go-graphql-federation-gateway/federation/cache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/executor"
	"github.com/n9te9/go-graphql-federation-gateway/federation/opcache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/internal/auth"
)

// entityCacheSize and entityCacheTTL bound the gateway-wide entity response
// cache. The TTL is the lifetime of every entry: a field's
// @cacheControl(maxAge:) only decides whether a response is cached at all
// and does not shorten that lifetime.
const (
	entityCacheSize = 10000
	entityCacheTTL  = 5 * time.Minute
)

// executionEngine bundles the read-only components required to serve
// GraphQL requests against one composed schema generation.
type executionEngine struct {
	schema *schema.Schema
	ops    *opcache.Cache
	driver *executor.Driver
}

// buildEngine composes a new Schema from the given SDLs and host map, then
// wraps it with a fresh operation cache and execution driver. The order
// subgraphs are processed in follows the iteration order of sdls, which is
// non-deterministic in Go maps; schema.Compose assigns subgraph ids in that
// order and records a field defined by several subgraphs as owned by the
// last one processed, so those can differ between two builds from the same
// maps. An empty sdls map is an error.
func buildEngine(sdls, hosts map[string]string, httpClient *http.Client, opCacheSize int, jwtSigningKey string) (*executionEngine, error) {
	if len(sdls) == 0 {
		return nil, fmt.Errorf("composition failed: no subgraph SDLs provided")
	}
	subgraphs := make([]schema.SubgraphSDL, 0, len(sdls))
	for name, sdl := range sdls {
		subgraphs = append(subgraphs, schema.SubgraphSDL{Name: name, SDL: []byte(sdl), Host: hosts[name]})
	}

	sch, err := schema.Compose(subgraphs)
	if err != nil {
		return nil, fmt.Errorf("composition failed: %w", err)
	}

	fetcher := executor.NewHTTPFetcher(httpClient, sch)

	ops, err := opcache.New(opCacheSize)
	if err != nil {
		return nil, fmt.Errorf("operation cache: %w", err)
	}

	driver := executor.NewDriver(sch, fetcher, scopesAuthorizer(sch, jwtSigningKey)).
		WithCache(cache.New(entityCacheSize, entityCacheTTL))

	return &executionEngine{
		schema: sch,
		ops:    ops,
		driver: driver,
	}, nil
}

// scopesAuthorizer returns nil when no signing key is configured, leaving
// @requires_scopes unenforced (matching the gateway's pre-auth behavior)
// rather than rejecting every request against a key nobody configured.
func scopesAuthorizer(sch *schema.Schema, signingKey string) executor.AuthorizationExtension {
	if signingKey == "" {
		return nil
	}
	key := []byte(signingKey)
	keyFunc := func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return key, nil
	}
	return auth.NewScopesAuthorizer(sch, keyFunc)
}
