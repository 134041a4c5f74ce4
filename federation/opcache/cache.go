package opcache

import (
	"context"
	"crypto/sha256"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one bound operation. Trusted-document lookups
// (doc_id) hash the document id string instead of the raw query text.
type CacheKey struct {
	DocumentHash [32]byte
	OperationName string
}

func KeyForQuery(query, operationName string) CacheKey {
	return CacheKey{DocumentHash: sha256.Sum256([]byte(query)), OperationName: operationName}
}

func KeyForDocID(docID, operationName string) CacheKey {
	return CacheKey{DocumentHash: sha256.Sum256([]byte("doc:" + docID)), OperationName: operationName}
}

// Cache is a shared LRU keyed by (document_hash, operation_name) with
// interior synchronization; cache misses trigger at-most-one concurrent
// bind per key via a single-flight lock. hashicorp/golang-lru/v2 already
// serializes Get/Add internally; singleflight.Group adds the
// at-most-one-bind-in-flight guarantee on top.
type Cache struct {
	lru    *lru.Cache[CacheKey, *BoundOperation]
	flight singleflight.Group
}

func New(size int) (*Cache, error) {
	l, err := lru.New[CacheKey, *BoundOperation](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// GetOrBind returns the cached BoundOperation for key, or parses+binds doc
// via bindFn, collapsing concurrent misses on the same key into one bind.
func (c *Cache) GetOrBind(ctx context.Context, key CacheKey, bindFn func() (*BoundOperation, error)) (*BoundOperation, error) {
	if bound, ok := c.lru.Get(key); ok {
		return bound, nil
	}

	v, err, _ := c.flight.Do(cacheKeyString(key), func() (any, error) {
		if bound, ok := c.lru.Get(key); ok {
			return bound, nil
		}
		bound, err := bindFn()
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, bound)
		return bound, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*BoundOperation), nil
}

func cacheKeyString(k CacheKey) string {
	return string(k.DocumentHash[:]) + "\x00" + k.OperationName
}

// BindAndCache is the common entrypoint gateway.ServeHTTP calls: parse is
// assumed already done by the caller (the AST is cheap to re-parse per
// request; only the expensive Bind walk against the schema is cached).
func BindAndCache(ctx context.Context, c *Cache, key CacheKey, doc *ast.Document, sch *schema.Schema, operationName string, variables map[string]any) (*BoundOperation, error) {
	return c.GetOrBind(ctx, key, func() (*BoundOperation, error) {
		return Bind(doc, sch, operationName, variables)
	})
}
