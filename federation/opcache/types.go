// Package opcache binds and hashes GraphQL operations the caller has
// already parsed, and LRU-caches the bound form.
package opcache

import (
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
)

// QueryPartitionID indexes into BoundOperation.QueryPartitions, reused
// verbatim in the later plan (one plan per partition).
type QueryPartitionID uint32

// DataFieldID indexes into BoundOperation.DataFields.
type DataFieldID uint32

// QueryPartition is one subtree of the bound operation resolved by a single
// resolver.
type QueryPartition struct {
	ID                   QueryPartitionID
	ResolverDefinitionID schema.ResolverDefinitionID
	RequiredFields       schema.FieldSet
	SelectionSet         []ast.Selection
}

// DataField is one selected field in the bound operation.
type DataField struct {
	ID                      DataFieldID
	DefinitionID            schema.FieldDefinitionID
	QueryPartitionID        QueryPartitionID
	ParentFieldOutputID     *DataFieldID
	ResponseKey             string
	RequiredFieldsBySuper   schema.FieldSet
	RequiredFieldsBySubgraph schema.FieldSet
}

// BoundOperation is the per-request, validated+normalized form of an
// incoming operation, kept alive for the duration of one execution.
type BoundOperation struct {
	Document           *ast.Document
	OperationType       string // "query" | "mutation" | "subscription"
	RootTypeName        string // "Query" | "Mutation" | "Subscription"
	RootSelectionSet    []ast.Selection
	Variables           map[string]any
	QueryPartitions     []QueryPartition
	DataFields          []DataField
	MutationPartitionOrder []QueryPartitionID
}
