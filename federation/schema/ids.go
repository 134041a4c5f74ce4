// Package schema is the supergraph schema store: an immutable, indexed,
// deduplicated representation of a composed federation schema.
package schema

// StringID indexes into Schema.strings.
type StringID uint32

// ObjectID indexes into Schema.objects.
type ObjectID uint32

// InterfaceID indexes into Schema.interfaces.
type InterfaceID uint32

// UnionID indexes into Schema.unions.
type UnionID uint32

// EnumID indexes into Schema.enums.
type EnumID uint32

// ScalarID indexes into Schema.scalars.
type ScalarID uint32

// InputObjectID indexes into Schema.inputObjects.
type InputObjectID uint32

// FieldDefinitionID indexes into Schema.fields.
type FieldDefinitionID uint32

// ResolverDefinitionID indexes into Schema.resolvers.
type ResolverDefinitionID uint32

// SubgraphID indexes into Schema.subgraphs.
type SubgraphID uint32

// DefinitionKind discriminates the tagged union a DefinitionID points at.
type DefinitionKind uint8

const (
	DefinitionKindObject DefinitionKind = iota
	DefinitionKindInterface
	DefinitionKindUnion
	DefinitionKindEnum
	DefinitionKindScalar
	DefinitionKindInputObject
)

// DefinitionID is a (kind, index) pair, letting type_definitions_ordered_by_name
// hold a single sorted vector across every definition kind.
type DefinitionID struct {
	Kind  DefinitionKind
	Index uint32
}
