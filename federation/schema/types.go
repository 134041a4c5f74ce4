package schema

// TypeRecord packs a named-type reference with its list/null wrapping, the
// same way the source schema encodes "[[String!]]!" as a definition id plus
// a wrapping word rather than a recursive type tree.
type TypeRecord struct {
	Definition DefinitionID
	// Wrapping has one bit per list wrapper: bit i is set for the list at
	// nesting depth i, counting from the outermost list as bit 0. Non-null
	// markers are not recorded in Wrapping; Nullable records only the
	// outermost one. A plain named type has Wrapping == 0, Depth == 0.
	Wrapping uint8
	Depth    uint8
	Nullable bool
}

// OverrideDirective records a field's @override(from: "...").
// FromName holds the raw subgraph name until resolveOverrides can resolve
// it against the full subgraph index; FromSubgraph is filled in then.
type OverrideDirective struct {
	FromName     string
	FromSubgraph SubgraphID
}

// CacheControlDirective records a field's @cacheControl(maxAge: N, scope: ...).
type CacheControlDirective struct {
	MaxAgeSeconds int
	Scope         string
}

// HeaderRule describes one entry of settings.header_rules.
type HeaderRule struct {
	Name    string
	Forward bool
	Rename  string
}

// TrustedDocumentsConfig gates the doc_id request field.
type TrustedDocumentsConfig struct {
	Enabled bool
	Bypass  bool
}

// FieldSet is a parsed federation field-set literal ("@requires"/"@provides"),
// kept as a flat list of dotted paths rather than a tree: references stay
// shallow (single level or "a.b" nesting), and a flat list is enough to
// build both the requirement terminals in the query graph and the
// representation payloads sent to subgraphs.
type FieldSet []string

// ResolverKind is the closed tagged union of ways a field can be resolved.
type ResolverKind uint8

const (
	ResolverGraphqlRootField ResolverKind = iota
	ResolverGraphqlFederationEntity
	ResolverFieldExtension
	ResolverSelectionSetExtension
	ResolverLookup
	ResolverIntrospection
)

// ResolverDefinition is one feasible way to resolve a field.
type ResolverDefinition struct {
	Kind      ResolverKind
	Subgraph  SubgraphID
	TypeName  StringID
	FieldName StringID
	// Weight is the inherent cost used by the query graph builder:
	// same-subgraph continuations are 1, cross-subgraph @key hops are
	// higher, introspection fallbacks higher still.
	Weight int
}

// FieldDefinition is one field on an object or interface.
type FieldDefinition struct {
	Name     StringID
	Owner    DefinitionID
	Type     TypeRecord
	Args     []ArgumentDefinition
	Resolver ResolverDefinitionID

	// RequiresBySubgraph and ProvidesBySubgraph are keyed by SubgraphID so
	// a per-subgraph lookup is O(1) instead of a linear scan.
	RequiresBySubgraph map[SubgraphID]FieldSet
	ProvidesBySubgraph map[SubgraphID]FieldSet

	Shareable      bool
	External       bool
	Inaccessible   bool
	Deprecated     bool
	DeprecationMsg string

	Override      *OverrideDirective
	RequiresScopes [][]string
	CacheControl   *CacheControlDirective
}

// ArgumentDefinition is a field or directive argument.
type ArgumentDefinition struct {
	Name StringID
	Type TypeRecord
}

// EntityKey is one @key(fields: "...", resolvable: ...) entry.
type EntityKey struct {
	Fields     FieldSet
	Resolvable bool
}

// ObjectDefinition is an object type, possibly an entity (has EntityKeys).
type ObjectDefinition struct {
	Name       StringID
	Fields     []FieldDefinitionID
	EntityKeys []EntityKey
	// OwnedBy records, per field id, the subgraph that owns (can resolve)
	// that field: the last subgraph in composition order that defines it
	// without @external. A field every subgraph marks @external has no entry.
	OwnedBy map[FieldDefinitionID]SubgraphID
}

type InterfaceDefinition struct {
	Name   StringID
	Fields []FieldDefinitionID
}

type UnionDefinition struct {
	Name    StringID
	Members []ObjectID
}

type EnumValue struct {
	Name         StringID
	Inaccessible bool
}

type EnumDefinition struct {
	Name   StringID
	Values []EnumValue
}

type ScalarDefinition struct {
	Name StringID
}

type InputObjectDefinition struct {
	Name   StringID
	Fields []ArgumentDefinition
}

// Subgraph is a single upstream GraphQL service reference.
type Subgraph struct {
	Name StringID
	Host string
}

// Settings bundles process-wide gateway configuration consumed by the core.
type Settings struct {
	TimeoutMS            int64
	OperationLimit        int
	BatchingEnabled       bool
	BatchingLimit         int
	DisableIntrospection  bool
	CSRFProtectionEnabled bool
	RetryAttempts         int
	RetryTimeout          string
	HeaderRules           []HeaderRule
	TrustedDocuments      *TrustedDocumentsConfig
	RateLimitRPS          float64
	RateLimitBurst        int
}
