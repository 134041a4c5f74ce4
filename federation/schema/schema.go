package schema

import "sort"

// Schema is the process-wide, immutable-after-build supergraph model.
// Every cross-reference is a small integer id indexing into one of the
// vectors below; nothing here is a pointer into another struct. This keeps
// the store trivially shareable by reference across concurrent requests,
// fully immutable once composed, and trivially serializable for
// cross-process caching of prepared operations.
type Schema struct {
	strings []string

	objects      []ObjectDefinition
	interfaces   []InterfaceDefinition
	unions       []UnionDefinition
	enums        []EnumDefinition
	scalars      []ScalarDefinition
	inputObjects []InputObjectDefinition

	fields    []FieldDefinition
	resolvers []ResolverDefinition
	subgraphs []Subgraph

	// typeDefinitionsOrderedByName holds one entry per definition, sorted by
	// name, for O(log n) DefinitionByName lookup.
	typeDefinitionsOrderedByName []DefinitionID

	objectInaccessible       bitset
	interfaceInaccessible    bitset
	unionInaccessible        bitset
	enumInaccessible         bitset
	scalarInaccessible       bitset
	inputObjectInaccessible  bitset

	QueryType    ObjectID
	MutationType ObjectID
	HasMutation  bool

	Settings Settings
}

// String resolves a StringID. Out-of-range ids are a build-time invariant
// violation and panic rather than silently returning "".
func (s *Schema) String(id StringID) string {
	return s.strings[id]
}

// Field returns the field definition for id.
func (s *Schema) Field(id FieldDefinitionID) *FieldDefinition {
	return &s.fields[id]
}

// Resolver returns the resolver definition for id.
func (s *Schema) Resolver(id ResolverDefinitionID) *ResolverDefinition {
	return &s.resolvers[id]
}

// Subgraph returns the subgraph record for id.
func (s *Schema) Subgraph(id SubgraphID) *Subgraph {
	return &s.subgraphs[id]
}

// Subgraphs returns every subgraph record, for host resolution by name.
func (s *Schema) Subgraphs() []Subgraph {
	return s.subgraphs
}

// Object returns the object definition for id.
func (s *Schema) Object(id ObjectID) *ObjectDefinition {
	return &s.objects[id]
}

// Interface returns the interface definition for id.
func (s *Schema) Interface(id InterfaceID) *InterfaceDefinition {
	return &s.interfaces[id]
}

// Union returns the union definition for id.
func (s *Schema) Union(id UnionID) *UnionDefinition {
	return &s.unions[id]
}

// Enum returns the enum definition for id.
func (s *Schema) Enum(id EnumID) *EnumDefinition {
	return &s.enums[id]
}

// InputObject returns the input object definition for id.
func (s *Schema) InputObject(id InputObjectID) *InputObjectDefinition {
	return &s.inputObjects[id]
}

// DefinitionByName performs the O(log n) binary search over the
// name-sorted definition vector.
func (s *Schema) DefinitionByName(name string) (DefinitionID, bool) {
	i := sort.Search(len(s.typeDefinitionsOrderedByName), func(i int) bool {
		return s.nameOf(s.typeDefinitionsOrderedByName[i]) >= name
	})
	if i < len(s.typeDefinitionsOrderedByName) && s.nameOf(s.typeDefinitionsOrderedByName[i]) == name {
		return s.typeDefinitionsOrderedByName[i], true
	}
	return DefinitionID{}, false
}

func (s *Schema) nameOf(id DefinitionID) string {
	switch id.Kind {
	case DefinitionKindObject:
		return s.String(s.objects[id.Index].Name)
	case DefinitionKindInterface:
		return s.String(s.interfaces[id.Index].Name)
	case DefinitionKindUnion:
		return s.String(s.unions[id.Index].Name)
	case DefinitionKindEnum:
		return s.String(s.enums[id.Index].Name)
	case DefinitionKindScalar:
		return s.String(s.scalars[id.Index].Name)
	case DefinitionKindInputObject:
		return s.String(s.inputObjects[id.Index].Name)
	}
	return ""
}

// Inaccessible reports whether a definition's bit is set in the per-kind
// inaccessible bitsets. Compose allocates those bitsets but sets no bit, so
// this returns false for every definition: a type-level @inaccessible
// directive is not recorded. Field-level @inaccessible is recorded and
// reported by FieldInaccessible.
func (s *Schema) Inaccessible(id DefinitionID) bool {
	switch id.Kind {
	case DefinitionKindObject:
		return s.objectInaccessible.get(id.Index)
	case DefinitionKindInterface:
		return s.interfaceInaccessible.get(id.Index)
	case DefinitionKindUnion:
		return s.unionInaccessible.get(id.Index)
	case DefinitionKindEnum:
		return s.enumInaccessible.get(id.Index)
	case DefinitionKindScalar:
		return s.scalarInaccessible.get(id.Index)
	case DefinitionKindInputObject:
		return s.inputObjectInaccessible.get(id.Index)
	}
	return false
}

// FieldInaccessible reports whether a field itself is marked @inaccessible,
// independent of whether its owning type is.
func (s *Schema) FieldInaccessible(id FieldDefinitionID) bool {
	return s.fields[id].Inaccessible
}

// RequiresForSubgraph returns the FieldSet of sibling fields that must also
// be resolved when field is resolved in subgraph.
func (s *Schema) RequiresForSubgraph(field FieldDefinitionID, sg SubgraphID) FieldSet {
	return s.fields[field].RequiresBySubgraph[sg]
}

// ProvidesForSubgraph returns the FieldSet a field promises to additionally
// resolve on its return type when reached through sg.
func (s *Schema) ProvidesForSubgraph(field FieldDefinitionID, sg SubgraphID) FieldSet {
	return s.fields[field].ProvidesBySubgraph[sg]
}

// Walk returns a lightweight, copyable view carrying (schema, id) for
// ergonomic traversal without the caller threading *Schema everywhere.
func (s *Schema) Walk(id FieldDefinitionID) FieldWalker {
	return FieldWalker{schema: s, id: id}
}

// FieldWalker is the Copy view returned by Schema.Walk.
type FieldWalker struct {
	schema *Schema
	id     FieldDefinitionID
}

func (w FieldWalker) Name() string             { return w.schema.String(w.schema.fields[w.id].Name) }
func (w FieldWalker) Definition() *FieldDefinition { return &w.schema.fields[w.id] }
func (w FieldWalker) ID() FieldDefinitionID     { return w.id }
