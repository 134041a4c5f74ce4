package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/n9te9/graphql-parser/ast"
	"github.com/n9te9/graphql-parser/lexer"
	"github.com/n9te9/graphql-parser/parser"
)

// SubgraphSDL is one subgraph's raw SDL plus its name and base URL, the
// composition input.
type SubgraphSDL struct {
	Name string
	SDL  []byte
	Host string
}

// builder accumulates the arena while walking parsed subgraph documents,
// filling index vectors directly instead of merging *ast.Document nodes
// in place.
type builder struct {
	strings   map[string]StringID
	stringsOrdered []string

	objects      map[string]*ObjectDefinition
	objectOrder  []string
	interfaces   map[string]*InterfaceDefinition
	interfaceOrder []string
	unions       map[string]*UnionDefinition
	unionOrder   []string
	enums        map[string]*EnumDefinition
	enumOrder    []string
	scalars      map[string]*ScalarDefinition
	scalarOrder  []string
	inputObjects map[string]*InputObjectDefinition
	inputOrder   []string

	fields    []FieldDefinition
	fieldKey  map[string]FieldDefinitionID // "Type.field" -> id
	// fieldTypeName is b.fields' raw (unwrapped) return type name, kept
	// alongside it so build() can resolve Type.Definition once every
	// definition kind has its final index.
	fieldTypeName []string

	subgraphs   []Subgraph
	subgraphIdx map[string]SubgraphID

	// fieldOwners records, per "Type.field", which subgraphs can resolve it
	// and whether it is external there.
	fieldOwners map[string][]fieldOwnership
}

type fieldOwnership struct {
	subgraph SubgraphID
	external bool
	shareable bool
}

// Compose merges a set of subgraph SDLs into one immutable Schema, the
// arena representation rather than a live merged *ast.Document.
func Compose(subgraphSDLs []SubgraphSDL) (*Schema, error) {
	b := &builder{
		strings:      map[string]StringID{},
		objects:      map[string]*ObjectDefinition{},
		interfaces:   map[string]*InterfaceDefinition{},
		unions:       map[string]*UnionDefinition{},
		enums:        map[string]*EnumDefinition{},
		scalars:      map[string]*ScalarDefinition{},
		inputObjects: map[string]*InputObjectDefinition{},
		fieldKey:     map[string]FieldDefinitionID{},
		subgraphIdx:  map[string]SubgraphID{},
		fieldOwners:  map[string][]fieldOwnership{},
	}

	for _, sg := range subgraphSDLs {
		sgID := b.internSubgraph(sg.Name, sg.Host)

		doc, err := parseSDL(sg.SDL)
		if err != nil {
			return nil, fmt.Errorf("subgraph %q: %w", sg.Name, err)
		}

		if err := b.mergeDocument(doc, sgID); err != nil {
			return nil, fmt.Errorf("subgraph %q: %w", sg.Name, err)
		}
	}

	b.resolveOverrides()

	return b.build(), nil
}

func parseSDL(src []byte) (*ast.Document, error) {
	l := lexer.New(string(src))
	p := parser.New(l)
	doc := p.ParseDocument()
	if len(p.Errors()) > 0 {
		return nil, fmt.Errorf("parse error: %v", p.Errors())
	}
	return doc, nil
}

func (b *builder) internString(s string) StringID {
	if id, ok := b.strings[s]; ok {
		return id
	}
	id := StringID(len(b.stringsOrdered))
	b.strings[s] = id
	b.stringsOrdered = append(b.stringsOrdered, s)
	return id
}

func (b *builder) internSubgraph(name, host string) SubgraphID {
	if id, ok := b.subgraphIdx[name]; ok {
		return id
	}
	id := SubgraphID(len(b.subgraphs))
	b.subgraphIdx[name] = id
	b.subgraphs = append(b.subgraphs, Subgraph{Name: b.internString(name), Host: host})
	return id
}

func (b *builder) mergeDocument(doc *ast.Document, sg SubgraphID) error {
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.ObjectTypeDefinition:
			b.mergeObject(d.Name.String(), d.Fields, d.Directives, false, sg)
		case *ast.ObjectTypeExtension:
			b.mergeObject(d.Name.String(), d.Fields, d.Directives, true, sg)
		case *ast.InterfaceTypeDefinition:
			b.mergeInterface(d.Name.String(), d.Fields)
		case *ast.UnionTypeDefinition:
			b.mergeUnion(d.Name.String(), d.Types)
		case *ast.EnumTypeDefinition:
			b.mergeEnum(d.Name.String(), d.Values)
		case *ast.ScalarTypeDefinition:
			b.mergeScalar(d.Name.String())
		case *ast.InputObjectTypeDefinition:
			b.mergeInputObject(d.Name.String(), d.Fields)
		}
	}
	return nil
}

func (b *builder) mergeObject(name string, fields []*ast.FieldDefinition, directives []*ast.Directive, isExtension bool, sg SubgraphID) {
	obj, ok := b.objects[name]
	if !ok {
		obj = &ObjectDefinition{Name: b.internString(name), OwnedBy: map[FieldDefinitionID]SubgraphID{}}
		b.objects[name] = obj
		b.objectOrder = append(b.objectOrder, name)
	}

	if keys := parseEntityKeys(directives); len(keys) > 0 {
		obj.EntityKeys = mergeEntityKeys(obj.EntityKeys, keys)
	}
	_ = isExtension

	for _, f := range fields {
		key := name + "." + f.Name.String()
		external := hasDirective(f.Directives, "external")
		shareable := hasDirective(f.Directives, "shareable")
		b.fieldOwners[key] = append(b.fieldOwners[key], fieldOwnership{subgraph: sg, external: external, shareable: shareable})

		fid, exists := b.fieldKey[key]
		if !exists {
			typ, typeName := typeRecordFromAST(f.Type, b)
			fd := FieldDefinition{
				Name:               b.internString(f.Name.String()),
				Owner:              DefinitionID{Kind: DefinitionKindObject},
				Type:               typ,
				Shareable:          shareable,
				External:           external,
				Inaccessible:       hasDirective(f.Directives, "inaccessible"),
				RequiresBySubgraph: map[SubgraphID]FieldSet{},
				ProvidesBySubgraph: map[SubgraphID]FieldSet{},
			}
			applyFieldDirectives(&fd, f.Directives, sg)
			b.fields = append(b.fields, fd)
			b.fieldTypeName = append(b.fieldTypeName, typeName)
			fid = FieldDefinitionID(len(b.fields) - 1)
			b.fieldKey[key] = fid
			obj.Fields = append(obj.Fields, fid)
		} else {
			applyFieldDirectives(&b.fields[fid], f.Directives, sg)
			if shareable {
				b.fields[fid].Shareable = true
			}
		}

		if !external {
			obj.OwnedBy[fid] = sg
		}
	}
}

func applyFieldDirectives(fd *FieldDefinition, directives []*ast.Directive, sg SubgraphID) {
	for _, d := range directives {
		switch d.Name {
		case "requires":
			fd.RequiresBySubgraph[sg] = splitFieldSet(firstArg(d))
		case "provides":
			fd.ProvidesBySubgraph[sg] = splitFieldSet(firstArg(d))
		case "override":
			fd.Override = &OverrideDirective{FromName: strings.Trim(firstArg(d), `"`)}
		case "requiresScopes", "requires_scopes":
			fd.RequiresScopes = append(fd.RequiresScopes, splitFieldSet(firstArg(d)))
		case "cacheControl":
			cc := &CacheControlDirective{}
			for _, arg := range d.Arguments {
				switch arg.Name.String() {
				case "maxAge":
					fmt.Sscanf(arg.Value.String(), "%d", &cc.MaxAgeSeconds)
				case "scope":
					cc.Scope = strings.Trim(arg.Value.String(), `"`)
				}
			}
			fd.CacheControl = cc
		case "deprecated":
			fd.Deprecated = true
			fd.DeprecationMsg = strings.Trim(firstArg(d), `"`)
		}
	}
}

// resolveOverrides is a second pass: @override(from:"name") needs the
// subgraph-name string, which is only resolvable once every subgraph in
// the composition has been interned.
func (b *builder) resolveOverrides() {
	for i := range b.fields {
		ov := b.fields[i].Override
		if ov == nil {
			continue
		}
		if sg, ok := b.subgraphIdx[ov.FromName]; ok {
			ov.FromSubgraph = sg
		}
	}
}

func firstArg(d *ast.Directive) string {
	if len(d.Arguments) == 0 {
		return ""
	}
	return strings.Trim(d.Arguments[0].Value.String(), `"`)
}

func splitFieldSet(raw string) FieldSet {
	return strings.Fields(raw)
}

func hasDirective(directives []*ast.Directive, name string) bool {
	for _, d := range directives {
		if d.Name == name {
			return true
		}
	}
	return false
}

func parseEntityKeys(directives []*ast.Directive) []EntityKey {
	var keys []EntityKey
	for _, d := range directives {
		if d.Name != "key" {
			continue
		}
		key := EntityKey{Resolvable: true}
		for _, arg := range d.Arguments {
			switch arg.Name.String() {
			case "fields":
				key.Fields = splitFieldSet(strings.Trim(arg.Value.String(), `"`))
			case "resolvable":
				if arg.Value.String() == "false" {
					key.Resolvable = false
				}
			}
		}
		keys = append(keys, key)
	}
	return keys
}

func mergeEntityKeys(existing, fresh []EntityKey) []EntityKey {
	seen := map[string]bool{}
	for _, k := range existing {
		seen[strings.Join(k.Fields, " ")] = true
	}
	for _, k := range fresh {
		if !seen[strings.Join(k.Fields, " ")] {
			existing = append(existing, k)
			seen[strings.Join(k.Fields, " ")] = true
		}
	}
	return existing
}

func (b *builder) mergeInterface(name string, fields []*ast.FieldDefinition) {
	iface, ok := b.interfaces[name]
	if !ok {
		iface = &InterfaceDefinition{Name: b.internString(name)}
		b.interfaces[name] = iface
		b.interfaceOrder = append(b.interfaceOrder, name)
	}
	for _, f := range fields {
		key := name + "." + f.Name.String()
		if _, exists := b.fieldKey[key]; !exists {
			typ, typeName := typeRecordFromAST(f.Type, b)
			fd := FieldDefinition{
				Name:               b.internString(f.Name.String()),
				Owner:              DefinitionID{Kind: DefinitionKindInterface},
				Type:               typ,
				RequiresBySubgraph: map[SubgraphID]FieldSet{},
				ProvidesBySubgraph: map[SubgraphID]FieldSet{},
			}
			b.fields = append(b.fields, fd)
			b.fieldTypeName = append(b.fieldTypeName, typeName)
			fid := FieldDefinitionID(len(b.fields) - 1)
			b.fieldKey[key] = fid
			iface.Fields = append(iface.Fields, fid)
		}
	}
}

func (b *builder) mergeUnion(name string, types []*ast.Name) {
	u, ok := b.unions[name]
	if !ok {
		u = &UnionDefinition{Name: b.internString(name)}
		b.unions[name] = u
		b.unionOrder = append(b.unionOrder, name)
	}
	_ = types // member resolution happens in build() once all objects exist
}

func (b *builder) mergeEnum(name string, values []*ast.EnumValueDefinition) {
	e, ok := b.enums[name]
	if !ok {
		e = &EnumDefinition{Name: b.internString(name)}
		b.enums[name] = e
		b.enumOrder = append(b.enumOrder, name)
	}
	existing := map[string]bool{}
	for _, v := range e.Values {
		existing[b.stringsOrdered[v.Name]] = true
	}
	for _, v := range values {
		n := v.Name.String()
		if !existing[n] {
			e.Values = append(e.Values, EnumValue{Name: b.internString(n)})
			existing[n] = true
		}
	}
}

func (b *builder) mergeScalar(name string) {
	if _, ok := b.scalars[name]; !ok {
		b.scalars[name] = &ScalarDefinition{Name: b.internString(name)}
		b.scalarOrder = append(b.scalarOrder, name)
	}
}

func (b *builder) mergeInputObject(name string, fields []*ast.InputValueDefinition) {
	io, ok := b.inputObjects[name]
	if !ok {
		io = &InputObjectDefinition{Name: b.internString(name)}
		b.inputObjects[name] = io
		b.inputOrder = append(b.inputOrder, name)
	}
	for _, f := range fields {
		typ, _ := typeRecordFromAST(f.Type, b)
		io.Fields = append(io.Fields, ArgumentDefinition{
			Name: b.internString(f.Name.String()),
			Type: typ,
		})
	}
}

// typeRecordFromAST lowers an AST type reference to a TypeRecord plus the
// unwrapped type name it points at. The name is carried alongside rather
// than resolved to a DefinitionID here: at merge time the final index of
// whichever kind of definition it names (object, enum, ...) isn't settled
// yet, since later subgraphs can still add to those vectors. build()
// re-resolves every field's Type.Definition by name once every kind's
// vector is final. mergeScalar is still called here so a bare custom
// scalar with no other declaration (e.g. "scalar DateTime") always has a
// definition to resolve to; build() drops the placeholder again for any
// name that turned out to belong to a non-scalar kind instead.
func typeRecordFromAST(t ast.Type, b *builder) (TypeRecord, string) {
	name, wrapping, depth, nullable := unwrapASTType(t)
	b.mergeScalar(name)
	return TypeRecord{Wrapping: wrapping, Depth: depth, Nullable: nullable}, name
}

// unwrapASTType flattens the parser's nested List/NonNull wrapper type into
// (baseName, wrapping bits, depth, outer-nullable), operating on the AST
// directly instead of a rendered string.
func unwrapASTType(t ast.Type) (string, uint8, uint8, bool) {
	s := t.String()
	nullable := true
	depth := uint8(0)
	var wrapping uint8
	i := 0
	for i < len(s) {
		switch {
		case s[len(s)-1] == '!' && i == 0:
			nullable = false
			s = s[:len(s)-1]
		case len(s) > 0 && s[0] == '[':
			wrapping |= 1 << depth
			depth++
			s = s[1 : len(s)-1]
			if len(s) > 0 && s[len(s)-1] == '!' {
				s = s[:len(s)-1]
			}
		default:
			i = len(s)
		}
	}
	return strings.TrimSuffix(strings.TrimPrefix(s, "[" ), "]"), wrapping, depth, nullable
}

func (b *builder) build() *Schema {
	s := &Schema{
		strings:   b.stringsOrdered,
		fields:    b.fields,
		subgraphs: b.subgraphs,
		Settings:  defaultSettings(),
	}

	for _, name := range b.objectOrder {
		obj := b.objects[name]
		s.objects = append(s.objects, *obj)
	}
	for _, name := range b.interfaceOrder {
		s.interfaces = append(s.interfaces, *b.interfaces[name])
	}
	for _, name := range b.unionOrder {
		s.unions = append(s.unions, *b.unions[name])
	}
	for _, name := range b.enumOrder {
		s.enums = append(s.enums, *b.enums[name])
	}
	for _, name := range b.scalarOrder {
		// typeRecordFromAST calls mergeScalar for every field type it sees,
		// including ones that turn out to name an object/interface/union/
		// enum/input type; drop those phantom placeholders here so the real
		// definition is the only one found by name below.
		if _, ok := b.objects[name]; ok {
			continue
		}
		if _, ok := b.interfaces[name]; ok {
			continue
		}
		if _, ok := b.unions[name]; ok {
			continue
		}
		if _, ok := b.enums[name]; ok {
			continue
		}
		if _, ok := b.inputObjects[name]; ok {
			continue
		}
		s.scalars = append(s.scalars, *b.scalars[name])
	}
	for _, name := range b.inputOrder {
		s.inputObjects = append(s.inputObjects, *b.inputObjects[name])
	}

	var defs []DefinitionID
	for i := range s.objects {
		defs = append(defs, DefinitionID{Kind: DefinitionKindObject, Index: uint32(i)})
	}
	for i := range s.interfaces {
		defs = append(defs, DefinitionID{Kind: DefinitionKindInterface, Index: uint32(i)})
	}
	for i := range s.unions {
		defs = append(defs, DefinitionID{Kind: DefinitionKindUnion, Index: uint32(i)})
	}
	for i := range s.enums {
		defs = append(defs, DefinitionID{Kind: DefinitionKindEnum, Index: uint32(i)})
	}
	for i := range s.scalars {
		defs = append(defs, DefinitionID{Kind: DefinitionKindScalar, Index: uint32(i)})
	}
	for i := range s.inputObjects {
		defs = append(defs, DefinitionID{Kind: DefinitionKindInputObject, Index: uint32(i)})
	}
	sort.Slice(defs, func(i, j int) bool { return s.nameOf(defs[i]) < s.nameOf(defs[j]) })
	s.typeDefinitionsOrderedByName = defs

	// Every definition vector now has its final index, so each field's
	// return type can be resolved by name instead of carrying the zero
	// DefinitionID (object index 0) typeRecordFromAST left in place.
	for i := range s.fields {
		name := b.fieldTypeName[i]
		if name == "" {
			continue
		}
		if id, ok := s.DefinitionByName(name); ok {
			s.fields[i].Type.Definition = id
		}
	}

	s.objectInaccessible = newBitset(len(s.objects))
	s.interfaceInaccessible = newBitset(len(s.interfaces))
	s.unionInaccessible = newBitset(len(s.unions))
	s.enumInaccessible = newBitset(len(s.enums))
	s.scalarInaccessible = newBitset(len(s.scalars))
	s.inputObjectInaccessible = newBitset(len(s.inputObjects))

	if qt, ok := s.findObject("Query"); ok {
		s.QueryType = qt
	}
	if mt, ok := s.findObject("Mutation"); ok {
		s.MutationType = mt
		s.HasMutation = true
	}

	return s
}

func (s *Schema) findObject(name string) (ObjectID, bool) {
	for i := range s.objects {
		if s.String(s.objects[i].Name) == name {
			return ObjectID(i), true
		}
	}
	return 0, false
}

func defaultSettings() Settings {
	return Settings{
		TimeoutMS:       10_000,
		OperationLimit:  10_000,
		BatchingEnabled: true,
		BatchingLimit:   10,
		RetryAttempts:   3,
		RetryTimeout:    "5s",
		RateLimitRPS:    50,
		RateLimitBurst:  100,
	}
}

// FieldOwners returns the subgraph recorded in OwnedBy for "Type.field":
// the last subgraph in composition order that defines it without
// @external. The result holds at most one subgraph, even when several
// subgraphs can resolve the field.
func (s *Schema) FieldOwners(typeName, fieldName string) []SubgraphID {
	obj, ok := s.findObject(typeName)
	if !ok {
		return nil
	}
	var owners []SubgraphID
	for fid, sg := range s.objects[obj].OwnedBy {
		if s.String(s.fields[fid].Name) == fieldName {
			owners = append(owners, sg)
		}
	}
	return owners
}

// EntityOwners returns the deduplicated set of subgraphs that own at least
// one field of typeName, i.e. every subgraph capable of acting as an entity
// boundary resolver for it. There's no per-subgraph record of which
// declared the type's @key directly, so ownership of any field is the best
// available signal that a subgraph contributed a definition of the type.
func (s *Schema) EntityOwners(typeName string) []SubgraphID {
	obj, ok := s.findObject(typeName)
	if !ok {
		return nil
	}
	seen := map[SubgraphID]bool{}
	var owners []SubgraphID
	for _, sg := range s.objects[obj].OwnedBy {
		if !seen[sg] {
			seen[sg] = true
			owners = append(owners, sg)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners
}

// FieldDefinitionByName looks up "typeName.fieldName" in the arena,
// independent of which subgraph(s) own it.
func (s *Schema) FieldDefinitionByName(typeName, fieldName string) (FieldDefinitionID, bool) {
	obj, ok := s.findObject(typeName)
	if !ok {
		return 0, false
	}
	for _, fid := range s.objects[obj].Fields {
		if s.String(s.fields[fid].Name) == fieldName {
			return fid, true
		}
	}
	return 0, false
}

// FieldReturnTypeName returns the unwrapped (non-null/list stripped) name of
// the type "typeName.fieldName" returns, or "" if the field doesn't exist.
func (s *Schema) FieldReturnTypeName(typeName, fieldName string) string {
	fid, ok := s.FieldDefinitionByName(typeName, fieldName)
	if !ok {
		return ""
	}
	return s.nameOf(s.fields[fid].Type.Definition)
}
