package planner

import (
	"fmt"
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
	"github.com/n9te9/go-graphql-federation-gateway/federation/opcache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/go-graphql-federation-gateway/federation/solver"
	"github.com/n9te9/graphql-parser/ast"
)

// builder accumulates executables while lowering a bound operation into a
// DAG, carrying the schema.Schema arena throughout instead of re-deriving
// ownership from the operation AST at each step.
type builder struct {
	schema *schema.Schema
	plans  []Executable
	byKey  map[string]ExecutableID // "subgraph:parentType" root plan dedup key
}

// Build lowers bound into an OperationPlan. rootTypeName is "Query" or
// "Mutation" (subscriptions aren't planned here; their streaming transport
// framing is a separate concern from this DAG).
func Build(sch *schema.Schema, bound *opcache.BoundOperation, rootTypeName string) (*OperationPlan, error) {
	b := &builder{schema: sch, byKey: map[string]ExecutableID{}}

	rootGroups := b.groupByOwner(rootTypeName, bound.RootSelectionSet)

	var rootIDs []ExecutableID
	order := rootGroups // already built in selection order for mutation sequencing
	for _, grp := range order {
		plan := b.newPlan(grp.subgraphName, grp.subgraph, StepTypeQuery, rootTypeName, grp.selections, nil, nil)
		rootIDs = append(rootIDs, plan.ID)
	}

	for _, id := range rootIDs {
		rootPlan := b.plans[id].(*Plan)
		b.expandBoundaryFields(rootPlan)
	}

	if bound.OperationType == "mutation" {
		b.serializeMutations(rootIDs)
	}

	b.addAuthorizationModifiers()
	b.finalize()

	return &OperationPlan{
		Executables:      b.plans,
		RootExecutables:  rootIDs,
		OriginalDocument: bound.Document,
		OperationType:    bound.OperationType,
	}, nil
}

type ownerGroup struct {
	subgraphName string
	subgraph     schema.SubgraphID
	selections   []ast.Selection
}

// groupByOwner groups selections by their owning subgraph, preserving
// first-seen order so mutation fields keep their source-text order for
// sequencing, using the arena schema's OwnedBy map rather than an
// ast-walk ownership lookup.
func (b *builder) groupByOwner(typeName string, sels []ast.Selection) []ownerGroup {
	order := []string{}
	groups := map[string]*ownerGroup{}

	for _, sel := range sels {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		owners := b.schema.FieldOwners(typeName, f.Name.String())
		var sgName string
		var sgID schema.SubgraphID
		if len(owners) > 0 {
			sgID = owners[0]
			sgName = b.schema.String(b.schema.Subgraph(sgID).Name)
		} else {
			sgName = "__unknown__"
		}
		if _, ok := groups[sgName]; !ok {
			groups[sgName] = &ownerGroup{subgraphName: sgName, subgraph: sgID}
			order = append(order, sgName)
		}
		groups[sgName].selections = append(groups[sgName].selections, f)
	}

	out := make([]ownerGroup, 0, len(order))
	for _, name := range order {
		out = append(out, *groups[name])
	}
	return out
}

func (b *builder) newPlan(sgName string, sg schema.SubgraphID, stepType StepType, parentType string, sels []ast.Selection, path, insertionPath []string) *Plan {
	p := &Plan{
		ID:            ExecutableID(len(b.plans)),
		Subgraph:      sg,
		SubgraphName:  sgName,
		StepType:      stepType,
		ParentType:    parentType,
		SelectionSet:  sels,
		Path:          path,
		InsertionPath: insertionPath,
	}
	b.plans = append(b.plans, p)
	return p
}

// expandBoundaryFields walks a plan's selection set looking for "boundary
// fields": fields whose return type is an entity owned by a different
// subgraph than the current plan. For each, it injects the type's @key
// fields into the parent selection (so the parent subgraph returns enough
// to build an _entities representation) and creates a child entity Plan.
func (b *builder) expandBoundaryFields(parent *Plan) {
	var walk func(sels []ast.Selection, parentType string, path []string) []ast.Selection
	walk = func(sels []ast.Selection, parentType string, path []string) []ast.Selection {
		out := make([]ast.Selection, 0, len(sels))
		for _, sel := range sels {
			f, ok := sel.(*ast.Field)
			if !ok {
				out = append(out, sel)
				continue
			}
			fieldPath := append(append([]string{}, path...), responseKey(f))
			returnType := b.fieldReturnTypeName(parentType, f.Name.String())
			isEntity := b.isEntityType(returnType)

			if isEntity && len(f.SelectionSet) > 0 && !b.ownedBySameSubgraph(parent.SubgraphName, returnType, f) {
				requestedSels := append([]ast.Selection{}, f.SelectionSet...)
				f = b.ensureKeyFieldsInjected(f, returnType)
				childSels := b.stripAndBuildEntitySelections(requestedSels, returnType)
				owner := b.pickEntityOwner(returnType)
				childPlan := b.newPlan(owner.name, owner.id, StepTypeEntity, returnType, childSels, fieldPath, fieldPath)
				childPlan.DependsOn = append(childPlan.DependsOn, parent.ID)
				b.expandBoundaryFields(childPlan)
			} else if len(f.SelectionSet) > 0 {
				f.SelectionSet = walk(f.SelectionSet, returnType, fieldPath)
			}
			out = append(out, f)
		}
		return out
	}
	parent.SelectionSet = walk(parent.SelectionSet, parent.ParentType, parent.Path)
}

type entityOwner struct {
	name string
	id   schema.SubgraphID
}

// pickEntityOwner chooses which subgraph resolves an entity boundary field.
// With a single owner there's nothing to decide; with several, it runs the
// same weighted-Steiner solver used for operation planning over a
// graph scoped to this one type, picking whichever owner the solver routes
// the most key-field edges through, so a subgraph that can only reach a key
// field via an extra @requires hop loses out to one that owns it directly.
func (b *builder) pickEntityOwner(typeName string) entityOwner {
	owners := b.schema.EntityOwners(typeName)
	if len(owners) == 0 {
		return entityOwner{}
	}
	if len(owners) == 1 {
		id := owners[0]
		return entityOwner{name: b.schema.String(b.schema.Subgraph(id).Name), id: id}
	}

	g := graph.Build(b.schema, []string{typeName})
	keyFields := b.entityKeyFieldNames(typeName)

	var entryPoints, terminals []string
	ownerByNode := map[string]schema.SubgraphID{}
	for _, id := range owners {
		sgName := b.schema.String(b.schema.Subgraph(id).Name)
		typeNode := graph.NodeKey(sgName, typeName, "")
		entryPoints = append(entryPoints, typeNode)
		for _, kf := range keyFields {
			fieldNode := graph.NodeKey(sgName, typeName, kf)
			terminals = append(terminals, fieldNode)
			ownerByNode[fieldNode] = id
		}
	}

	fallback := func() entityOwner {
		id := owners[0]
		return entityOwner{name: b.schema.String(b.schema.Subgraph(id).Name), id: id}
	}
	if len(terminals) == 0 {
		return fallback()
	}

	tree, err := solver.Solve(g, entryPoints, terminals)
	if err != nil {
		return fallback()
	}

	counts := map[schema.SubgraphID]int{}
	for node := range tree.Edges {
		if id, ok := ownerByNode[node]; ok {
			counts[id]++
		}
	}
	best, bestCount := owners[0], -1
	for _, id := range owners {
		if c := counts[id]; c > bestCount {
			best, bestCount = id, c
		}
	}
	return entityOwner{name: b.schema.String(b.schema.Subgraph(best).Name), id: best}
}

func (b *builder) isEntityType(typeName string) bool {
	id, ok := b.schema.DefinitionByName(typeName)
	if !ok || id.Kind != schema.DefinitionKindObject {
		return false
	}
	return len(b.schema.Object(schema.ObjectID(id.Index)).EntityKeys) > 0
}

func (b *builder) ownedBySameSubgraph(subgraphName, typeName string, f *ast.Field) bool {
	owners := b.schema.EntityOwners(typeName)
	for _, o := range owners {
		if b.schema.String(b.schema.Subgraph(o).Name) == subgraphName {
			return true
		}
	}
	return false
}

func (b *builder) fieldReturnTypeName(parentType, fieldName string) string {
	return b.schema.FieldReturnTypeName(parentType, fieldName)
}

// ensureKeyFieldsInjected appends the entity's @key fields (and __typename)
// to f's selection set if missing.
func (b *builder) ensureKeyFieldsInjected(f *ast.Field, typeName string) *ast.Field {
	keyFields := b.entityKeyFieldNames(typeName)
	existing := map[string]bool{}
	for _, sel := range f.SelectionSet {
		if cf, ok := sel.(*ast.Field); ok {
			existing[cf.Name.String()] = true
		}
	}
	if !existing["__typename"] {
		f.SelectionSet = append([]ast.Selection{&ast.Field{Name: ast.Name("__typename")}}, f.SelectionSet...)
	}
	for _, kf := range keyFields {
		if !existing[kf] {
			f.SelectionSet = append(f.SelectionSet, &ast.Field{Name: ast.Name(kf)})
		}
	}
	return f
}

func (b *builder) entityKeyFieldNames(typeName string) []string {
	id, ok := b.schema.DefinitionByName(typeName)
	if !ok || id.Kind != schema.DefinitionKindObject {
		return nil
	}
	obj := b.schema.Object(schema.ObjectID(id.Index))
	if len(obj.EntityKeys) == 0 {
		return nil
	}
	return obj.EntityKeys[0].Fields
}

// stripAndBuildEntitySelections returns the selection set used for the
// _entities(...) { ... on Type { <here> } } inline fragment: the fields
// actually requested at this boundary (key fields stay on the parent's
// own selection, not here, since they're supplied via the representation),
// plus a __typename so abstract-type results can be merged back correctly.
func (b *builder) stripAndBuildEntitySelections(sels []ast.Selection, typeName string) []ast.Selection {
	for _, sel := range sels {
		if f, ok := sel.(*ast.Field); ok && f.Name.String() == "__typename" {
			return sels
		}
	}
	return append([]ast.Selection{&ast.Field{Name: ast.Name("__typename")}}, sels...)
}

// serializeMutations adds sequential DependsOn edges across the top-level
// mutation plans in source order.
func (b *builder) serializeMutations(rootIDs []ExecutableID) {
	for i := 1; i < len(rootIDs); i++ {
		prev, next := b.plans[rootIDs[i-1]].(*Plan), b.plans[rootIDs[i]].(*Plan)
		next.DependsOn = append(next.DependsOn, prev.ID)
	}
}

// addAuthorizationModifiers groups fields carrying @requires_scopes by
// their owning plan and emits one ResponseModifier per plan that needs one,
// spliced between that plan and its dependents so the modifier's decision
// lands before any consumer observes the field.
func (b *builder) addAuthorizationModifiers() {
	for _, e := range append([]Executable(nil), b.plans...) {
		plan, ok := e.(*Plan)
		if !ok {
			continue
		}
		targets := b.scopedFieldTargets(plan)
		if len(targets) == 0 {
			continue
		}
		modifier := &ResponseModifier{
			ID:        ExecutableID(len(b.plans)),
			Rule:      RuleAuthorizedEdgeChild,
			Targets:   targets,
			DependsOn: []ExecutableID{plan.ID},
		}
		b.plans = append(b.plans, modifier)

		// Reparent: anything that depended on plan now depends on modifier,
		// and modifier depends on plan.
		for _, other := range b.plans {
			if p, ok := other.(*Plan); ok && p.ID != plan.ID {
				for i, dep := range p.DependsOn {
					if dep == plan.ID {
						p.DependsOn[i] = modifier.ID
					}
				}
			}
		}
	}
}

func (b *builder) scopedFieldTargets(plan *Plan) []string {
	var targets []string
	id, ok := b.schema.DefinitionByName(plan.ParentType)
	if !ok || id.Kind != schema.DefinitionKindObject {
		return nil
	}
	obj := b.schema.Object(schema.ObjectID(id.Index))
	scoped := map[string]bool{}
	for _, fid := range obj.Fields {
		fd := b.schema.Field(fid)
		if len(fd.RequiresScopes) > 0 {
			scoped[b.schema.String(fd.Name)] = true
		}
	}
	for _, sel := range plan.SelectionSet {
		if f, ok := sel.(*ast.Field); ok && scoped[f.Name.String()] {
			targets = append(targets, fmt.Sprintf("%s.%s", plan.ParentType, f.Name.String()))
		}
	}
	sort.Strings(targets)
	return targets
}

// finalize computes parent_count and children_ids from DependsOn edges,
// walking both Plans and ResponseModifiers so a modifier's parent count
// actually reaches zero and its children get notified in turn.
func (b *builder) finalize() {
	for _, e := range b.plans {
		var id ExecutableID
		var dependsOn []ExecutableID
		switch ex := e.(type) {
		case *Plan:
			id, dependsOn = ex.ID, ex.DependsOn
		case *ResponseModifier:
			id, dependsOn = ex.ID, ex.DependsOn
		default:
			continue
		}

		for _, depID := range dependsOn {
			switch dep := b.plans[depID].(type) {
			case *Plan:
				dep.childrenIDs = append(dep.childrenIDs, id)
			case *ResponseModifier:
				dep.childrenIDs = append(dep.childrenIDs, id)
			}
		}

		switch ex := e.(type) {
		case *Plan:
			ex.parentCount = uint16(len(dependsOn))
		case *ResponseModifier:
			ex.parentCount = uint16(len(dependsOn))
		}
	}
}

func responseKey(f *ast.Field) string {
	if f.Alias != nil && f.Alias.String() != "" {
		return f.Alias.String()
	}
	return f.Name.String()
}
