package executor

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/n9te9/go-graphql-federation-gateway/federation/cache"
	"github.com/n9te9/go-graphql-federation-gateway/federation/errcode"
	"github.com/n9te9/go-graphql-federation-gateway/federation/planner"
	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
	"github.com/n9te9/graphql-parser/ast"
)

// ExecutionResult is the final merged response of one operation.
type ExecutionResult struct {
	Data   map[string]any
	Errors []GraphqlError
}

// Driver turns one OperationPlan into a response, owning the Pending ->
// Ready -> Running -> Done state machine over the plan's dependency DAG.
// It is stateless between calls to Execute and safe to reuse across
// requests against the same schema.
type Driver struct {
	Schema  *schema.Schema
	Fetcher SubgraphFetcher
	Auth    AuthorizationExtension
	Builder *QueryBuilder
	Cache   *cache.Cache
}

func NewDriver(sch *schema.Schema, fetcher SubgraphFetcher, auth AuthorizationExtension) *Driver {
	return &Driver{Schema: sch, Fetcher: fetcher, Auth: auth, Builder: NewQueryBuilder()}
}

// WithCache attaches an entity response cache; nil-safe to call with nil,
// which leaves entity fetches uncached.
func (d *Driver) WithCache(c *cache.Cache) *Driver {
	d.Cache = c
	return d
}

// Execute drives plan to completion: it seeds the ready queue with every
// root executable, then loops dispatching newly-ready executables (one
// goroutine per in-flight fetch/authorization call) and draining whichever
// finishes first via a dynamically-sized select built with reflect.Select
// (the number of in-flight executables varies request to request, so a
// static select statement cannot express this).
func (d *Driver) Execute(ctx context.Context, plan *planner.OperationPlan, variables map[string]any, headers map[string][]string) (*ExecutionResult, error) {
	st := &execState{
		plan:        plan,
		schema:      d.Schema,
		fetcher:     d.Fetcher,
		auth:        d.Auth,
		qb:          d.Builder,
		cache:       d.Cache,
		variables:   variables,
		headers:     headers,
		root:        map[string]any{},
		entityPaths: map[planner.ExecutableID][][]any{},
	}
	return st.run(ctx)
}

type execState struct {
	plan      *planner.OperationPlan
	schema    *schema.Schema
	fetcher   SubgraphFetcher
	auth      AuthorizationExtension
	qb        *QueryBuilder
	cache     *cache.Cache
	variables map[string]any
	headers   map[string][]string

	root        map[string]any
	errs        []GraphqlError
	entityPaths map[planner.ExecutableID][][]any

	// shapes memoizes the expected response Shape of each Plan, built from
	// the schema the first time absorb needs it.
	shapes map[planner.ExecutableID]*Shape
	// dataNull is set once some plan's top-level coercion fails beyond
	// recovery, per GraphQL null-propagation reaching the operation root.
	dataNull bool
}

type dispatchResult struct {
	id     planner.ExecutableID
	isAuth bool
	resp   SubgraphResponse
	auth   AuthorizationDecisions
	err    error
}

func (st *execState) run(ctx context.Context) (*ExecutionResult, error) {
	n := len(st.plan.Executables)
	remaining := make([]uint16, n)
	for i, e := range st.plan.Executables {
		remaining[i] = e.ParentCount()
	}

	ready := append([]planner.ExecutableID(nil), st.plan.RootExecutables...)
	inFlight := map[planner.ExecutableID]chan dispatchResult{}

	for len(ready) > 0 || len(inFlight) > 0 {
		for len(ready) > 0 {
			id := ready[0]
			ready = ready[1:]
			ch := make(chan dispatchResult, 1)
			inFlight[id] = ch
			go st.dispatch(ctx, id, ch)
		}

		if len(inFlight) == 0 {
			break
		}

		ids := make([]planner.ExecutableID, 0, len(inFlight))
		cases := make([]reflect.SelectCase, 0, len(inFlight))
		for id, ch := range inFlight {
			ids = append(ids, id)
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		}

		chosen, recv, _ := reflect.Select(cases)
		id := ids[chosen]
		result := recv.Interface().(dispatchResult)
		delete(inFlight, id)

		st.absorb(result)

		for _, childID := range st.plan.GetByID(id).ChildrenIDs() {
			remaining[childID]--
			if remaining[childID] == 0 {
				ready = append(ready, childID)
			}
		}
	}

	data := st.root
	if st.dataNull {
		data = nil
	}
	return &ExecutionResult{Data: data, Errors: st.errs}, nil
}

// dispatch runs exactly one executable to completion and reports back on
// ch; it is the only place that touches the network/authorization
// collaborators, so the goroutine fan-out is bounded by however many
// executables are Ready at once.
func (st *execState) dispatch(ctx context.Context, id planner.ExecutableID, ch chan<- dispatchResult) {
	switch e := st.plan.GetByID(id).(type) {
	case *planner.Plan:
		resp, err := st.runPlan(ctx, e)
		ch <- dispatchResult{id: id, resp: resp, err: err}
	case *planner.ResponseModifier:
		dec, err := st.runModifier(ctx, e)
		ch <- dispatchResult{id: id, isAuth: true, auth: dec, err: err}
	default:
		ch <- dispatchResult{id: id, err: fmt.Errorf("unknown executable kind for id %d", id)}
	}
}

func (st *execState) runPlan(ctx context.Context, plan *planner.Plan) (SubgraphResponse, error) {
	if plan.StepType == planner.StepTypeQuery {
		query, vars, err := st.qb.Build(plan, nil, st.variables)
		if err != nil {
			return SubgraphResponse{}, err
		}
		return st.fetcher.Fetch(ctx, EndpointID(plan.SubgraphName), SubgraphRequest{
			Query: query, Variables: vars, Headers: st.headers,
		})
	}

	keyFields := entityKeyFieldNames(st.schema, plan.ParentType)
	reps, paths := extractRepresentations(st.root, plan.InsertionPath, keyFields)
	st.entityPaths[plan.ID] = paths
	if len(reps) == 0 {
		return SubgraphResponse{}, nil
	}

	if st.cache == nil {
		return st.fetchEntities(ctx, plan, reps)
	}
	return st.fetchEntitiesCached(ctx, plan, reps)
}

func (st *execState) fetchEntities(ctx context.Context, plan *planner.Plan, reps []map[string]any) (SubgraphResponse, error) {
	query, vars, err := st.qb.Build(plan, reps, st.variables)
	if err != nil {
		return SubgraphResponse{}, err
	}
	return st.fetcher.Fetch(ctx, EndpointID(plan.SubgraphName), SubgraphRequest{
		Query: query, Variables: vars, Headers: st.headers,
	})
}

// fetchEntitiesCached serves each representation out of the entity cache
// where possible and only fetches the misses from the subgraph, splicing the
// two sets back together in the original order so callers see one _entities
// list regardless of which entries were cached.
func (st *execState) fetchEntitiesCached(ctx context.Context, plan *planner.Plan, reps []map[string]any) (SubgraphResponse, error) {
	selection, err := st.qb.RenderSelection(plan.SelectionSet)
	if err != nil {
		return SubgraphResponse{}, err
	}

	keys := make([]cache.Key, len(reps))
	merged := make([]any, len(reps))
	var missReps []map[string]any
	var missIdx []int
	for i, rep := range reps {
		k, err := cache.BuildKey(plan.ParentType, rep, selection)
		if err != nil {
			return st.fetchEntities(ctx, plan, reps)
		}
		keys[i] = k
		if v, ok := st.cache.Get(k); ok {
			merged[i] = v
			continue
		}
		missReps = append(missReps, rep)
		missIdx = append(missIdx, i)
	}

	if len(missReps) == 0 {
		return SubgraphResponse{Data: map[string]any{"_entities": merged}}, nil
	}

	resp, err := st.fetchEntities(ctx, plan, missReps)
	if err != nil {
		return resp, err
	}

	maxAge := st.planCacheMaxAge(plan)
	fetched, _ := resp.Data["_entities"].([]any)
	for j, idx := range missIdx {
		if j >= len(fetched) {
			break
		}
		merged[idx] = fetched[j]
		if ent, ok := fetched[j].(map[string]any); ok {
			st.cache.Set(keys[idx], ent, maxAge)
		}
	}

	resp.Data = map[string]any{"_entities": merged}
	return resp, nil
}

// planCacheMaxAge is the minimum @cacheControl(maxAge:) across the plan's
// top-level selected fields; a field with no cacheControl directive at all
// makes the whole fetch uncacheable, since callers have no signal for how
// long it's safe to reuse.
func (st *execState) planCacheMaxAge(plan *planner.Plan) time.Duration {
	maxAgeSeconds := -1
	for _, sel := range plan.SelectionSet {
		f, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		fid, ok := st.schema.FieldDefinitionByName(plan.ParentType, f.Name.String())
		if !ok {
			continue
		}
		cc := st.schema.Field(fid).CacheControl
		if cc == nil {
			return 0
		}
		if maxAgeSeconds == -1 || cc.MaxAgeSeconds < maxAgeSeconds {
			maxAgeSeconds = cc.MaxAgeSeconds
		}
	}
	if maxAgeSeconds <= 0 {
		return 0
	}
	return time.Duration(maxAgeSeconds) * time.Second
}

func (st *execState) runModifier(ctx context.Context, mod *planner.ResponseModifier) (AuthorizationDecisions, error) {
	if st.auth == nil {
		return AuthorizationDecisions{Kind: AuthAllowAll}, nil
	}
	groups := []AuthElementGroup{{
		Rule:     ruleName(mod.Rule),
		Elements: targetElements(mod.Targets),
	}}
	return st.auth.AuthorizeQuery(ctx, st.headers, firstHeader(st.headers, "Authorization"), groups)
}

func ruleName(r planner.AuthRule) string {
	if r == planner.RuleAuthorizedParentEdge {
		return "authorized_parent_edge"
	}
	return "authorized_edge_child"
}

func targetElements(targets []string) []map[string]any {
	out := make([]map[string]any, len(targets))
	for i, t := range targets {
		out[i] = map[string]any{"target": t}
	}
	return out
}

func firstHeader(headers map[string][]string, name string) string {
	for k, vs := range headers {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return vs[0]
		}
	}
	return ""
}

// absorb applies one completed executable's result into the response tree
// and error list, validating/coercing the subgraph's raw JSON against the
// plan's expected Shape first so a malformed value (wrong scalar type,
// missing non-null field) null-propagates per GraphQL semantics instead of
// being merged in as-is or panicking downstream.
func (st *execState) absorb(r dispatchResult) {
	if r.err != nil {
		st.errs = append(st.errs, GraphqlError{Message: r.err.Error()})
		return
	}

	if r.isAuth {
		st.applyAuthorization(r.id, r.auth)
		return
	}

	st.errs = append(st.errs, r.resp.Errors...)

	plan, ok := st.plan.GetByID(r.id).(*planner.Plan)
	if !ok || r.resp.Data == nil {
		return
	}

	shape := st.planShape(plan)

	if plan.StepType == planner.StepTypeQuery {
		// invalid already includes hardErr (coerceFail records every
		// failure before the caller decides whether it was recoverable),
		// so it alone is the complete, non-duplicated error list.
		coerced, invalid, hardErr := coerceResponse(shape, r.resp.Data)
		for _, p := range invalid {
			st.errs = append(st.errs, invalidResponseError(p.Path))
		}
		if hardErr != nil {
			st.dataNull = true
			return
		}
		if err := Merge(st.root, coerced, nil); err != nil {
			st.errs = append(st.errs, GraphqlError{Message: err.Error()})
		}
		return
	}

	entities, _ := r.resp.Data["_entities"].([]any)
	paths := st.entityPaths[r.id]
	for i, ent := range entities {
		if i >= len(paths) {
			break
		}
		entMap, ok := ent.(map[string]any)
		if !ok {
			continue
		}
		coerced, invalid, hardErr := coerceResponse(shape, entMap)
		for _, p := range invalid {
			st.errs = append(st.errs, invalidResponseError(p.Path))
		}
		if hardErr != nil {
			st.nullPropagateEntity(plan, paths[i])
			continue
		}
		if err := mergeEntityAtPath(st.root, paths[i], coerced); err != nil {
			st.errs = append(st.errs, GraphqlError{Message: err.Error()})
		}
	}
}

// coerceResponse runs Coerce over one object-shaped response (an entire
// query-root response, or a single _entities element) and type-asserts the
// result back to a map, since shape is always a ShapeObject here.
func coerceResponse(shape *Shape, data map[string]any) (map[string]any, []*CoerceError, *CoerceError) {
	var errs []*CoerceError
	v, err := Coerce(shape, data, nil, &errs)
	if err != nil {
		return nil, errs, err.(*CoerceError)
	}
	coerced, _ := v.(map[string]any)
	return coerced, errs, nil
}

func invalidResponseError(path []any) GraphqlError {
	return GraphqlError{
		Message:    fmt.Sprintf("subgraph response did not match the expected shape at %s", pathString(path)),
		Path:       path,
		Extensions: map[string]any{"code": errcode.SubgraphInvalidResponse},
	}
}

func pathString(path []any) string {
	var sb strings.Builder
	for i, seg := range path {
		if i > 0 {
			sb.WriteByte('.')
		}
		fmt.Fprintf(&sb, "%v", seg)
	}
	return sb.String()
}

// planShape memoizes the expected response Shape for plan, built from the
// schema once and reused across however many entities touch it.
func (st *execState) planShape(plan *planner.Plan) *Shape {
	if st.shapes == nil {
		st.shapes = map[planner.ExecutableID]*Shape{}
	}
	if s, ok := st.shapes[plan.ID]; ok {
		return s
	}
	s := buildResponseShape(st.schema, plan.ParentType, plan.SelectionSet)
	st.shapes[plan.ID] = s
	return s
}

// resolveParentPlan follows an entity plan's dependency edge back to the
// *Plan it hangs off, skipping over any *ResponseModifier an authorization
// pass spliced in between the two.
func (st *execState) resolveParentPlan(id planner.ExecutableID) (*planner.Plan, bool) {
	for {
		switch e := st.plan.GetByID(id).(type) {
		case *planner.Plan:
			return e, true
		case *planner.ResponseModifier:
			if len(e.DependsOn) == 0 {
				return nil, false
			}
			id = e.DependsOn[0]
		default:
			return nil, false
		}
	}
}

// nullPropagateEntity handles an entity plan whose response failed
// coercion beyond what its own Shape can recover from: it reconstructs the
// field-shape chain from the boundary field back up through the parent
// plan's own Shape and asks NullPropagate how far past the entity's own
// slot the null must climb into the already-merged response tree. A plan
// with no resolvable ancestor chain (e.g. the parent information is gone)
// falls back to nulling just the entity's own slot.
func (st *execState) nullPropagateEntity(plan *planner.Plan, entPath []any) {
	var ancestors []*Shape
	if len(plan.DependsOn) > 0 {
		if parent, ok := st.resolveParentPlan(plan.DependsOn[0]); ok {
			chain := walkShapePath(st.planShape(parent), plan.Path)
			ancestors = make([]*Shape, len(chain))
			for i, s := range chain {
				ancestors[len(chain)-1-i] = s
			}
		}
	}

	nullUpTo, wholeNull := NullPropagate(ancestors)
	if wholeNull && len(ancestors) > 0 {
		st.dataNull = true
		return
	}
	if len(ancestors) == 0 {
		target := truncateToFieldLevel(entPath, 0)
		if target == nil {
			st.dataNull = true
			return
		}
		if err := nullifyAtPath(st.root, target); err != nil {
			st.errs = append(st.errs, GraphqlError{Message: err.Error()})
		}
		return
	}
	target := truncateToFieldLevel(entPath, nullUpTo)
	if target == nil {
		st.dataNull = true
		return
	}
	if err := nullifyAtPath(st.root, target); err != nil {
		st.errs = append(st.errs, GraphqlError{Message: err.Error()})
	}
}

// truncateToFieldLevel returns the prefix of path (as produced by
// extractRepresentations: field-name strings interspersed with list
// indices) ending at the levelsFromEnd-th field-name segment counting from
// the end, dropping anything after it (including trailing indices, since
// nulling a field nulls its whole value, not one list element of it). nil
// means levelsFromEnd reached past the start of path.
func truncateToFieldLevel(path []any, levelsFromEnd int) []any {
	seen := 0
	for i := len(path) - 1; i >= 0; i-- {
		if _, isField := path[i].(string); isField {
			if seen == levelsFromEnd {
				return append([]any{}, path[:i+1]...)
			}
			seen++
		}
	}
	return nil
}

// nullifyAtPath sets the value at path (string keys / int indices, as
// produced by extractRepresentations) to nil.
func nullifyAtPath(root map[string]any, path []any) error {
	if len(path) == 0 {
		return fmt.Errorf("nullifyAtPath: empty path")
	}
	var cur any = root
	for _, seg := range path[:len(path)-1] {
		switch s := seg.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return fmt.Errorf("nullifyAtPath: expected object at %q", s)
			}
			cur = m[s]
		case int:
			list, ok := cur.([]any)
			if !ok || s < 0 || s >= len(list) {
				return fmt.Errorf("nullifyAtPath: index %d out of range", s)
			}
			cur = list[s]
		default:
			return fmt.Errorf("nullifyAtPath: unsupported path segment %T", seg)
		}
	}
	switch last := path[len(path)-1].(type) {
	case string:
		m, ok := cur.(map[string]any)
		if !ok {
			return fmt.Errorf("nullifyAtPath: expected object at %q", last)
		}
		m[last] = nil
	case int:
		list, ok := cur.([]any)
		if !ok || last < 0 || last >= len(list) {
			return fmt.Errorf("nullifyAtPath: index %d out of range", last)
		}
		list[last] = nil
	default:
		return fmt.Errorf("nullifyAtPath: unsupported path segment %T", last)
	}
	return nil
}

func (st *execState) applyAuthorization(id planner.ExecutableID, dec AuthorizationDecisions) {
	mod, ok := st.plan.GetByID(id).(*planner.ResponseModifier)
	if !ok {
		return
	}
	switch dec.Kind {
	case AuthAllowAll:
		return
	case AuthDenyAll:
		for _, t := range mod.Targets {
			nullifyFieldEverywhere(st.root, t)
		}
		if dec.DenyAllError != nil {
			st.errs = append(st.errs, *dec.DenyAllError)
		}
	case AuthDenySome:
		for idx, t := range mod.Targets {
			if gqlErr, denied := dec.ElementToError[idx]; denied {
				nullifyFieldEverywhere(st.root, t)
				st.errs = append(st.errs, gqlErr)
			}
		}
	}
}

// nullifyFieldEverywhere walks the response tree for every object whose
// __typename matches target's type and sets target's field to nil, used to
// apply a DenyAll/DenySome authorization decision across however many
// instances of that type the response contains.
func nullifyFieldEverywhere(node any, target string) {
	parts := strings.SplitN(target, ".", 2)
	if len(parts) != 2 {
		return
	}
	typeName, field := parts[0], parts[1]

	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case map[string]any:
			if tn, _ := val["__typename"].(string); tn == typeName {
				val[field] = nil
			}
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		}
	}
	walk(node)
}

// extractRepresentations walks root along path, automatically flattening
// any list encountered partway through (GraphQL list fields nest freely),
// and collects one _Any representation per matching object plus the exact
// merge path back to it, so the entity response can be spliced back
// element-by-element once it returns.
func extractRepresentations(root map[string]any, path []string, keyFields []string) ([]map[string]any, [][]any) {
	var reps []map[string]any
	var paths [][]any

	var walk func(value any, remaining []string, curPath []any)
	walk = func(value any, remaining []string, curPath []any) {
		if list, ok := value.([]any); ok {
			for i, item := range list {
				walk(item, remaining, append(append([]any{}, curPath...), i))
			}
			return
		}
		obj, ok := value.(map[string]any)
		if !ok || obj == nil {
			return
		}
		if len(remaining) == 0 {
			rep := map[string]any{"__typename": obj["__typename"]}
			for _, kf := range keyFields {
				rep[kf] = obj[kf]
			}
			reps = append(reps, rep)
			paths = append(paths, curPath)
			return
		}
		next := remaining[0]
		child, exists := obj[next]
		if !exists {
			return
		}
		walk(child, remaining[1:], append(append([]any{}, curPath...), next))
	}

	walk(root, path, nil)
	return reps, paths
}

// mergeEntityAtPath splices data into root at path, where path segments
// are field names (string) or list indices (int) as produced by
// extractRepresentations. Unlike Merge, it navigates by index as well as
// key, since one operation can resolve entities nested inside lists.
func mergeEntityAtPath(root map[string]any, path []any, data map[string]any) error {
	if len(path) == 0 {
		for k, v := range data {
			root[k] = v
		}
		return nil
	}

	var cur any = root
	for i, seg := range path {
		last := i == len(path)-1
		switch s := seg.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return fmt.Errorf("mergeEntityAtPath: expected object at %q", s)
			}
			if last {
				target, _ := m[s].(map[string]any)
				if target == nil {
					target = map[string]any{}
					m[s] = target
				}
				for k, v := range data {
					target[k] = v
				}
				return nil
			}
			cur = m[s]
		case int:
			list, ok := cur.([]any)
			if !ok || s < 0 || s >= len(list) {
				return fmt.Errorf("mergeEntityAtPath: index %d out of range", s)
			}
			if last {
				target, _ := list[s].(map[string]any)
				if target == nil {
					target = map[string]any{}
					list[s] = target
				}
				for k, v := range data {
					target[k] = v
				}
				return nil
			}
			cur = list[s]
		default:
			return fmt.Errorf("mergeEntityAtPath: unsupported path segment %T", seg)
		}
	}
	return nil
}

func entityKeyFieldNames(sch *schema.Schema, typeName string) []string {
	id, ok := sch.DefinitionByName(typeName)
	if !ok || id.Kind != schema.DefinitionKindObject {
		return nil
	}
	obj := sch.Object(schema.ObjectID(id.Index))
	if len(obj.EntityKeys) == 0 {
		return nil
	}
	return obj.EntityKeys[0].Fields
}
