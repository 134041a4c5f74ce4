// Package graph builds the per-operation query graph consumed by the
// Steiner solver: a directed graph whose nodes are resolution choices for
// a selected field, carrying weights and requirements.
//
// The graph is built fresh per request from a schema.Schema plus a bound
// operation's selected fields, rather than once at composition time, since
// edge weights depend on which fields the operation actually touches. A
// container/heap-based Dijkstra relaxation (Relax) is exposed for reuse by
// the solver's FLAC growth wave.
package graph

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/schema"
)

// Requirement is a (possibly empty) list attached to an edge: a set of
// terminal node keys that must also be present in the solved tree before
// the edge is legal.
type Requirement struct {
	Terminals     []string
	ParentEdgeKeys []string
	Dispensable   bool
}

// Node is a resolution-choice node: a type-level node, a field-level node
// for one feasible resolver, or a space node discriminating an abstract
// type's concrete typename at a selection site.
type Node struct {
	ID        string
	Subgraph  schema.SubgraphID
	HasSubgraph bool
	TypeName  string
	FieldName string
	IsSpace   bool

	Edges       map[string]int
	ShortCut    map[string]int
	Requirements map[string][]Requirement // dst node key -> requirements for that edge
}

// Graph is the dense-but-small directed query graph.
type Graph struct {
	Root  string
	Nodes map[string]*Node
}

func New() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// NodeKey builds a stable node identity: "{subgraph}:{type}.{field}"
// or "{subgraph}:{type}" for type-level nodes.
func NodeKey(subgraphName, typeName, fieldName string) string {
	if fieldName == "" {
		return fmt.Sprintf("%s:%s", subgraphName, typeName)
	}
	return fmt.Sprintf("%s:%s.%s", subgraphName, typeName, fieldName)
}

func (g *Graph) AddNode(id, subgraphName, typeName, fieldName string, sgID schema.SubgraphID, hasSubgraph bool) *Node {
	if existing, ok := g.Nodes[id]; ok {
		return existing
	}
	n := &Node{
		ID: id, Subgraph: sgID, HasSubgraph: hasSubgraph, TypeName: typeName, FieldName: fieldName,
		Edges: make(map[string]int), ShortCut: make(map[string]int), Requirements: make(map[string][]Requirement),
	}
	g.Nodes[id] = n
	return n
}

func (g *Graph) AddSpaceNode(id, typeName string) *Node {
	if existing, ok := g.Nodes[id]; ok {
		return existing
	}
	n := &Node{ID: id, TypeName: typeName, IsSpace: true, Edges: map[string]int{}, ShortCut: map[string]int{}, Requirements: map[string][]Requirement{}}
	g.Nodes[id] = n
	return n
}

// AddEdge keeps the minimum weight seen for (src,dst).
func (g *Graph) AddEdge(srcID, dstID string, weight int) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	if existing, exists := src.Edges[dstID]; !exists || weight < existing {
		src.Edges[dstID] = weight
	}
}

// AddRequirement attaches a requirement to the edge (srcID -> dstID).
func (g *Graph) AddRequirement(srcID, dstID string, req Requirement) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	src.Requirements[dstID] = append(src.Requirements[dstID], req)
}

func (g *Graph) AddShortCut(srcID, dstID string) {
	src, ok := g.Nodes[srcID]
	if !ok {
		return
	}
	src.ShortCut[dstID] = 0
}

// Build constructs the query graph for one bound operation's selected
// fields over sch, in three passes (type->field
// edges, cross-subgraph @key edges, @provides shortcut resolution) plus a
// 4th pass wiring @requires as Requirements instead of leaving them for the
// planner to discover structurally.
func Build(sch *schema.Schema, selectedTypes []string) *Graph {
	g := New()

	for _, typeName := range selectedTypes {
		obj, ok := findObjectByName(sch, typeName)
		if !ok {
			continue
		}
		for fid, sgID := range obj.OwnedBy {
			sgName := sch.String(sch.Subgraph(sgID).Name)
			typeKey := NodeKey(sgName, typeName, "")
			g.AddNode(typeKey, sgName, typeName, "", sgID, true)

			fieldName := sch.String(sch.Field(fid).Name)
			fieldKey := NodeKey(sgName, typeName, fieldName)
			g.AddNode(fieldKey, sgName, typeName, fieldName, sgID, true)
			g.AddEdge(typeKey, fieldKey, 1)

			if provides := sch.ProvidesForSubgraph(fid, sgID); len(provides) > 0 {
				for _, p := range provides {
					g.AddShortCut(fieldKey, fmt.Sprintf("%s:%s.%s:%s", sgName, typeName, fieldName, p))
				}
			}
			if requires := sch.RequiresForSubgraph(fid, sgID); len(requires) > 0 {
				var terminals []string
				for _, r := range requires {
					terminals = append(terminals, NodeKey(sgName, typeName, r))
				}
				g.AddRequirement(typeKey, fieldKey, Requirement{Terminals: terminals, Dispensable: true})
			}
		}

		for i, keyA := range entityOwningSubgraphs(sch, obj) {
			for _, keyB := range entityOwningSubgraphs(sch, obj)[i+1:] {
				a, b := NodeKey(keyA, typeName, ""), NodeKey(keyB, typeName, "")
				g.AddEdge(a, b, 10) // cross-subgraph @key hop costs more than a same-subgraph field
				g.AddEdge(b, a, 10)
			}
		}
	}

	resolveShortCuts(g)
	return g
}

func findObjectByName(sch *schema.Schema, name string) (*schema.ObjectDefinition, bool) {
	id, ok := sch.DefinitionByName(name)
	if !ok || id.Kind != schema.DefinitionKindObject {
		return nil, false
	}
	return sch.Object(schema.ObjectID(id.Index)), true
}

func entityOwningSubgraphs(sch *schema.Schema, obj *schema.ObjectDefinition) []string {
	seen := map[string]bool{}
	var names []string
	for _, sgID := range obj.OwnedBy {
		n := sch.String(sch.Subgraph(sgID).Name)
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	return names
}

func resolveShortCuts(g *Graph) {
	for _, node := range g.Nodes {
		if len(node.ShortCut) == 0 {
			continue
		}
		resolved := make(map[string]int)
		for placeholder := range node.ShortCut {
			providedField := afterLastColon(placeholder)
			found := false
			for key, cand := range g.Nodes {
				if cand.FieldName == providedField && cand.ID != node.ID && !sameSubgraph(cand, node) {
					resolved[key] = 0
					found = true
					break
				}
			}
			if !found {
				resolved[placeholder] = 0
			}
		}
		node.ShortCut = resolved
	}
}

func sameSubgraph(a, b *Node) bool {
	return a.HasSubgraph && b.HasSubgraph && a.Subgraph == b.Subgraph
}

func afterLastColon(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[i+1:]
		}
	}
	return s
}

// --- heap-based relaxation primitive, shared by the solver's FLAC wave ---

type item struct {
	nodeID string
	cost   int
	index  int
}

type pq []*item

func (q pq) Len() int            { return len(q) }
func (q pq) Less(i, j int) bool  { return q[i].cost < q[j].cost }
func (q pq) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *pq) Push(x any)         { n := len(*q); it := x.(*item); it.index = n; *q = append(*q, it) }
func (q *pq) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*q = old[:n-1]
	return it
}

// Relax runs a single-source (multi-entry) shortest-path relaxation from
// entryPoints over g, honoring both Edges and zero-cost ShortCut edges.
// This is a Dijkstra relaxation, generalized to take caller-supplied
// edge weights (the solver re-weights edges between FLAC passes, so the
// weights live outside the graph rather than being read from Node.Edges
// directly when overrides is non-nil). Each node's out-edges are visited in
// sorted destination order, so equal-cost ties resolve the same way on
// every run.
func (g *Graph) Relax(entryPoints []string, overrides map[string]int) (dist map[string]int, prev map[string]string) {
	dist = make(map[string]int, len(g.Nodes))
	prev = make(map[string]string, len(g.Nodes))
	const inf = int(^uint(0) >> 1)
	for id := range g.Nodes {
		dist[id] = inf
	}

	q := &pq{}
	heap.Init(q)
	for _, ep := range entryPoints {
		if _, ok := g.Nodes[ep]; ok {
			dist[ep] = 0
			heap.Push(q, &item{nodeID: ep, cost: 0})
		}
	}

	for q.Len() > 0 {
		it := heap.Pop(q).(*item)
		if it.cost > dist[it.nodeID] {
			continue
		}
		node := g.Nodes[it.nodeID]
		edgeDsts := make([]string, 0, len(node.Edges))
		for dst := range node.Edges {
			edgeDsts = append(edgeDsts, dst)
		}
		sort.Strings(edgeDsts)
		for _, dst := range edgeDsts {
			weight := node.Edges[dst]
			if overrides != nil {
				if ow, ok := overrides[node.ID+"\x00"+dst]; ok {
					weight = ow
				}
			}
			if nc := dist[it.nodeID] + weight; nc < dist[dst] {
				dist[dst] = nc
				prev[dst] = node.ID
				heap.Push(q, &item{nodeID: dst, cost: nc})
			}
		}
		shortDsts := make([]string, 0, len(node.ShortCut))
		for dst := range node.ShortCut {
			shortDsts = append(shortDsts, dst)
		}
		sort.Strings(shortDsts)
		for _, dst := range shortDsts {
			if nc := dist[it.nodeID]; nc < dist[dst] {
				dist[dst] = nc
				prev[dst] = node.ID
				heap.Push(q, &item{nodeID: dst, cost: nc})
			}
		}
	}
	return dist, prev
}

// Path reconstructs the entry-to-dst path from a Relax prev map.
func Path(prev map[string]string, dst string) []string {
	var path []string
	visited := map[string]bool{}
	for cur := dst; cur != ""; {
		if visited[cur] {
			break
		}
		visited[cur] = true
		path = append([]string{cur}, path...)
		p, ok := prev[cur]
		if !ok {
			break
		}
		cur = p
	}
	return path
}
