// Package solver implements the weighted directed Steiner-tree solver:
// greedy FLAC growth plus a fixed-point requirement re-weighting loop,
// built on top of federation/graph's relaxation primitive (itself backed
// by a container/heap-based relaxation).
package solver

import (
	"errors"
	"sort"

	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
)

// ErrRequirementCycleDetected is returned when the fixed-point reweighting
// loop fails to converge within MaxIterations.
var ErrRequirementCycleDetected = errors.New("solver: requirement cycle detected")

// ErrNoResolverFound is returned when a terminal has no feasible resolver.
var ErrNoResolverFound = errors.New("solver: no resolver found for terminal")

const MaxIterations = 100

// Tree is the solved Steiner tree: the set of edges chosen to span every
// terminal from the root.
type Tree struct {
	Root     string
	Edges    map[string]string // dst -> src, i.e. the prev map restricted to tree edges
	Terminals map[string]bool
}

func (t *Tree) Contains(nodeID string) bool {
	if nodeID == t.Root {
		return true
	}
	_, ok := t.Edges[nodeID]
	return ok
}

func (t *Tree) Path(nodeID string) []string {
	var path []string
	visited := map[string]bool{}
	for cur := nodeID; cur != ""; {
		if visited[cur] {
			break
		}
		visited[cur] = true
		path = append([]string{cur}, path...)
		p, ok := t.Edges[cur]
		if !ok {
			break
		}
		cur = p
	}
	return path
}

// flac runs one greedy growth pass: a unit-rate relaxation from every
// terminal toward the root, using g.Relax as the FLAC inner loop since both
// are "grow a shortest-path forest from a set of sources". g.Relax keeps
// only the cheapest discovered path per node, and between equal-cost paths
// the first one discovered; it visits out-edges in sorted destination
// order, so the tie-break is the same on every run.
func flac(g *graph.Graph, entryPoints []string, terminals []string, overrides map[string]int) (*Tree, error) {
	dist, prev := g.Relax(entryPoints, overrides)

	const inf = int(^uint(0) >> 1)
	tree := &Tree{Root: g.Root, Edges: map[string]string{}, Terminals: map[string]bool{}}
	for _, t := range terminals {
		tree.Terminals[t] = true
		if dist[t] == inf {
			return nil, ErrNoResolverFound
		}
		for _, node := range graph.Path(prev, t) {
			if p, ok := prev[node]; ok {
				tree.Edges[node] = p
			}
		}
	}
	return tree, nil
}

// Solve computes a minimum-weight subtree spanning every terminal,
// satisfying all requirements transitively.
func Solve(g *graph.Graph, entryPoints []string, terminals []string) (*Tree, error) {
	overrides := map[string]int{}
	dispensable := collectDispensableRequirements(g)

	tree, err := flac(g, entryPoints, terminals, overrides)
	if err != nil {
		return nil, err
	}

	independentRequirements := false
	for iteration := 0; ; iteration++ {
		if iteration >= MaxIterations {
			return nil, ErrRequirementCycleDetected
		}
		if independentRequirements {
			break
		}

		changed := false
		newTerminals := append([]string(nil), terminals...)

		for edgeKey, reqs := range dispensable {
			for i, req := range reqs {
				if !req.Dispensable {
					continue
				}
				// Terminal promotion: if a required terminal is already in
				// the tree, the requirement is no longer dispensable and
				// its terminals are added permanently.
				allPresent := true
				for _, term := range req.Terminals {
					if !tree.Contains(term) {
						allPresent = false
						break
					}
				}
				if allPresent {
					dispensable[edgeKey][i].Dispensable = false
					continue
				}

				cost := estimateRequirementCost(g, entryPoints, tree, req.Terminals, overrides)
				src, dst := splitEdgeKey(edgeKey)
				base := g.Nodes[src].Edges[dst]
				newWeight := base + cost
				if overrides[edgeKey] != newWeight {
					overrides[edgeKey] = newWeight
					changed = true
				}
				newTerminals = append(newTerminals, req.Terminals...)
			}
		}

		if !changed {
			if iteration <= 2 {
				independentRequirements = true
			}
			break
		}

		tree, err = flac(g, entryPoints, dedupe(newTerminals), overrides)
		if err != nil {
			return nil, err
		}
		terminals = newTerminals
	}

	return tree, nil
}

// estimateRequirementCost clones the current tree's terminal set, adds the
// requirement's terminals, and re-runs flac, returning the marginal cost
// added — the "simulate and measure" step.
func estimateRequirementCost(g *graph.Graph, entryPoints []string, base *Tree, reqTerminals []string, overrides map[string]int) int {
	withReq, err := flac(g, entryPoints, append(keys(base.Terminals), reqTerminals...), overrides)
	if err != nil {
		return 0
	}
	return len(withReq.Edges) - len(base.Edges)
}

func collectDispensableRequirements(g *graph.Graph) map[string][]graph.Requirement {
	out := map[string][]graph.Requirement{}
	for srcID, node := range g.Nodes {
		for dstID, reqs := range node.Requirements {
			if len(reqs) > 0 {
				out[edgeKey(srcID, dstID)] = append([]graph.Requirement(nil), reqs...)
			}
		}
	}
	return out
}

func edgeKey(src, dst string) string { return src + "\x00" + dst }
func splitEdgeKey(k string) (string, string) {
	for i := 0; i < len(k); i++ {
		if k[i] == 0 {
			return k[:i], k[i+1:]
		}
	}
	return k, ""
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupe(ss []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range ss {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
