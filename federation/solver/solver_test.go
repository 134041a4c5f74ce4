package solver

import (
	"errors"
	"testing"

	"github.com/n9te9/go-graphql-federation-gateway/federation/graph"
)

func smallLineGraph() *graph.Graph {
	g := graph.New()
	g.AddNode("root", "a", "Query", "", 0, true)
	g.AddNode("mid", "a", "Query", "product", 0, true)
	g.AddNode("leaf", "b", "Product", "name", 1, true)
	g.AddEdge("root", "mid", 1)
	g.AddEdge("mid", "leaf", 5)
	return g
}

func TestSolve_FindsSingleShortestPathTree(t *testing.T) {
	g := smallLineGraph()
	g.Root = "root"

	tree, err := Solve(g, []string{"root"}, []string{"leaf"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !tree.Contains("leaf") {
		t.Error("expected the tree to contain the terminal")
	}
	if !tree.Contains("root") {
		t.Error("expected the tree to contain the root")
	}

	path := tree.Path("leaf")
	if len(path) != 3 || path[0] != "root" || path[1] != "mid" || path[2] != "leaf" {
		t.Errorf("unexpected path: %v", path)
	}
}

func TestSolve_UnreachableTerminalReturnsNoResolverFound(t *testing.T) {
	g := smallLineGraph()
	g.Root = "root"
	g.AddNode("island", "c", "Orphan", "field", 2, true)

	_, err := Solve(g, []string{"root"}, []string{"island"})
	if !errors.Is(err, ErrNoResolverFound) {
		t.Fatalf("expected ErrNoResolverFound, got %v", err)
	}
}

func TestTree_ContainsFalseForUnknownNode(t *testing.T) {
	tree := &Tree{Root: "root", Edges: map[string]string{"leaf": "root"}, Terminals: map[string]bool{"leaf": true}}
	if tree.Contains("nowhere") {
		t.Error("expected Contains to be false for a node never added to the tree")
	}
	if !tree.Contains("root") {
		t.Error("expected Contains to be true for the root")
	}
}
