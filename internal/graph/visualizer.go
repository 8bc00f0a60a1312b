package graph

import (
	"fmt"
	"io"
	"strings"
)

// Visualizer renders a dependency graph for humans: a layered text tree or
// Graphviz DOT. Rendering is read-only and best effort; a cyclic graph
// still renders, annotated with its cycles.
type Visualizer struct {
	graph *DependencyGraph
}

// NewVisualizer wraps a graph for rendering.
func NewVisualizer(g *DependencyGraph) *Visualizer {
	return &Visualizer{graph: g}
}

// WriteDOT writes the graph in Graphviz DOT format. Lazy edges render
// dashed.
func (v *Visualizer) WriteDOT(w io.Writer) error {
	g := v.graph
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, err := fmt.Fprintln(w, "digraph dependencies {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")

	ids := make(map[NodeID]string, len(g.nodes))
	for i, id := range g.order {
		dotID := fmt.Sprintf("n%d", i)
		ids[id] = dotID

		label := string(id)
		n := g.nodes[id]
		if n.Module != "" {
			label = fmt.Sprintf("%s\\n[%s]", id, n.Module)
		}
		fmt.Fprintf(w, "  %s [label=\"%s\"];\n", dotID, escapeDOT(label))
	}

	for _, id := range g.order {
		n := g.nodes[id]
		for _, dep := range n.deps {
			if to, ok := ids[dep]; ok {
				fmt.Fprintf(w, "  %s -> %s;\n", ids[id], to)
			}
		}
		for _, dep := range n.lazyDeps {
			if to, ok := ids[dep]; ok {
				fmt.Fprintf(w, "  %s -> %s [style=dashed];\n", ids[id], to)
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}

// WriteText writes a layered tree: each wave of the load order on its own
// indentation level, every node followed by its direct dependencies.
func (v *Visualizer) WriteText(w io.Writer) error {
	layers, err := v.graph.Layers()
	if err != nil {
		fmt.Fprintf(w, "graph contains cycles:\n%v\n", err)
		return nil
	}

	g := v.graph
	g.mu.RLock()
	defer g.mu.RUnlock()

	for i, wave := range layers {
		fmt.Fprintf(w, "layer %d:\n", i)
		for _, id := range wave {
			n := g.nodes[id]
			fmt.Fprintf(w, "  %s", id)
			if n.Module != "" {
				fmt.Fprintf(w, " [%s]", n.Module)
			}
			if len(n.deps) > 0 {
				deps := make([]string, len(n.deps))
				for j, dep := range n.deps {
					deps[j] = string(dep)
				}
				fmt.Fprintf(w, " <- %s", strings.Join(deps, ", "))
			}
			fmt.Fprintln(w)
		}
	}

	return nil
}

// WriteAdjacency writes the raw adjacency list, one consumer per line, in
// registration order.
func (v *Visualizer) WriteAdjacency(w io.Writer) error {
	g := v.graph
	adj := g.Adjacency()

	for _, id := range g.Order() {
		edges := adj[id]
		if len(edges) == 0 {
			fmt.Fprintf(w, "%s:\n", id)
			continue
		}

		deps := make([]string, len(edges))
		for i, dep := range edges {
			deps[i] = string(dep)
		}
		fmt.Fprintf(w, "%s: %s\n", id, strings.Join(deps, ", "))
	}

	return nil
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
