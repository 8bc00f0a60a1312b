package loom

import (
	"io"

	"github.com/mkarren/loom/internal/graph"
)

// GraphExport is a plain-data view of the container's dependency graph for
// tooling and diagnostics.
type GraphExport struct {
	// Adjacency maps each key to its direct dependencies, lazy edges
	// included, in declaration order.
	Adjacency map[string][]string `json:"adjacency"`

	// Order is a topological load order, dependencies first. Nil when the
	// graph is cyclic.
	Order []string `json:"order,omitempty"`

	// Layers batches Order into waves whose members only depend on earlier
	// waves. Nil when the graph is cyclic.
	Layers [][]string `json:"layers,omitempty"`
}

// exportGraph rebuilds the static graph from the live registry. Unlike the
// build phase this never fails: unresolvable dependencies become dangling
// placeholder nodes so a broken registry still renders.
func (c *Container) exportGraph() *graph.DependencyGraph {
	g := graph.New()

	for _, key := range c.reg.keys() {
		p, ok := c.reg.lookup(key)
		if !ok {
			continue
		}
		meta := p.Meta()

		var deps, lazyDeps []graph.NodeID
		for _, dep := range p.Dependencies() {
			target := dep.Key
			if effective, err := c.effectiveKey(dep.Key); err == nil {
				target = effective
			} else if dep.Optional {
				continue
			}

			if dep.Lazy {
				lazyDeps = append(lazyDeps, graph.NodeID(target.String()))
			} else {
				deps = append(deps, graph.NodeID(target.String()))
			}
		}

		// Registration order makes duplicates impossible here, so the error
		// path is unreachable.
		_ = g.AddNode(graph.Node{
			ID:       graph.NodeID(key.String()),
			Module:   meta.Module,
			Location: meta.Location(),
		}, deps, lazyDeps)
	}

	return g
}

// ExportGraph returns the container's dependency graph as plain data. Order
// and Layers are omitted when the graph contains cycles.
func (c *Container) ExportGraph() *GraphExport {
	g := c.exportGraph()

	out := &GraphExport{Adjacency: make(map[string][]string)}
	for id, edges := range g.Adjacency() {
		deps := make([]string, len(edges))
		for i, dep := range edges {
			deps[i] = string(dep)
		}
		out.Adjacency[string(id)] = deps
	}

	if sorted, err := g.TopologicalSort(); err == nil {
		out.Order = make([]string, len(sorted))
		for i, id := range sorted {
			out.Order[i] = string(id)
		}
	}
	if layers, err := g.Layers(); err == nil {
		out.Layers = make([][]string, len(layers))
		for i, wave := range layers {
			out.Layers[i] = make([]string, len(wave))
			for j, id := range wave {
				out.Layers[i][j] = string(id)
			}
		}
	}

	return out
}

// WriteGraphDOT renders the dependency graph in Graphviz DOT format. Lazy
// edges render dashed.
func (c *Container) WriteGraphDOT(w io.Writer) error {
	return graph.NewVisualizer(c.exportGraph()).WriteDOT(w)
}

// WriteGraphText renders the dependency graph as a layered text tree.
func (c *Container) WriteGraphText(w io.Writer) error {
	return graph.NewVisualizer(c.exportGraph()).WriteText(w)
}
