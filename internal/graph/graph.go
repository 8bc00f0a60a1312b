// Package graph implements the static dependency graph beneath the
// container: cycle detection via strongly-connected components, topological
// load ordering, wave batching, and cross-module prerequisite validation.
// The graph is independent of any container; it validates a provider set
// before one exists.
package graph

import (
	"fmt"
	"sync"
)

// NodeID identifies a node, the string form of a registration key
// ("token" or "token#tag").
type NodeID string

// Node is one provider in the graph plus the metadata validation needs.
type Node struct {
	ID NodeID

	// Module is the declaring module, empty when the provider was
	// registered outside any module.
	Module string

	// Requires lists the modules the declaring module explicitly depends
	// on. Cross-module edges are legal only into these.
	Requires []string

	// Location is "file:line" of the declaration, where known.
	Location string

	deps     []NodeID // edges that constrain ordering and cycle analysis
	lazyDeps []NodeID // deferred edges, excluded from cycle analysis

	placeholder bool // auto-created dependency target not yet declared
}

// Dependencies returns the node's ordering-relevant dependencies.
func (n *Node) Dependencies() []NodeID {
	return append([]NodeID(nil), n.deps...)
}

// LazyDependencies returns the node's deferred dependencies.
func (n *Node) LazyDependencies() []NodeID {
	return append([]NodeID(nil), n.lazyDeps...)
}

// DependencyGraph is the static graph. All iteration is driven by
// registration order, which makes every result deterministic.
type DependencyGraph struct {
	mu    sync.RWMutex
	nodes map[NodeID]*Node
	order []NodeID
}

// New creates an empty graph.
func New() *DependencyGraph {
	return &DependencyGraph{nodes: make(map[NodeID]*Node)}
}

// AddNode records a provider and its outgoing edges. Dependency targets not
// yet declared are created as placeholders and filled in when their own
// AddNode arrives. Declaring the same ID twice is an error.
func (g *DependencyGraph) AddNode(node Node, deps, lazyDeps []NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, ok := g.nodes[node.ID]
	if ok && !existing.placeholder {
		return fmt.Errorf("node %q already declared", node.ID)
	}

	n := &Node{
		ID:       node.ID,
		Module:   node.Module,
		Requires: append([]string(nil), node.Requires...),
		Location: node.Location,
		deps:     append([]NodeID(nil), deps...),
		lazyDeps: append([]NodeID(nil), lazyDeps...),
	}
	g.nodes[node.ID] = n
	if !ok {
		g.order = append(g.order, node.ID)
	}

	for _, dep := range deps {
		g.ensure(dep)
	}
	for _, dep := range lazyDeps {
		g.ensure(dep)
	}

	return nil
}

func (g *DependencyGraph) ensure(id NodeID) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &Node{ID: id, placeholder: true}
	g.order = append(g.order, id)
}

// Has reports whether a node was declared (placeholders do not count).
func (g *DependencyGraph) Has(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return ok && !n.placeholder
}

// Len returns the number of nodes, placeholders included.
func (g *DependencyGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Node returns the node for an ID, or nil.
func (g *DependencyGraph) Node(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Adjacency returns every edge, lazy edges included, keyed by consumer.
func (g *DependencyGraph) Adjacency() map[NodeID][]NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	adj := make(map[NodeID][]NodeID, len(g.nodes))
	for _, id := range g.order {
		n := g.nodes[id]
		edges := make([]NodeID, 0, len(n.deps)+len(n.lazyDeps))
		edges = append(edges, n.deps...)
		edges = append(edges, n.lazyDeps...)
		adj[id] = edges
	}
	return adj
}

// Order returns node IDs in registration order.
func (g *DependencyGraph) Order() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]NodeID(nil), g.order...)
}

// DetectCycles runs one pass of strongly-connected-components analysis and
// returns every component with more than one node, plus single-node
// components with a self-loop. Lazy edges do not participate. The pass is
// O(V+E); when several disjoint cycles exist, the one whose earliest member
// was registered first comes first.
func (g *DependencyGraph) DetectCycles() [][]NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sccs()
}

// sccs is an iterative Tarjan over the non-lazy edges. An explicit work
// stack replaces recursion so very large graphs cannot exhaust the call
// stack.
func (g *DependencyGraph) sccs() [][]NodeID {
	index := make(map[NodeID]int, len(g.nodes))
	lowlink := make(map[NodeID]int, len(g.nodes))
	onStack := make(map[NodeID]bool, len(g.nodes))
	var stack []NodeID
	next := 0

	var components [][]NodeID

	type frame struct {
		id   NodeID
		edge int // next dependency edge to visit
	}

	for _, start := range g.order {
		if _, visited := index[start]; visited {
			continue
		}

		work := []frame{{id: start}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			n := g.nodes[f.id]

			if f.edge == 0 {
				index[f.id] = next
				lowlink[f.id] = next
				next++
				stack = append(stack, f.id)
				onStack[f.id] = true
			}

			advanced := false
			for f.edge < len(n.deps) {
				dep := n.deps[f.edge]
				f.edge++

				if _, ok := g.nodes[dep]; !ok {
					continue
				}

				if _, visited := index[dep]; !visited {
					work = append(work, frame{id: dep})
					advanced = true
					break
				}
				if onStack[dep] {
					if index[dep] < lowlink[f.id] {
						lowlink[f.id] = index[dep]
					}
				}
			}
			if advanced {
				continue
			}

			// All edges done: close the frame.
			if lowlink[f.id] == index[f.id] {
				var comp []NodeID
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					comp = append(comp, top)
					if top == f.id {
						break
					}
				}
				if g.isCycle(comp) {
					components = append(components, g.orderComponent(comp))
				}
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := &work[len(work)-1]
				if lowlink[f.id] < lowlink[parent.id] {
					lowlink[parent.id] = lowlink[f.id]
				}
			}
		}
	}

	g.sortComponents(components)
	return components
}

// isCycle reports whether a component represents a cycle: more than one
// member, or a single member with a self-loop.
func (g *DependencyGraph) isCycle(comp []NodeID) bool {
	if len(comp) > 1 {
		return true
	}

	n := g.nodes[comp[0]]
	for _, dep := range n.deps {
		if dep == n.ID {
			return true
		}
	}
	return false
}

// orderComponent rewrites a component to start at its earliest-registered
// member and follow edges around the cycle, for readable error output.
func (g *DependencyGraph) orderComponent(comp []NodeID) []NodeID {
	members := make(map[NodeID]bool, len(comp))
	for _, id := range comp {
		members[id] = true
	}

	start := comp[0]
	for _, id := range g.order {
		if members[id] {
			start = id
			break
		}
	}

	ordered := make([]NodeID, 0, len(comp))
	seen := make(map[NodeID]bool, len(comp))
	cur := start
	for !seen[cur] {
		ordered = append(ordered, cur)
		seen[cur] = true

		found := false
		for _, dep := range g.nodes[cur].deps {
			if members[dep] && !seen[dep] {
				cur = dep
				found = true
				break
			}
		}
		if !found {
			break
		}
	}

	// Members unreachable along the walked path (dense components) still
	// belong in the report.
	for _, id := range comp {
		if !seen[id] {
			ordered = append(ordered, id)
		}
	}

	return ordered
}

// sortComponents orders disjoint cycles by the registration position of
// their earliest member.
func (g *DependencyGraph) sortComponents(components [][]NodeID) {
	if len(components) < 2 {
		return
	}

	pos := make(map[NodeID]int, len(g.order))
	for i, id := range g.order {
		pos[id] = i
	}

	earliest := func(comp []NodeID) int {
		min := int(^uint(0) >> 1)
		for _, id := range comp {
			if p := pos[id]; p < min {
				min = p
			}
		}
		return min
	}

	for i := 1; i < len(components); i++ {
		for j := i; j > 0 && earliest(components[j]) < earliest(components[j-1]); j-- {
			components[j], components[j-1] = components[j-1], components[j]
		}
	}
}

// TopologicalSort returns a deterministic load order with every dependency
// before its dependents (Kahn's algorithm). When the graph is cyclic it
// re-runs cycle detection to produce a precise, locatable error instead of
// a generic failure.
func (g *DependencyGraph) TopologicalSort() ([]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	remaining := make(map[NodeID]int, len(g.nodes))
	dependents := make(map[NodeID][]NodeID, len(g.nodes))

	for _, id := range g.order {
		n := g.nodes[id]
		count := 0
		for _, dep := range n.deps {
			if _, ok := g.nodes[dep]; ok {
				count++
				dependents[dep] = append(dependents[dep], id)
			}
		}
		remaining[id] = count
	}

	queue := make([]NodeID, 0, len(g.nodes))
	for _, id := range g.order {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]NodeID, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, g.cycleError()
	}

	return sorted, nil
}

// Layers greedily batches nodes into waves whose dependencies are all
// satisfied by earlier waves, so unrelated subsystems can initialize
// concurrently.
func (g *DependencyGraph) Layers() ([][]NodeID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	satisfied := make(map[NodeID]bool, len(g.nodes))
	placed := 0

	var layers [][]NodeID
	for placed < len(g.nodes) {
		var wave []NodeID
		for _, id := range g.order {
			if satisfied[id] {
				continue
			}

			ready := true
			for _, dep := range g.nodes[id].deps {
				if _, ok := g.nodes[dep]; ok && !satisfied[dep] {
					ready = false
					break
				}
			}
			if ready {
				wave = append(wave, id)
			}
		}

		if len(wave) == 0 {
			return nil, g.cycleError()
		}

		for _, id := range wave {
			satisfied[id] = true
		}
		placed += len(wave)
		layers = append(layers, wave)
	}

	return layers, nil
}

// cycleError builds the precise error for a sort that could not include
// every node.
func (g *DependencyGraph) cycleError() error {
	cycles := g.sccs()

	locations := make(map[NodeID]string)
	for _, comp := range cycles {
		for _, id := range comp {
			if n := g.nodes[id]; n != nil && n.Location != "" {
				locations[id] = n.Location
			}
		}
	}

	return &CycleError{Cycles: cycles, Locations: locations}
}

// ModuleViolation is one illegal cross-module edge.
type ModuleViolation struct {
	ConsumerModule string
	OwnerModule    string
	Dependency     NodeID
}

func (v *ModuleViolation) Error() string {
	return fmt.Sprintf("module %q depends on %q owned by module %q without declaring it a prerequisite",
		v.ConsumerModule, v.Dependency, v.OwnerModule)
}

// ValidateModules checks every edge, lazy ones included, that crosses a
// module boundary: the consumer's module must explicitly list the owner
// module as a prerequisite. Edges into or out of module-less providers are
// unrestricted.
func (g *DependencyGraph) ValidateModules() []*ModuleViolation {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var violations []*ModuleViolation
	for _, id := range g.order {
		n := g.nodes[id]
		if n.Module == "" {
			continue
		}

		check := func(dep NodeID) {
			target, ok := g.nodes[dep]
			if !ok || target.Module == "" || target.Module == n.Module {
				return
			}
			for _, req := range n.Requires {
				if req == target.Module {
					return
				}
			}
			violations = append(violations, &ModuleViolation{
				ConsumerModule: n.Module,
				OwnerModule:    target.Module,
				Dependency:     dep,
			})
		}

		for _, dep := range n.deps {
			check(dep)
		}
		for _, dep := range n.lazyDeps {
			check(dep)
		}
	}

	return violations
}
