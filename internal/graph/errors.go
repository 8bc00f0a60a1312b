package graph

import (
	"fmt"
	"strings"
)

// CycleError reports every cycle found in the graph with full membership
// and, where known, each member's declaring source location.
type CycleError struct {
	Cycles    [][]NodeID
	Locations map[NodeID]string
}

func (e *CycleError) Error() string {
	var b strings.Builder

	if len(e.Cycles) == 1 {
		b.WriteString("dependency cycle detected: ")
	} else {
		fmt.Fprintf(&b, "%d dependency cycles detected:\n", len(e.Cycles))
	}

	for _, cycle := range e.Cycles {
		parts := make([]string, 0, len(cycle)+1)
		for _, id := range cycle {
			parts = append(parts, string(id))
		}
		if len(cycle) > 0 {
			parts = append(parts, string(cycle[0]))
		}

		if len(e.Cycles) > 1 {
			b.WriteString("  • ")
		}
		b.WriteString(strings.Join(parts, " -> "))
		b.WriteString("\n")
	}

	if len(e.Locations) > 0 {
		b.WriteString("\nDeclared at:\n")
		for _, cycle := range e.Cycles {
			for _, id := range cycle {
				if loc, ok := e.Locations[id]; ok {
					fmt.Fprintf(&b, "  • %s (%s)\n", id, loc)
				}
			}
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// First returns the first reported cycle, which by construction is the one
// whose earliest member was registered first.
func (e *CycleError) First() []NodeID {
	if len(e.Cycles) == 0 {
		return nil
	}
	return e.Cycles[0]
}
