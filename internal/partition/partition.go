// Package partition decomposes a dependency snapshot into migration units.
//
// A migration unit is one strongly-connected component of the graph (or a
// singleton). Units exactly partition the snapshot, and the condensed unit
// graph is acyclic, which gives the plan synthesizer a usable partial order
// over a codebase whose real dependency structure contains cycles.
package partition

import (
	"sort"

	"remig/internal/graph"
)

// Unit is a set of components that cannot be ordered relative to each other.
// Irreducible units (true cycles, or a component depending on itself) are
// indivisible step targets: they cannot be split without external semantic
// information.
type Unit struct {
	ID          string   `json:"id"`
	Components  []string `json:"components"`
	Irreducible bool     `json:"irreducible"`
}

// Result holds the unit decomposition of one snapshot
type Result struct {
	// Units in reverse topological order of the condensed graph: a unit
	// always appears after the units it depends on
	Units []Unit

	unitOf     map[string]string   // component id -> unit id
	deps       map[string][]string // unit id -> unit ids it depends on
	dependents map[string][]string // unit id -> unit ids that depend on it
}

// Partition computes the strongly-connected components of the snapshot with
// Tarjan's single-pass algorithm and returns them as ordered migration units.
func Partition(g *graph.Graph) *Result {
	t := &tarjan{
		g:       g,
		index:   make(map[string]int),
		lowlink: make(map[string]int),
		onStack: make(map[string]bool),
	}

	// Sorted roots and sorted adjacency keep the emission order, and with it
	// every downstream plan, deterministic for a given snapshot
	for _, c := range g.Components() {
		if _, visited := t.index[c.ID]; !visited {
			t.strongConnect(c.ID)
		}
	}

	res := &Result{
		unitOf:     make(map[string]string),
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
	}

	// Tarjan emits an SCC only after every SCC it can reach, so the raw
	// emission order is already dependencies-first
	for _, members := range t.sccs {
		sort.Strings(members)
		u := Unit{
			ID:          members[0],
			Components:  members,
			Irreducible: len(members) > 1 || hasSelfEdge(g, members[0]),
		}
		res.Units = append(res.Units, u)
		for _, id := range members {
			res.unitOf[id] = u.ID
		}
	}

	// Aggregate cross-unit edges into the condensed graph
	depSet := make(map[string]map[string]bool)
	for _, e := range g.Edges() {
		fu, tu := res.unitOf[e.From], res.unitOf[e.To]
		if fu == tu {
			continue
		}
		if depSet[fu] == nil {
			depSet[fu] = make(map[string]bool)
		}
		depSet[fu][tu] = true
	}
	for from, tos := range depSet {
		for to := range tos {
			res.deps[from] = append(res.deps[from], to)
			res.dependents[to] = append(res.dependents[to], from)
		}
	}
	for id := range res.deps {
		sort.Strings(res.deps[id])
	}
	for id := range res.dependents {
		sort.Strings(res.dependents[id])
	}

	return res
}

// UnitOf returns the id of the unit containing the given component
func (r *Result) UnitOf(componentID string) (string, bool) {
	id, ok := r.unitOf[componentID]
	return id, ok
}

// Unit returns the unit with the given id
func (r *Result) Unit(id string) (Unit, bool) {
	for _, u := range r.Units {
		if u.ID == id {
			return u, true
		}
	}
	return Unit{}, false
}

// DependenciesOf returns the ids of the units the given unit depends on
func (r *Result) DependenciesOf(unitID string) []string {
	return r.deps[unitID]
}

// DependentsOf returns the ids of the units depending on the given unit
func (r *Result) DependentsOf(unitID string) []string {
	return r.dependents[unitID]
}

// ExternallyReachable reports whether any component of the unit is reachable
// from outside the unit: it has an inbound cross-unit edge or is tagged as an
// external boundary. An irreducible unit failing this is isolated dead code.
func (r *Result) ExternallyReachable(g *graph.Graph, unitID string) bool {
	u, ok := r.Unit(unitID)
	if !ok {
		return false
	}
	for _, id := range u.Components {
		if c, ok := g.Component(id); ok && c.ExternalBoundary {
			return true
		}
		for _, e := range g.EdgesInto(id) {
			if r.unitOf[e.From] != unitID {
				return true
			}
		}
	}
	return false
}

func hasSelfEdge(g *graph.Graph, id string) bool {
	for _, e := range g.EdgesFrom(id) {
		if e.To == id {
			return true
		}
	}
	return false
}

// tarjan carries the traversal state for strongConnect
type tarjan struct {
	g       *graph.Graph
	counter int
	index   map[string]int
	lowlink map[string]int
	onStack map[string]bool
	stack   []string
	sccs    [][]string
}

func (t *tarjan) strongConnect(v string) {
	t.index[v] = t.counter
	t.lowlink[v] = t.counter
	t.counter++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.successors(v) {
		if _, visited := t.index[w]; !visited {
			t.strongConnect(w)
			if t.lowlink[w] < t.lowlink[v] {
				t.lowlink[v] = t.lowlink[w]
			}
		} else if t.onStack[w] {
			if t.index[w] < t.lowlink[v] {
				t.lowlink[v] = t.index[w]
			}
		}
	}

	if t.lowlink[v] == t.index[v] {
		var members []string
		for {
			n := len(t.stack) - 1
			w := t.stack[n]
			t.stack = t.stack[:n]
			t.onStack[w] = false
			members = append(members, w)
			if w == v {
				break
			}
		}
		t.sccs = append(t.sccs, members)
	}
}

func (t *tarjan) successors(v string) []string {
	edges := t.g.EdgesFrom(v)
	out := make([]string, 0, len(edges))
	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		if !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	sort.Strings(out)
	return out
}
