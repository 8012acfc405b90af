package graph

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"remig/internal/errors"
)

// ComponentKind represents the kind of a code component
type ComponentKind string

const (
	KindService   ComponentKind = "service"
	KindModule    ComponentKind = "module"
	KindClass     ComponentKind = "class"
	KindFunction  ComponentKind = "function"
	KindDataStore ComponentKind = "data-store"
)

var validComponentKinds = map[ComponentKind]bool{
	KindService:   true,
	KindModule:    true,
	KindClass:     true,
	KindFunction:  true,
	KindDataStore: true,
}

// EdgeKind represents the kind of relation between two components
type EdgeKind string

const (
	EdgeCalls       EdgeKind = "calls"
	EdgeImports     EdgeKind = "imports"
	EdgeSharesData  EdgeKind = "shares-data"
	EdgeSharesState EdgeKind = "shares-state"
)

var validEdgeKinds = map[EdgeKind]bool{
	EdgeCalls:       true,
	EdgeImports:     true,
	EdgeSharesData:  true,
	EdgeSharesState: true,
}

// Component represents a code component reported by the parsing collaborator
type Component struct {
	ID               string        `json:"id" yaml:"id"`
	Kind             ComponentKind `json:"kind" yaml:"kind"`
	Size             int           `json:"size,omitempty" yaml:"size,omitempty"`
	LastModified     string        `json:"lastModified,omitempty" yaml:"lastModified,omitempty"`
	ExternalBoundary bool          `json:"externalBoundary,omitempty" yaml:"externalBoundary,omitempty"`
}

// Edge represents a directed dependency between two components.
// Strength is a positive integer approximating coupling intensity.
type Edge struct {
	From     string   `json:"from" yaml:"from"`
	To       string   `json:"to" yaml:"to"`
	Kind     EdgeKind `json:"kind" yaml:"kind"`
	Strength int      `json:"strength" yaml:"strength"`
}

// Facts is the component/edge report consumed by Build. The parsing
// collaborator must report every component exactly once and every edge with
// both endpoints present in the same report.
type Facts struct {
	Components []Component `json:"components" yaml:"components"`
	Edges      []Edge      `json:"edges" yaml:"edges"`
}

// Direction selects the traversal direction for reachability queries
type Direction int

const (
	// Forward follows edges from dependent to dependency (things this
	// component depends on)
	Forward Direction = iota
	// Backward follows edges from dependency to dependent (things that
	// depend on this component)
	Backward
)

// Graph is an immutable dependency snapshot identified by a content hash.
// All mutation happens by building a new snapshot.
type Graph struct {
	components map[string]Component
	edges      []Edge
	forward    map[string][]int // component id -> indexes into edges
	backward   map[string][]int
	hash       string
}

// Build constructs a snapshot from component/edge facts. It fails with
// MALFORMED_FACTS if a component is reported twice, an edge references an
// unknown component, or an edge is otherwise invalid.
func Build(facts Facts) (*Graph, error) {
	components := make(map[string]Component, len(facts.Components))
	for _, c := range facts.Components {
		if c.ID == "" {
			return nil, errors.Newf(errors.MalformedFacts, "component with empty id")
		}
		if !validComponentKinds[c.Kind] {
			return nil, errors.Newf(errors.MalformedFacts, "component %s has unknown kind %q", c.ID, c.Kind)
		}
		if _, dup := components[c.ID]; dup {
			return nil, errors.Newf(errors.MalformedFacts, "component %s reported more than once", c.ID)
		}
		components[c.ID] = c
	}

	edges := make([]Edge, 0, len(facts.Edges))
	seen := make(map[string]bool, len(facts.Edges))
	for _, e := range facts.Edges {
		if _, ok := components[e.From]; !ok {
			return nil, errors.Newf(errors.MalformedFacts, "edge references unknown component %s", e.From).
				WithDetail("edge", e)
		}
		if _, ok := components[e.To]; !ok {
			return nil, errors.Newf(errors.MalformedFacts, "edge references unknown component %s", e.To).
				WithDetail("edge", e)
		}
		if !validEdgeKinds[e.Kind] {
			return nil, errors.Newf(errors.MalformedFacts, "edge %s->%s has unknown kind %q", e.From, e.To, e.Kind)
		}
		if e.Strength <= 0 {
			return nil, errors.Newf(errors.MalformedFacts, "edge %s->%s has non-positive strength %d", e.From, e.To, e.Strength)
		}
		// Parallel edges of different kinds are allowed; an exact duplicate
		// violates the exactly-once reporting contract
		key := e.From + "\x00" + e.To + "\x00" + string(e.Kind)
		if seen[key] {
			return nil, errors.Newf(errors.MalformedFacts, "duplicate %s edge %s->%s", e.Kind, e.From, e.To)
		}
		seen[key] = true
		edges = append(edges, e)
	}

	sortEdges(edges)

	g := &Graph{
		components: components,
		edges:      edges,
		forward:    make(map[string][]int),
		backward:   make(map[string][]int),
	}
	for i, e := range edges {
		g.forward[e.From] = append(g.forward[e.From], i)
		g.backward[e.To] = append(g.backward[e.To], i)
	}
	g.hash = computeHash(g)

	return g, nil
}

// Hash returns the snapshot's content hash
func (g *Graph) Hash() string {
	return g.hash
}

// NumComponents returns the number of components in the snapshot
func (g *Graph) NumComponents() int {
	return len(g.components)
}

// NumEdges returns the number of edges in the snapshot
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Component returns the component with the given id
func (g *Graph) Component(id string) (Component, bool) {
	c, ok := g.components[id]
	return c, ok
}

// Components returns all components sorted by id
func (g *Graph) Components() []Component {
	out := make([]Component, 0, len(g.components))
	for _, c := range g.components {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ComponentIDs returns all component ids sorted. Callers fetching test
// signals use it so coverage is evaluated over the whole snapshot, not
// just the touched components.
func (g *Graph) ComponentIDs() []string {
	out := make([]string, 0, len(g.components))
	for id := range g.components {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Edges returns all edges in canonical order
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// EdgesFrom returns the edges leaving the given component
func (g *Graph) EdgesFrom(id string) []Edge {
	return g.edgesAt(g.forward[id])
}

// EdgesInto returns the edges arriving at the given component
func (g *Graph) EdgesInto(id string) []Edge {
	return g.edgesAt(g.backward[id])
}

func (g *Graph) edgesAt(idxs []int) []Edge {
	out := make([]Edge, 0, len(idxs))
	for _, i := range idxs {
		out = append(out, g.edges[i])
	}
	return out
}

// Facts returns a canonical copy of the snapshot's facts, suitable for
// persistence and for rebuilding a structurally identical snapshot
func (g *Graph) Facts() Facts {
	return Facts{
		Components: g.Components(),
		Edges:      g.Edges(),
	}
}

// ReachableFrom returns the transitive closure from the given components in
// the given direction, excluding the start set itself. The visited set
// guarantees termination on cyclic graphs.
func (g *Graph) ReachableFrom(ids []string, dir Direction) map[string]bool {
	visited := make(map[string]bool, len(ids))
	stack := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := g.components[id]; !ok {
			continue
		}
		if !visited[id] {
			visited[id] = true
			stack = append(stack, id)
		}
	}

	result := make(map[string]bool)
	for len(stack) > 0 {
		n := len(stack) - 1
		cur := stack[n]
		stack = stack[:n]

		var idxs []int
		if dir == Forward {
			idxs = g.forward[cur]
		} else {
			idxs = g.backward[cur]
		}
		for _, i := range idxs {
			var next string
			if dir == Forward {
				next = g.edges[i].To
			} else {
				next = g.edges[i].From
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			result[next] = true
			stack = append(stack, next)
		}
	}

	return result
}

// SortedIDs returns the ids in a reachability set in sorted order
func SortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Kind < b.Kind
	})
}

// computeHash derives the content hash from the canonical serialization of
// the snapshot's facts
func computeHash(g *Graph) string {
	data, err := json.Marshal(g.Facts())
	if err != nil {
		// Facts contain only marshalable types; this cannot happen
		panic(fmt.Sprintf("graph: canonical marshal failed: %v", err))
	}
	return fmt.Sprintf("%x", sha256.Sum256(data))
}
