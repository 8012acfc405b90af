package graph

// Delta reports the structural difference between two snapshots
type Delta struct {
	AddedComponents   []Component `json:"addedComponents,omitempty"`
	RemovedComponents []Component `json:"removedComponents,omitempty"`
	AddedEdges        []Edge      `json:"addedEdges,omitempty"`
	RemovedEdges      []Edge      `json:"removedEdges,omitempty"`
}

// Empty reports whether the delta contains no changes
func (d *Delta) Empty() bool {
	return len(d.AddedComponents) == 0 &&
		len(d.RemovedComponents) == 0 &&
		len(d.AddedEdges) == 0 &&
		len(d.RemovedEdges) == 0
}

// Diff reports the components and edges added and removed between the old
// and new snapshots. Component metadata changes count as remove+add.
func Diff(old, new *Graph) *Delta {
	d := &Delta{}

	for _, c := range new.Components() {
		oc, ok := old.components[c.ID]
		if !ok {
			d.AddedComponents = append(d.AddedComponents, c)
		} else if oc != c {
			d.RemovedComponents = append(d.RemovedComponents, oc)
			d.AddedComponents = append(d.AddedComponents, c)
		}
	}
	for _, c := range old.Components() {
		if _, ok := new.components[c.ID]; !ok {
			d.RemovedComponents = append(d.RemovedComponents, c)
		}
	}

	oldEdges := edgeSet(old.edges)
	newEdges := edgeSet(new.edges)
	for _, e := range new.edges {
		if !oldEdges[e] {
			d.AddedEdges = append(d.AddedEdges, e)
		}
	}
	for _, e := range old.edges {
		if !newEdges[e] {
			d.RemovedEdges = append(d.RemovedEdges, e)
		}
	}

	return d
}

func edgeSet(edges []Edge) map[Edge]bool {
	set := make(map[Edge]bool, len(edges))
	for _, e := range edges {
		set[e] = true
	}
	return set
}
