// Package groups assembles super-groups: connected components of
// sub-groups in the cross-cluster similarity graph.
package groups

import (
	"sort"

	"github.com/rkubicek/rawsidecar/internal/cluster"
	"github.com/rkubicek/rawsidecar/internal/similarity"
)

// SimilarMember is a sub-group connected to a super-group's main
// representative.
type SimilarMember struct {
	Group *cluster.SubGroup
	// PercentToMain is the similarity on the direct edge to the main
	// representative; 0 when the connection is only transitive.
	PercentToMain int
}

// SuperGroup is one connected component of the similarity graph.
type SuperGroup struct {
	Main    *cluster.SubGroup
	Similar []SimilarMember
	// Connections counts the edges inside the component.
	Connections int
}

// SubGroups returns the main plus all similar members, main first.
func (sg *SuperGroup) SubGroups() []*cluster.SubGroup {
	out := make([]*cluster.SubGroup, 0, 1+len(sg.Similar))
	out = append(out, sg.Main)
	for _, s := range sg.Similar {
		out = append(out, s.Group)
	}
	return out
}

// Assemble folds edges over the sub-groups with union-find and builds
// one SuperGroup per component. With no edges (similarity disabled or
// unavailable) the output corresponds one-to-one with the input.
func Assemble(subGroups []*cluster.SubGroup, edges []similarity.Edge) []*SuperGroup {
	uf := newUnionFind(len(subGroups))
	degree := make([]int, len(subGroups))
	for _, e := range edges {
		uf.union(e.A, e.B)
		degree[e.A]++
		degree[e.B]++
	}

	components := make(map[int][]int)
	for i := range subGroups {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}
	componentEdges := make(map[int]int)
	for _, e := range edges {
		componentEdges[uf.find(e.A)]++
	}

	var out []*SuperGroup
	for root, members := range components {
		main := pickMain(subGroups, degree, members)

		sg := &SuperGroup{
			Main:        subGroups[main],
			Connections: componentEdges[root],
		}
		for _, idx := range members {
			if idx == main {
				continue
			}
			sg.Similar = append(sg.Similar, SimilarMember{
				Group:         subGroups[idx],
				PercentToMain: directPercent(edges, main, idx),
			})
		}
		sort.Slice(sg.Similar, func(i, j int) bool {
			if sg.Similar[i].PercentToMain != sg.Similar[j].PercentToMain {
				return sg.Similar[i].PercentToMain > sg.Similar[j].PercentToMain
			}
			return sg.Similar[i].Group.Representative.Path < sg.Similar[j].Group.Representative.Path
		})
		out = append(out, sg)
	}

	// Canonical order: descending connection count, then main path.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Connections != out[j].Connections {
			return out[i].Connections > out[j].Connections
		}
		return out[i].Main.Representative.Path < out[j].Main.Representative.Path
	})

	// Defensive: no two super-groups may share a main representative.
	seen := make(map[string]bool, len(out))
	deduped := out[:0]
	for _, sg := range out {
		path := sg.Main.Representative.Path
		if seen[path] {
			continue
		}
		seen[path] = true
		deduped = append(deduped, sg)
	}
	return deduped
}

// pickMain selects the member with the highest edge degree; ties break
// on earliest representative capture instant, then path.
func pickMain(subGroups []*cluster.SubGroup, degree []int, members []int) int {
	best := members[0]
	for _, idx := range members[1:] {
		if mainLess(subGroups, degree, idx, best) {
			best = idx
		}
	}
	return best
}

func mainLess(subGroups []*cluster.SubGroup, degree []int, a, b int) bool {
	if degree[a] != degree[b] {
		return degree[a] > degree[b]
	}
	ta := subGroups[a].Representative.TakenAt
	tb := subGroups[b].Representative.TakenAt
	switch {
	case ta != nil && tb == nil:
		return true
	case ta == nil && tb != nil:
		return false
	case ta != nil && tb != nil && !ta.Equal(*tb):
		return ta.Before(*tb)
	}
	return subGroups[a].Representative.Path < subGroups[b].Representative.Path
}

func directPercent(edges []similarity.Edge, main, other int) int {
	for _, e := range edges {
		if (e.A == main && e.B == other) || (e.A == other && e.B == main) {
			return e.Percent
		}
	}
	return 0
}
