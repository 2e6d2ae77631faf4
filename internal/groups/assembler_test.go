package groups

import (
	"testing"
	"time"

	"github.com/rkubicek/rawsidecar/internal/cluster"
	"github.com/rkubicek/rawsidecar/internal/scan"
	"github.com/rkubicek/rawsidecar/internal/similarity"
)

var base = time.Date(2023, 7, 14, 12, 0, 0, 0, time.UTC)

func sub(path string, offset time.Duration) *cluster.SubGroup {
	ts := base.Add(offset)
	b := &scan.BaseImage{File: scan.File{Path: path}, TakenAt: &ts}
	return &cluster.SubGroup{
		Members:        []*scan.BaseImage{b},
		Representative: b,
		Similarity:     100,
	}
}

func TestAssemble_NoEdgesOneToOne(t *testing.T) {
	subGroups := []*cluster.SubGroup{
		sub("/a.cr2", 0),
		sub("/b.cr2", time.Minute),
		sub("/c.cr2", 2*time.Minute),
	}
	supers := Assemble(subGroups, nil)
	if len(supers) != len(subGroups) {
		t.Fatalf("expected 1:1 with no edges, got %d super-groups", len(supers))
	}
	for _, sg := range supers {
		if len(sg.Similar) != 0 {
			t.Errorf("isolated super-group has %d similar members", len(sg.Similar))
		}
	}
}

func TestAssemble_ConnectedComponent(t *testing.T) {
	subGroups := []*cluster.SubGroup{
		sub("/a.cr2", 0),
		sub("/b.cr2", time.Minute),
		sub("/c.cr2", 2*time.Minute),
	}
	edges := []similarity.Edge{
		{A: 0, B: 1, Percent: 92},
		{A: 1, B: 2, Percent: 85},
	}

	supers := Assemble(subGroups, edges)
	if len(supers) != 1 {
		t.Fatalf("expected one component, got %d", len(supers))
	}
	sg := supers[0]

	// b has degree 2, a and c degree 1.
	if sg.Main.Representative.Path != "/b.cr2" {
		t.Errorf("expected /b.cr2 as main, got %s", sg.Main.Representative.Path)
	}
	if sg.Connections != 2 {
		t.Errorf("expected 2 connections, got %d", sg.Connections)
	}
	if len(sg.Similar) != 2 {
		t.Fatalf("expected 2 similar members, got %d", len(sg.Similar))
	}
	for _, m := range sg.Similar {
		switch m.Group.Representative.Path {
		case "/a.cr2":
			if m.PercentToMain != 92 {
				t.Errorf("a-b percent = %d, want 92", m.PercentToMain)
			}
		case "/c.cr2":
			if m.PercentToMain != 85 {
				t.Errorf("c-b percent = %d, want 85", m.PercentToMain)
			}
		}
	}
}

func TestAssemble_DegreeTieBreaksOnCapture(t *testing.T) {
	// Two groups, one edge: both have degree 1, the earlier capture wins.
	subGroups := []*cluster.SubGroup{
		sub("/later.cr2", time.Hour),
		sub("/earlier.cr2", 0),
	}
	edges := []similarity.Edge{{A: 0, B: 1, Percent: 92}}

	supers := Assemble(subGroups, edges)
	if len(supers) != 1 {
		t.Fatalf("expected one component, got %d", len(supers))
	}
	if supers[0].Main.Representative.Path != "/earlier.cr2" {
		t.Errorf("tie must break on earliest capture, got %s", supers[0].Main.Representative.Path)
	}
}

func TestAssemble_TransitiveMemberPercentZero(t *testing.T) {
	subGroups := []*cluster.SubGroup{
		sub("/a.cr2", 0),
		sub("/b.cr2", time.Minute),
		sub("/c.cr2", 2*time.Minute),
	}
	// a-b and b-c: a and c are only transitively connected. Give a the
	// highest degree via an extra edge to a fourth group.
	subGroups = append(subGroups, sub("/d.cr2", 3*time.Minute))
	edges := []similarity.Edge{
		{A: 0, B: 1, Percent: 90},
		{A: 1, B: 2, Percent: 85},
		{A: 0, B: 3, Percent: 88},
	}

	supers := Assemble(subGroups, edges)
	if len(supers) != 1 {
		t.Fatalf("expected one component, got %d", len(supers))
	}
	sg := supers[0]
	if sg.Main.Representative.Path != "/a.cr2" {
		t.Fatalf("expected /a.cr2 main (degree 2, earliest), got %s", sg.Main.Representative.Path)
	}
	for _, m := range sg.Similar {
		if m.Group.Representative.Path == "/c.cr2" && m.PercentToMain != 0 {
			t.Errorf("transitive member must carry percent 0, got %d", m.PercentToMain)
		}
	}
}

func TestAssemble_OrderedByConnections(t *testing.T) {
	subGroups := []*cluster.SubGroup{
		sub("/a.cr2", 0),
		sub("/b.cr2", time.Minute),
		sub("/c.cr2", 2*time.Minute),
		sub("/d.cr2", 3*time.Minute),
		sub("/e.cr2", 4*time.Minute),
	}
	edges := []similarity.Edge{
		{A: 0, B: 1, Percent: 90},
		{A: 1, B: 2, Percent: 85},
		{A: 3, B: 4, Percent: 95},
	}

	supers := Assemble(subGroups, edges)
	if len(supers) != 2 {
		t.Fatalf("expected 2 components, got %d", len(supers))
	}
	if supers[0].Connections < supers[1].Connections {
		t.Error("super-groups must sort by descending connection count")
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(3, 4)
	if uf.find(0) != uf.find(1) {
		t.Error("0 and 1 must share a root")
	}
	if uf.find(0) == uf.find(3) {
		t.Error("separate components must not share a root")
	}
	uf.union(1, 3)
	if uf.find(0) != uf.find(4) {
		t.Error("union must be transitive")
	}
}
