package maintenance

import (
	"errors"
	"slices"
	"testing"

	"github.com/sanonone/kompaktdb/pkg/clique"
	"github.com/sanonone/kompaktdb/pkg/graph"
)

// newTestPass ingests the triples into a fresh model, applies the requested
// merges, and wires up cliques and index map the way the engine bootstrap
// does.
func newTestPass(t *testing.T, triples []graph.Triple, merges map[uint32][]uint32) *Pass {
	t.Helper()
	m := graph.NewModel()
	for _, tr := range triples {
		if !m.Contains(tr.Sub) {
			if err := m.NewNode(tr, true); err != nil {
				t.Fatal(err)
			}
		} else if err := m.AddOutgoing(tr); err != nil {
			t.Fatal(err)
		}
		if !m.Contains(tr.Obj) {
			if err := m.NewNode(tr, false); err != nil {
				t.Fatal(err)
			}
		} else if err := m.AddIncoming(tr); err != nil {
			t.Fatal(err)
		}
	}
	snodes := make([]uint32, 0, len(merges))
	for id := range merges {
		snodes = append(snodes, id)
	}
	slices.Sort(snodes)
	for _, id := range snodes {
		if err := m.NewSupernode(merges[id], id); err != nil {
			t.Fatal(err)
		}
	}

	source, target := clique.Build(triples)
	idx := clique.BuildIndexMap(source, target)
	if err := clique.Fold(source, m); err != nil {
		t.Fatal(err)
	}
	if err := clique.Fold(target, m); err != nil {
		t.Fatal(err)
	}
	idx.Extend(m)
	return NewPass(m, source, target, idx)
}

// checkConsistency asserts the partition, parent-consistency, and
// no-persisted-singleton properties after a pass.
func checkConsistency(t *testing.T, m *graph.Model) {
	t.Helper()
	owner := make(map[uint32]uint32)
	m.IterateSupernodes(func(rec graph.SupernodeRecord) bool {
		if len(rec.Members) == 1 {
			t.Errorf("singleton supernode %d survived the pass", rec.ID)
		}
		if m.ContainsNode(rec.ID) {
			t.Errorf("id %d is both node and supernode", rec.ID)
		}
		for _, member := range rec.Members {
			if prev, dup := owner[member]; dup {
				t.Errorf("member %d in supernodes %d and %d", member, prev, rec.ID)
			}
			owner[member] = rec.ID
		}
		return true
	})
	m.IterateNodes(func(rec graph.NodeRecord) bool {
		o, clustered := owner[rec.ID]
		switch {
		case rec.Parent == nil && clustered:
			t.Errorf("node %d parentless but member of %d", rec.ID, o)
		case rec.Parent != nil && (!clustered || o != *rec.Parent):
			t.Errorf("node %d parent=%d, member of %v", rec.ID, *rec.Parent, o)
		}
		return true
	})
}

func TestPlainEndpointEdgeRemovalAndCliquePrune(t *testing.T) {
	p := newTestPass(t, []graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}, nil)

	if err := p.DeleteTriples([]graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}); err != nil {
		t.Fatal(err)
	}

	in, out, err := p.Model.Edges(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(in)+len(out) != 0 {
		t.Errorf("node 1 still has edges: in=%v out=%v", in, out)
	}

	// Both endpoints sat alone in their role cliques, so the unjustified
	// predicate 10 must be gone from both fingerprints.
	sIdx := p.Index[1][0]
	if p.Source[sIdx].ContainsPred(10) {
		t.Errorf("source fingerprint still carries 10: %v", p.Source[sIdx].Preds)
	}
	tIdx := p.Index[2][1]
	if p.Target[tIdx].ContainsPred(10) {
		t.Errorf("target fingerprint still carries 10: %v", p.Target[tIdx].Preds)
	}
	if p.PrunedPreds != 2 {
		t.Errorf("PrunedPreds = %d, want 2", p.PrunedPreds)
	}
	checkConsistency(t, p.Model)
}

func TestPruneSkipsJustifiedPredicate(t *testing.T) {
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
	}, nil)

	if err := p.DeleteTriples([]graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}); err != nil {
		t.Fatal(err)
	}

	// Node 1 still has (10, 3) outgoing, so its fingerprint keeps 10.
	sIdx := p.Index[1][0]
	if !p.Source[sIdx].ContainsPred(10) {
		t.Error("predicate 10 pruned although an edge still justifies it")
	}
}

func TestSharedObjectClusterScenario(t *testing.T) {
	// Supernode 99 = {2, 3}, both objects of predicate 10 from subject 1.
	// Deleting (1,10,2) leaves node 2 with no edges: it splits out, 99
	// shrinks to {3} and collapses, and the target clique entry for 99 is
	// rewritten to the surviving node 3.
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
	}, map[uint32][]uint32{99: {2, 3}})

	if err := p.DeleteTriples([]graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}); err != nil {
		t.Fatal(err)
	}

	if p.Model.Contains(99) {
		t.Error("supernode 99 still exists")
	}
	for _, id := range []uint32{2, 3} {
		if ok, err := p.Model.HasParent(id); err != nil || ok {
			t.Errorf("node %d: parent=%v err=%v, want plain node", id, ok, err)
		}
	}
	in, _, _ := p.Model.Edges(2)
	if len(in) != 0 {
		t.Errorf("node 2 incoming = %v, want empty", in)
	}
	in, _, _ = p.Model.Edges(3)
	if !slices.Equal(in, []graph.Edge{{Pred: 10, Other: 1}}) {
		t.Errorf("node 3 incoming = %v, want [(10,1)]", in)
	}

	if _, ok := p.Index[99]; ok {
		t.Error("index map still holds the collapsed supernode")
	}
	entry, ok := p.Index[3]
	if !ok {
		t.Fatal("survivor 3 has no index entry")
	}
	if !slices.Contains(p.Target[entry[1]].Members, uint32(3)) {
		t.Errorf("target clique %d does not hold survivor 3: %v", entry[1], p.Target[entry[1]].Members)
	}

	if p.Splits != 1 || p.Collapses != 1 {
		t.Errorf("splits=%d collapses=%d, want 1/1", p.Splits, p.Collapses)
	}
	checkConsistency(t, p.Model)
}

func TestSplitRevertedWhileEdgesOverlap(t *testing.T) {
	// Cluster 100 = {2, 3, 4}. Node 3 shares incoming (10,1) with node 2
	// and incoming (11,5) with node 4. Removing (5,11,3) leaves 3 still
	// overlapping 2, so 3 must stay in the cluster.
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
		{Sub: 5, Pred: 11, Obj: 3},
		{Sub: 5, Pred: 11, Obj: 4},
	}, map[uint32][]uint32{100: {2, 3, 4}})

	if err := p.DeleteTriples([]graph.Triple{{Sub: 5, Pred: 11, Obj: 3}}); err != nil {
		t.Fatal(err)
	}

	members, err := p.Model.Members(100)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []uint32{2, 3, 4}) {
		t.Errorf("members = %v, want [2 3 4]", members)
	}
	if p.Splits != 0 {
		t.Errorf("splits = %d, want 0", p.Splits)
	}
	checkConsistency(t, p.Model)
}

// TestSplitDetachesMiddleMember deletes inside a 3-member cluster and checks
// the decision is made for the touched node itself, not for whichever member
// happens to sit first in the member list.
func TestSplitDetachesMiddleMember(t *testing.T) {
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
		{Sub: 5, Pred: 11, Obj: 3},
		{Sub: 5, Pred: 11, Obj: 4},
	}, map[uint32][]uint32{100: {2, 3, 4}})

	batch := []graph.Triple{
		{Sub: 5, Pred: 11, Obj: 3},
		{Sub: 1, Pred: 10, Obj: 3},
	}
	if err := p.DeleteTriples(batch); err != nil {
		t.Fatal(err)
	}

	// After both deletions node 3 (the middle member) has no edges left and
	// must be the one detached; 2 and 4 stay clustered.
	members, err := p.Model.Members(100)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []uint32{2, 4}) {
		t.Errorf("members = %v, want [2 4]", members)
	}
	if ok, _ := p.Model.HasParent(3); ok {
		t.Error("node 3 should have been detached")
	}
	if p.Splits != 1 || p.Collapses != 0 {
		t.Errorf("splits=%d collapses=%d, want 1/0", p.Splits, p.Collapses)
	}
	checkConsistency(t, p.Model)
}

func TestCascadingSplitsCollapseCluster(t *testing.T) {
	// One batch removes two of the three justifying triples; the splits
	// must cascade and the final singleton must collapse within the pass.
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
		{Sub: 1, Pred: 10, Obj: 4},
	}, map[uint32][]uint32{100: {2, 3, 4}})

	batch := []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
	}
	if err := p.DeleteTriples(batch); err != nil {
		t.Fatal(err)
	}

	if p.Model.Contains(100) {
		t.Error("supernode 100 should have collapsed")
	}
	for _, id := range []uint32{2, 3, 4} {
		if ok, _ := p.Model.HasParent(id); ok {
			t.Errorf("node %d still clustered", id)
		}
	}
	if p.Splits != 2 || p.Collapses != 1 {
		t.Errorf("splits=%d collapses=%d, want 2/1", p.Splits, p.Collapses)
	}
	checkConsistency(t, p.Model)
}

func TestDetachedNodeKeepsUnrelatedEdges(t *testing.T) {
	// Node 2 has a second incoming edge from an unrelated subject. The
	// deletion detaches it from the cluster but must not touch that edge.
	p := newTestPass(t, []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
		{Sub: 6, Pred: 12, Obj: 2},
	}, map[uint32][]uint32{100: {2, 3}})

	if err := p.DeleteTriples([]graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}); err != nil {
		t.Fatal(err)
	}

	in, _, err := p.Model.Edges(2)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(in, []graph.Edge{{Pred: 12, Other: 6}}) {
		t.Errorf("node 2 incoming = %v, want [(12,6)]", in)
	}
	if p.Model.Contains(100) {
		t.Error("supernode 100 should have collapsed after the split")
	}
	checkConsistency(t, p.Model)
}

func TestUnknownEndpointAbortsPass(t *testing.T) {
	p := newTestPass(t, []graph.Triple{{Sub: 1, Pred: 10, Obj: 2}}, nil)

	err := p.DeleteTriples([]graph.Triple{{Sub: 7, Pred: 10, Obj: 2}})
	if !errors.Is(err, graph.ErrUnknownID) {
		t.Fatalf("want ErrUnknownID, got %v", err)
	}
}
