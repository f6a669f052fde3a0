package clique

import (
	"slices"
	"testing"

	"github.com/sanonone/kompaktdb/pkg/graph"
)

func TestBuildGroupsByFingerprint(t *testing.T) {
	triples := []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
		{Sub: 4, Pred: 10, Obj: 5},
		{Sub: 6, Pred: 11, Obj: 5},
	}
	source, target := Build(triples)

	// Subjects 1 and 4 share the outgoing fingerprint {10}; 6 has {11};
	// 2, 3, 5 never appear as subject and land in the empty clique.
	if !slices.Equal(source[0].Members, []uint32{2, 3, 5}) {
		t.Errorf("empty source clique = %v", source[0].Members)
	}
	sub14 := findCliqueWith(t, source, 1)
	if !slices.Equal(sub14.Members, []uint32{1, 4}) || !slices.Equal(sub14.Preds, []uint32{10}) {
		t.Errorf("clique of 1: members=%v preds=%v", sub14.Members, sub14.Preds)
	}
	sub6 := findCliqueWith(t, source, 6)
	if !slices.Equal(sub6.Preds, []uint32{11}) {
		t.Errorf("clique of 6: preds=%v", sub6.Preds)
	}

	// Object 5 has incoming fingerprint {10,11}, distinct from {10} of 2,3.
	obj5 := findCliqueWith(t, target, 5)
	if !slices.Equal(obj5.Preds, []uint32{10, 11}) {
		t.Errorf("target clique of 5: preds=%v", obj5.Preds)
	}
	obj2 := findCliqueWith(t, target, 2)
	if !slices.Equal(obj2.Members, []uint32{2, 3}) {
		t.Errorf("target clique of 2: members=%v", obj2.Members)
	}
}

func findCliqueWith(t *testing.T, cliques []Clique, id uint32) *Clique {
	t.Helper()
	for i := range cliques {
		if i > 0 && slices.Contains(cliques[i].Members, id) {
			return &cliques[i]
		}
	}
	t.Fatalf("no clique holds %d", id)
	return nil
}

func TestIndexMapPositions(t *testing.T) {
	triples := []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 2, Pred: 11, Obj: 1},
	}
	source, target := Build(triples)
	idx := BuildIndexMap(source, target)

	for _, id := range []uint32{1, 2} {
		entry, ok := idx[id]
		if !ok {
			t.Fatalf("no index entry for %d", id)
		}
		if !slices.Contains(source[entry[0]].Members, id) {
			t.Errorf("source clique %d does not hold %d", entry[0], id)
		}
		if !slices.Contains(target[entry[1]].Members, id) {
			t.Errorf("target clique %d does not hold %d", entry[1], id)
		}
	}
}

func TestFoldRewritesClusteredMembers(t *testing.T) {
	triples := []graph.Triple{
		{Sub: 1, Pred: 10, Obj: 2},
		{Sub: 1, Pred: 10, Obj: 3},
	}
	m := graph.NewModel()
	for _, tr := range triples {
		if !m.Contains(tr.Sub) {
			_ = m.NewNode(tr, true)
		} else {
			_ = m.AddOutgoing(tr)
		}
		if !m.Contains(tr.Obj) {
			_ = m.NewNode(tr, false)
		} else {
			_ = m.AddIncoming(tr)
		}
	}
	if err := m.NewSupernode([]uint32{2, 3}, 99); err != nil {
		t.Fatal(err)
	}

	_, target := Build(triples)
	if err := Fold(target, m); err != nil {
		t.Fatal(err)
	}

	cl := findCliqueWith(t, target, 99)
	if !slices.Equal(cl.Members, []uint32{99}) {
		t.Errorf("folded members = %v, want [99]", cl.Members)
	}
}

func TestReplaceMember(t *testing.T) {
	c := Clique{Members: []uint32{5, 7, 9}}

	c.ReplaceMember(7, 8)
	if !slices.Equal(c.Members, []uint32{5, 8, 9}) {
		t.Errorf("after swap: %v", c.Members)
	}

	// Swapping in an existing member must not duplicate it.
	c.ReplaceMember(5, 9)
	if !slices.Equal(c.Members, []uint32{8, 9}) {
		t.Errorf("after dedup swap: %v", c.Members)
	}

	c.ReplaceMember(42, 43)
	if !slices.Equal(c.Members, []uint32{8, 9}) {
		t.Errorf("after absent swap: %v", c.Members)
	}
}

func TestRemovePred(t *testing.T) {
	c := Clique{Preds: []uint32{10, 11}}
	c.RemovePred(10)
	if !slices.Equal(c.Preds, []uint32{11}) {
		t.Errorf("preds = %v", c.Preds)
	}
	c.RemovePred(10)
	if !slices.Equal(c.Preds, []uint32{11}) {
		t.Errorf("preds after repeat removal = %v", c.Preds)
	}
}
