// Package clique maintains the predicate-fingerprint groups used to find
// merge candidates: for the source role nodes are grouped by their outgoing
// predicate set, for the target role by their incoming one. The index map
// gives, for any id, the position of its clique in each role.
package clique

import (
	"slices"
	"sort"

	"github.com/sanonone/kompaktdb/pkg/graph"
)

// Clique is one fingerprint group: the ids sharing the fingerprint and the
// predicates that make it up.
type Clique struct {
	Members []uint32
	Preds   []uint32
}

// ContainsPred reports whether pred is part of the fingerprint.
func (c *Clique) ContainsPred(pred uint32) bool {
	return slices.Contains(c.Preds, pred)
}

// RemovePred drops pred from the fingerprint, if present.
func (c *Clique) RemovePred(pred uint32) {
	if i := slices.Index(c.Preds, pred); i >= 0 {
		c.Preds = slices.Delete(c.Preds, i, i+1)
	}
}

// RemoveMember drops id from the member list, if present.
func (c *Clique) RemoveMember(id uint32) {
	if i := slices.Index(c.Members, id); i >= 0 {
		c.Members = slices.Delete(c.Members, i, i+1)
	}
}

// ReplaceMember swaps old for new in place. If old is absent nothing
// changes; if new is already a member, old is simply removed.
func (c *Clique) ReplaceMember(old, new uint32) {
	i := slices.Index(c.Members, old)
	if i < 0 {
		return
	}
	if slices.Contains(c.Members, new) {
		c.Members = slices.Delete(c.Members, i, i+1)
		return
	}
	c.Members[i] = new
}

// IndexMap locates an id's cliques: index 0 is the position in the
// source-role collection, index 1 in the target-role one.
type IndexMap map[uint32][2]int

// Build groups the endpoints of the triple set into source- and target-role
// cliques. Position 0 of each collection is the conventional empty clique,
// holding the ids that never play that role.
func Build(triples []graph.Triple) (source, target []Clique) {
	outPreds := make(map[uint32][]uint32)
	inPreds := make(map[uint32][]uint32)
	ids := make(map[uint32]struct{})
	for _, t := range triples {
		ids[t.Sub] = struct{}{}
		ids[t.Obj] = struct{}{}
		if !slices.Contains(outPreds[t.Sub], t.Pred) {
			outPreds[t.Sub] = append(outPreds[t.Sub], t.Pred)
		}
		if !slices.Contains(inPreds[t.Obj], t.Pred) {
			inPreds[t.Obj] = append(inPreds[t.Obj], t.Pred)
		}
	}

	ordered := make([]uint32, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	source = buildRole(ordered, outPreds)
	target = buildRole(ordered, inPreds)
	return source, target
}

// buildRole groups ids with an identical predicate set into one clique,
// keeping id order deterministic. Ids with no predicates land in the empty
// clique at position 0.
func buildRole(ordered []uint32, preds map[uint32][]uint32) []Clique {
	cliques := []Clique{{}}
	byFingerprint := make(map[string]int)
	for _, id := range ordered {
		ps := preds[id]
		if len(ps) == 0 {
			cliques[0].Members = append(cliques[0].Members, id)
			continue
		}
		key := fingerprint(ps)
		i, ok := byFingerprint[key]
		if !ok {
			i = len(cliques)
			byFingerprint[key] = i
			sorted := slices.Clone(ps)
			sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
			cliques = append(cliques, Clique{Preds: sorted})
		}
		cliques[i].Members = append(cliques[i].Members, id)
	}
	return cliques
}

func fingerprint(preds []uint32) string {
	sorted := slices.Clone(preds)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	key := make([]byte, 0, len(sorted)*5)
	for _, p := range sorted {
		key = append(key, byte(p), byte(p>>8), byte(p>>16), byte(p>>24), ',')
	}
	return string(key)
}

// Fold rewrites clustered member ids to their supernode id, so the clique
// collections track the compressed structure rather than the raw endpoints.
// Duplicate parents are collapsed to a single entry, order preserving.
func Fold(cliques []Clique, m *graph.Model) error {
	for i := range cliques {
		folded := cliques[i].Members[:0:0]
		for _, id := range cliques[i].Members {
			resolved := id
			if m.ContainsNode(id) {
				parent, ok, err := m.Parent(id)
				if err != nil {
					return err
				}
				if ok {
					resolved = parent
				}
			}
			if !slices.Contains(folded, resolved) {
				folded = append(folded, resolved)
			}
		}
		cliques[i].Members = folded
	}
	return nil
}

// Extend adds index entries for supernode ids so collapse bookkeeping can
// locate a dead cluster's cliques. A supernode inherits the positions of its
// first member; members always agree on the role that merged them, and for
// the other role the first member is the deterministic pick.
func (idx IndexMap) Extend(m *graph.Model) {
	m.IterateSupernodes(func(rec graph.SupernodeRecord) bool {
		if len(rec.Members) == 0 {
			return true
		}
		if entry, ok := idx[rec.Members[0]]; ok {
			idx[rec.ID] = entry
		}
		return true
	})
}

// BuildIndexMap derives the id-to-clique-position map from the two role
// collections. Ids missing from a role stay at position 0, the empty clique.
func BuildIndexMap(source, target []Clique) IndexMap {
	idx := make(IndexMap)
	for i, c := range source {
		for _, id := range c.Members {
			entry := idx[id]
			entry[0] = i
			idx[id] = entry
		}
	}
	for i, c := range target {
		for _, id := range c.Members {
			entry := idx[id]
			entry[1] = i
			idx[id] = entry
		}
	}
	return idx
}
