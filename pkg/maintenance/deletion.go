// Package maintenance implements the incremental update pass that keeps the
// compressed graph correct while triples are removed: edge bookkeeping,
// cluster split decisions, singleton-cluster collapse, and the clique
// bookkeeping that goes with each of those.
package maintenance

import (
	"errors"
	"fmt"
	"slices"

	"github.com/sanonone/kompaktdb/pkg/clique"
	"github.com/sanonone/kompaktdb/pkg/graph"
)

// Desync errors mark states the pass is never expected to observe. Like the
// graph sentinels they are fatal: the pass aborts rather than repairing a
// structure it no longer understands.
var (
	// ErrIndexDesync indicates an id with no clique index-map entry.
	ErrIndexDesync = errors.New("maintenance: id missing from clique index map")

	// ErrMemberDesync indicates a node whose parent's member list does not
	// contain it.
	ErrMemberDesync = errors.New("maintenance: node missing from parent member list")
)

// Pass bundles the structures a deletion batch mutates in lockstep: the
// graph model, the two role clique collections, and the index map. One Pass
// handles one batch; counters accumulate over the batch for reporting.
type Pass struct {
	Model  *graph.Model
	Source []clique.Clique
	Target []clique.Clique
	Index  clique.IndexMap

	// Splits counts members detached from a cluster.
	Splits int
	// Collapses counts singleton clusters dissolved back into plain nodes.
	Collapses int
	// PrunedPreds counts predicates dropped from singleton-clique fingerprints.
	PrunedPreds int
}

// NewPass prepares a deletion pass over the given structures. The caller
// must hold exclusive access to all of them until DeleteTriples returns.
func NewPass(m *graph.Model, source, target []clique.Clique, idx clique.IndexMap) *Pass {
	return &Pass{Model: m, Source: source, Target: target, Index: idx}
}

// DeleteTriples applies a batch of removed triples. Each triple's two
// endpoints are handled independently; any model inconsistency aborts the
// whole pass. There is no partial-success mode: a returned error means the
// structures may hold a partially applied batch and must be rebuilt.
func (p *Pass) DeleteTriples(batch []graph.Triple) error {
	for _, t := range batch {
		if err := p.deleteEndpoint(t, true); err != nil {
			return fmt.Errorf("delete (%d,%d,%d): subject: %w", t.Sub, t.Pred, t.Obj, err)
		}
		if err := p.deleteEndpoint(t, false); err != nil {
			return fmt.Errorf("delete (%d,%d,%d): object: %w", t.Sub, t.Pred, t.Obj, err)
		}
	}
	return nil
}

// deleteEndpoint processes one endpoint of a removed triple: the edge the
// triple contributed is dropped from the endpoint's own list, then either
// the singleton-clique fingerprint is pruned (plain endpoint) or the
// endpoint's cluster is re-checked for split and collapse.
func (p *Pass) deleteEndpoint(t graph.Triple, isSubject bool) error {
	id := t.Obj
	if isSubject {
		id = t.Sub
	}
	parent, clustered, err := p.Model.Parent(id)
	if err != nil {
		return err
	}

	if isSubject {
		err = p.Model.RemoveOutgoing(id, t.Out())
	} else {
		err = p.Model.RemoveIncoming(id, t.In())
	}
	if err != nil {
		return err
	}

	if !clustered {
		return p.pruneSingletonClique(id, t.Pred, isSubject)
	}
	if err := p.checkSplit(id, parent); err != nil {
		return err
	}
	return p.checkCollapse(parent)
}

// pruneSingletonClique keeps a lone node's clique fingerprint consistent
// with its remaining edges. Cliques with more than one member represent all
// members collectively and are left alone.
func (p *Pass) pruneSingletonClique(id, pred uint32, isSubject bool) error {
	entry, ok := p.Index[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrIndexDesync, id)
	}
	var cl *clique.Clique
	var justified bool
	var err error
	if isSubject {
		cl = &p.Source[entry[0]]
		justified, err = p.Model.HasOutgoingPred(id, pred)
	} else {
		cl = &p.Target[entry[1]]
		justified, err = p.Model.HasIncomingPred(id, pred)
	}
	if err != nil {
		return err
	}
	if len(cl.Members) != 1 || justified {
		return nil
	}
	cl.RemovePred(pred)
	p.PrunedPreds++
	return nil
}

// checkSplit decides whether the node must leave its cluster. The node stays
// detached iff its remaining edge set is disjoint from the union of its
// siblings' edge sets; any shared edge still justifies the equivalence, so
// the member list is only mutated once the decision is final. Decisions are
// made per triple: an earlier split in the same batch changes the sibling
// union seen here.
func (p *Pass) checkSplit(id, parent uint32) error {
	members, err := p.Model.Members(parent)
	if err != nil {
		return err
	}
	if !slices.Contains(members, id) {
		return fmt.Errorf("%w: node %d, supernode %d", ErrMemberDesync, id, parent)
	}

	nodeIn, nodeOut, err := p.Model.Edges(id)
	if err != nil {
		return err
	}
	var restIn, restOut []graph.Edge
	for _, member := range members {
		if member == id {
			continue
		}
		in, out, err := p.Model.Edges(member)
		if err != nil {
			return err
		}
		restIn = append(restIn, in...)
		restOut = append(restOut, out...)
	}

	if intersects(nodeIn, restIn) || intersects(nodeOut, restOut) {
		return nil
	}
	if err := p.Model.RemoveFromSupernode(id); err != nil {
		return err
	}
	p.Splits++
	return nil
}

// checkCollapse dissolves the cluster if the last split left it with a
// single member. The surviving node takes over the dead supernode's clique
// memberships and index entry.
func (p *Pass) checkCollapse(parent uint32) error {
	n, err := p.Model.SupernodeLen(parent)
	if err != nil {
		return err
	}
	if n != 1 {
		return nil
	}
	survivor, err := p.Model.ToSingleNode(parent)
	if err != nil {
		return err
	}

	entry, ok := p.Index[parent]
	if !ok {
		return fmt.Errorf("%w: supernode %d", ErrIndexDesync, parent)
	}
	p.Source[entry[0]].ReplaceMember(parent, survivor)
	p.Target[entry[1]].ReplaceMember(parent, survivor)
	p.Index[survivor] = entry
	delete(p.Index, parent)
	p.Collapses++
	return nil
}

func intersects(a, b []graph.Edge) bool {
	for _, e := range a {
		if slices.Contains(b, e) {
			return true
		}
	}
	return false
}
