// Package graph implements the in-memory model of the compressed triple
// graph: plain nodes with their adjacency lists, and supernodes (clusters of
// structurally equivalent nodes) with their ordered member lists.
//
// Nodes and supernodes share one identifier namespace. An id names exactly
// one of the two at any time; every mutation that inserts under a new id
// checks both maps and fails with ErrIDExists on a collision.
//
// The model is not synchronized. The engine layer serializes access: a
// maintenance pass holds exclusive ownership of the model for its whole
// duration (single writer, no readers during mutation).
package graph

import (
	"fmt"
	"slices"

	"github.com/tidwall/btree"
)

type nodeInfo struct {
	parent    uint32
	hasParent bool
	incoming  []Edge
	outgoing  []Edge
}

// Model owns the two mappings of the compressed graph: node id to node
// record, and supernode id to ordered member list. Ordered maps keep
// iteration (and therefore snapshots) deterministic.
type Model struct {
	nodes      btree.Map[uint32, *nodeInfo]
	supernodes btree.Map[uint32, []uint32]
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// Contains reports whether id names a node or a supernode.
func (m *Model) Contains(id uint32) bool {
	if _, ok := m.nodes.Get(id); ok {
		return true
	}
	_, ok := m.supernodes.Get(id)
	return ok
}

// ContainsNode reports whether id names a plain node.
func (m *Model) ContainsNode(id uint32) bool {
	_, ok := m.nodes.Get(id)
	return ok
}

// ContainsSupernode reports whether id names a supernode.
func (m *Model) ContainsSupernode(id uint32) bool {
	_, ok := m.supernodes.Get(id)
	return ok
}

// MaxID returns the highest id in use across both maps, or 0 for an empty
// model. The bootstrap mints fresh supernode ids above it.
func (m *Model) MaxID() uint32 {
	var max uint32
	if k, _, ok := m.nodes.Max(); ok && k > max {
		max = k
	}
	if k, _, ok := m.supernodes.Max(); ok && k > max {
		max = k
	}
	return max
}

// NodeCount returns the number of plain nodes.
func (m *Model) NodeCount() int { return m.nodes.Len() }

// SupernodeCount returns the number of supernodes.
func (m *Model) SupernodeCount() int { return m.supernodes.Len() }

func (m *Model) node(id uint32) (*nodeInfo, error) {
	n, ok := m.nodes.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrUnknownID, id)
	}
	return n, nil
}

// NewNode registers one endpoint of triple as a brand-new plain node whose
// sole edge is the one just observed: the subject gets an outgoing edge, the
// object an incoming one. The id must be unused; callers check Contains
// first.
func (m *Model) NewNode(t Triple, isSubject bool) error {
	id := t.Obj
	if isSubject {
		id = t.Sub
	}
	if m.Contains(id) {
		return fmt.Errorf("new node %d: %w", id, ErrIDExists)
	}
	n := &nodeInfo{}
	if isSubject {
		n.outgoing = []Edge{t.Out()}
	} else {
		n.incoming = []Edge{t.In()}
	}
	m.nodes.Set(id, n)
	return nil
}

// AddOutgoing appends the triple's (predicate, object) edge to the subject's
// outgoing list. The subject node must already exist.
func (m *Model) AddOutgoing(t Triple) error {
	n, err := m.node(t.Sub)
	if err != nil {
		return fmt.Errorf("add outgoing: %w", err)
	}
	n.outgoing = append(n.outgoing, t.Out())
	return nil
}

// AddIncoming appends the triple's (predicate, subject) edge to the object's
// incoming list. The object node must already exist.
func (m *Model) AddIncoming(t Triple) error {
	n, err := m.node(t.Obj)
	if err != nil {
		return fmt.Errorf("add incoming: %w", err)
	}
	n.incoming = append(n.incoming, t.In())
	return nil
}

// RemoveOutgoing deletes the first outgoing entry of node id that equals e.
// Removing an edge that is not present is a no-op; an unknown id is an error.
func (m *Model) RemoveOutgoing(id uint32, e Edge) error {
	n, err := m.node(id)
	if err != nil {
		return fmt.Errorf("remove outgoing: %w", err)
	}
	if i := slices.Index(n.outgoing, e); i >= 0 {
		n.outgoing = slices.Delete(n.outgoing, i, i+1)
	}
	return nil
}

// RemoveIncoming deletes the first incoming entry of node id that equals e.
func (m *Model) RemoveIncoming(id uint32, e Edge) error {
	n, err := m.node(id)
	if err != nil {
		return fmt.Errorf("remove incoming: %w", err)
	}
	if i := slices.Index(n.incoming, e); i >= 0 {
		n.incoming = slices.Delete(n.incoming, i, i+1)
	}
	return nil
}

// Parent returns the supernode id the node belongs to, if any.
func (m *Model) Parent(id uint32) (parent uint32, ok bool, err error) {
	n, err := m.node(id)
	if err != nil {
		return 0, false, err
	}
	return n.parent, n.hasParent, nil
}

// HasParent reports whether the node currently belongs to a cluster.
func (m *Model) HasParent(id uint32) (bool, error) {
	_, ok, err := m.Parent(id)
	return ok, err
}

// Edges returns copies of the node's incoming and outgoing edge lists.
func (m *Model) Edges(id uint32) (incoming, outgoing []Edge, err error) {
	n, err := m.node(id)
	if err != nil {
		return nil, nil, err
	}
	return slices.Clone(n.incoming), slices.Clone(n.outgoing), nil
}

// HasOutgoingPred reports whether some outgoing edge of id carries pred. For
// a supernode id it recurses into the members; the recursion terminates
// because membership partitions a finite id set and a supernode never
// contains itself.
func (m *Model) HasOutgoingPred(id, pred uint32) (bool, error) {
	if members, ok := m.supernodes.Get(id); ok {
		for _, member := range members {
			found, err := m.HasOutgoingPred(member, pred)
			if err != nil || found {
				return found, err
			}
		}
		return false, nil
	}
	n, err := m.node(id)
	if err != nil {
		return false, err
	}
	for _, e := range n.outgoing {
		if e.Pred == pred {
			return true, nil
		}
	}
	return false, nil
}

// HasIncomingPred is the incoming-side counterpart of HasOutgoingPred.
func (m *Model) HasIncomingPred(id, pred uint32) (bool, error) {
	if members, ok := m.supernodes.Get(id); ok {
		for _, member := range members {
			found, err := m.HasIncomingPred(member, pred)
			if err != nil || found {
				return found, err
			}
		}
		return false, nil
	}
	n, err := m.node(id)
	if err != nil {
		return false, err
	}
	for _, e := range n.incoming {
		if e.Pred == pred {
			return true, nil
		}
	}
	return false, nil
}

// Members returns a copy of the supernode's ordered member list.
func (m *Model) Members(id uint32) ([]uint32, error) {
	members, ok := m.supernodes.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotSupernode, id)
	}
	return slices.Clone(members), nil
}

// SupernodeLen returns the member count of a supernode.
func (m *Model) SupernodeLen(id uint32) (int, error) {
	members, ok := m.supernodes.Get(id)
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrNotSupernode, id)
	}
	return len(members), nil
}

// RemoveFromSupernode detaches the node from its cluster: the id is removed
// from the parent's member list and the node's parent field is cleared. The
// node must currently be clustered.
func (m *Model) RemoveFromSupernode(id uint32) error {
	n, err := m.node(id)
	if err != nil {
		return fmt.Errorf("remove from supernode: %w", err)
	}
	if !n.hasParent {
		return fmt.Errorf("remove from supernode %d: %w", id, ErrNoParent)
	}
	members, ok := m.supernodes.Get(n.parent)
	if !ok {
		return fmt.Errorf("remove from supernode: parent %d of node %d: %w", n.parent, id, ErrUnknownID)
	}
	if i := slices.Index(members, id); i >= 0 {
		m.supernodes.Set(n.parent, slices.Delete(slices.Clone(members), i, i+1))
	}
	n.parent = 0
	n.hasParent = false
	return nil
}

// ToSingleNode collapses a singleton supernode back into a plain node: the
// sole member's parent is cleared and the supernode record is deleted. The
// surviving member id is returned. The supernode must exist and hold exactly
// one member.
func (m *Model) ToSingleNode(snode uint32) (uint32, error) {
	members, ok := m.supernodes.Get(snode)
	if !ok {
		return 0, fmt.Errorf("to single node: %w: %d", ErrNotSupernode, snode)
	}
	if len(members) != 1 {
		return 0, fmt.Errorf("to single node %d: %w (%d members)", snode, ErrNotSingleton, len(members))
	}
	survivor := members[0]
	n, err := m.node(survivor)
	if err != nil {
		return 0, fmt.Errorf("to single node: member of %d: %w", snode, err)
	}
	n.parent = 0
	n.hasParent = false
	m.supernodes.Delete(snode)
	return survivor, nil
}

// NewSupernode merges the given ids into a fresh supernode. Plain nodes are
// appended directly; existing supernodes are dissolved and their members
// absorbed, order preserving. Every absorbed or appended node gets its parent
// repointed to newID. This is the only way clusters come into existence.
func (m *Model) NewSupernode(old []uint32, newID uint32) error {
	if m.Contains(newID) {
		return fmt.Errorf("new supernode %d: %w", newID, ErrIDExists)
	}
	var merged []uint32
	for _, id := range old {
		if members, ok := m.supernodes.Get(id); ok {
			for _, member := range members {
				n, err := m.node(member)
				if err != nil {
					return fmt.Errorf("new supernode: member %d of %d: %w", member, id, err)
				}
				n.parent = newID
				n.hasParent = true
			}
			merged = append(merged, members...)
			m.supernodes.Delete(id)
			continue
		}
		n, err := m.node(id)
		if err != nil {
			return fmt.Errorf("new supernode: %w", err)
		}
		n.parent = newID
		n.hasParent = true
		merged = append(merged, id)
	}
	m.supernodes.Set(newID, merged)
	return nil
}

// RestoreNode inserts a node record verbatim. Used by snapshot loading; the
// id must be unused so a corrupt snapshot cannot break the namespace
// invariant.
func (m *Model) RestoreNode(rec NodeRecord) error {
	if m.Contains(rec.ID) {
		return fmt.Errorf("restore node %d: %w", rec.ID, ErrIDExists)
	}
	n := &nodeInfo{
		incoming: slices.Clone(rec.Incoming),
		outgoing: slices.Clone(rec.Outgoing),
	}
	if rec.Parent != nil {
		n.parent = *rec.Parent
		n.hasParent = true
	}
	m.nodes.Set(rec.ID, n)
	return nil
}

// RestoreSupernode inserts a supernode record verbatim, under the same
// collision rule as RestoreNode.
func (m *Model) RestoreSupernode(rec SupernodeRecord) error {
	if m.Contains(rec.ID) {
		return fmt.Errorf("restore supernode %d: %w", rec.ID, ErrIDExists)
	}
	m.supernodes.Set(rec.ID, slices.Clone(rec.Members))
	return nil
}

// IterateNodes calls fn for every node in ascending id order until fn
// returns false. The record's edge slices alias model state.
func (m *Model) IterateNodes(fn func(rec NodeRecord) bool) {
	m.nodes.Scan(func(id uint32, n *nodeInfo) bool {
		rec := NodeRecord{ID: id, Incoming: n.incoming, Outgoing: n.outgoing}
		if n.hasParent {
			p := n.parent
			rec.Parent = &p
		}
		return fn(rec)
	})
}

// IterateSupernodes calls fn for every supernode in ascending id order until
// fn returns false. The member slice aliases model state.
func (m *Model) IterateSupernodes(fn func(rec SupernodeRecord) bool) {
	m.supernodes.Scan(func(id uint32, members []uint32) bool {
		return fn(SupernodeRecord{ID: id, Members: members})
	})
}
