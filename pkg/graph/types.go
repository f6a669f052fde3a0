package graph

import "errors"

// Sentinel errors for graph model operations.
//
// All of them signal internal-consistency violations: the maintenance layer
// never expects to hit one of these during a well-formed update pass, so any
// of them aborts the pass instead of being retried or ignored.
var (
	// ErrUnknownID indicates an id that names neither a node nor a supernode.
	ErrUnknownID = errors.New("graph: unknown id")

	// ErrIDExists indicates an insertion under an id that is already taken
	// (by a node or a supernode; the two key sets never overlap).
	ErrIDExists = errors.New("graph: id already exists")

	// ErrNotSupernode indicates a supernode operation applied to a plain node id.
	ErrNotSupernode = errors.New("graph: id is not a supernode")

	// ErrNotSingleton indicates a collapse attempt on a supernode that still
	// has more than one member.
	ErrNotSingleton = errors.New("graph: supernode is not a singleton")

	// ErrNoParent indicates a detach attempt on a node that is not clustered.
	ErrNoParent = errors.New("graph: node has no parent")
)

// Triple is a single integer-encoded fact: subject, predicate, object.
// All three identifiers live in the same namespace as node and supernode ids.
type Triple struct {
	Sub  uint32
	Pred uint32
	Obj  uint32
}

// Edge is one entry of a node's adjacency list: the predicate and the id of
// the other endpoint. For an outgoing edge Other is the object, for an
// incoming edge it is the subject.
type Edge struct {
	Pred  uint32
	Other uint32
}

// Out returns the outgoing edge a triple contributes to its subject.
func (t Triple) Out() Edge { return Edge{Pred: t.Pred, Other: t.Obj} }

// In returns the incoming edge a triple contributes to its object.
func (t Triple) In() Edge { return Edge{Pred: t.Pred, Other: t.Sub} }

// NodeRecord is the flat projection of a node used by snapshots and by
// read-only iteration. Parent is nil for unclustered nodes. Edge slices are
// shared with the model on iteration; callers must not mutate them.
type NodeRecord struct {
	ID       uint32
	Parent   *uint32
	Incoming []Edge
	Outgoing []Edge
}

// SupernodeRecord is the flat projection of a supernode: its id and the
// ordered member list.
type SupernodeRecord struct {
	ID      uint32
	Members []uint32
}
