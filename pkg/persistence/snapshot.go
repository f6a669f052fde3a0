// Package persistence implements the on-disk formats of the compressed
// graph: the snapshot (a flat projection of the node and supernode maps into
// CRC-protected binary frames) and the deletion journal that bridges the gap
// between snapshots.
package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sanonone/kompaktdb/pkg/graph"
)

// WriteSnapshot projects the model into a frame stream: all supernode
// records first, then all node records, each in ascending id order. Order
// across records carries no meaning; order within member and edge lists is
// preserved.
func WriteSnapshot(w io.Writer, m *graph.Model) error {
	bw := bufio.NewWriter(w)
	fw := NewFrameWriter(bw)

	var err error
	m.IterateSupernodes(func(rec graph.SupernodeRecord) bool {
		err = fw.WriteFrame(OpCodeSupernode, encodeSupernode(rec))
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("write supernode frame: %w", err)
	}
	m.IterateNodes(func(rec graph.NodeRecord) bool {
		err = fw.WriteFrame(OpCodeNode, encodeNode(rec))
		return err == nil
	})
	if err != nil {
		return fmt.Errorf("write node frame: %w", err)
	}
	return bw.Flush()
}

// ReadSnapshot reconstructs a model from a frame stream. Duplicate ids,
// within or across the two record kinds, are rejected: a snapshot that
// violates the namespace invariant must not load.
func ReadSnapshot(r io.Reader) (*graph.Model, error) {
	m := graph.NewModel()
	br := bufio.NewReader(r)
	for {
		opCode, payload, err := ReadFrame(br)
		if err == io.EOF {
			return m, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot frame: %w", err)
		}
		switch opCode {
		case OpCodeSupernode:
			rec, err := decodeSupernode(payload)
			if err != nil {
				return nil, err
			}
			if err := m.RestoreSupernode(rec); err != nil {
				return nil, err
			}
		case OpCodeNode:
			rec, err := decodeNode(payload)
			if err != nil {
				return nil, err
			}
			if err := m.RestoreNode(rec); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownOpCode, opCode)
		}
	}
}

// Supernode payload: id(4) count(4) member(4)*count.
func encodeSupernode(rec graph.SupernodeRecord) []byte {
	buf := make([]byte, 8+4*len(rec.Members))
	binary.LittleEndian.PutUint32(buf[0:4], rec.ID)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(rec.Members)))
	for i, member := range rec.Members {
		binary.LittleEndian.PutUint32(buf[8+4*i:], member)
	}
	return buf
}

func decodeSupernode(payload []byte) (graph.SupernodeRecord, error) {
	var rec graph.SupernodeRecord
	if len(payload) < 8 {
		return rec, fmt.Errorf("supernode frame: %w", ErrIncompleteFrame)
	}
	rec.ID = binary.LittleEndian.Uint32(payload[0:4])
	count := binary.LittleEndian.Uint32(payload[4:8])
	if uint32(len(payload)) != 8+4*count {
		return rec, fmt.Errorf("supernode frame for %d: %w", rec.ID, ErrIncompleteFrame)
	}
	rec.Members = make([]uint32, count)
	for i := range rec.Members {
		rec.Members[i] = binary.LittleEndian.Uint32(payload[8+4*i:])
	}
	return rec, nil
}

// Node payload: id(4) parentFlag(1) [parent(4)] inCount(4) (pred,other)* outCount(4) (pred,other)*.
func encodeNode(rec graph.NodeRecord) []byte {
	size := 4 + 1 + 8 + 8*len(rec.Incoming) + 8*len(rec.Outgoing)
	if rec.Parent != nil {
		size += 4
	}
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, rec.ID)
	if rec.Parent != nil {
		buf = append(buf, 1)
		buf = binary.LittleEndian.AppendUint32(buf, *rec.Parent)
	} else {
		buf = append(buf, 0)
	}
	buf = appendEdges(buf, rec.Incoming)
	buf = appendEdges(buf, rec.Outgoing)
	return buf
}

func appendEdges(buf []byte, edges []graph.Edge) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(edges)))
	for _, e := range edges {
		buf = binary.LittleEndian.AppendUint32(buf, e.Pred)
		buf = binary.LittleEndian.AppendUint32(buf, e.Other)
	}
	return buf
}

func decodeNode(payload []byte) (graph.NodeRecord, error) {
	var rec graph.NodeRecord
	d := &decoder{buf: payload}

	rec.ID = d.uint32()
	if d.byte() == 1 {
		parent := d.uint32()
		rec.Parent = &parent
	}
	rec.Incoming = d.edges()
	rec.Outgoing = d.edges()
	if d.failed || len(d.buf) != d.off {
		return rec, fmt.Errorf("node frame for %d: %w", rec.ID, ErrIncompleteFrame)
	}
	return rec, nil
}

// decoder is a cursor over a payload that remembers overruns instead of
// panicking, so malformed frames surface as ErrIncompleteFrame.
type decoder struct {
	buf    []byte
	off    int
	failed bool
}

func (d *decoder) byte() byte {
	if d.off+1 > len(d.buf) {
		d.failed = true
		return 0
	}
	b := d.buf[d.off]
	d.off++
	return b
}

func (d *decoder) uint32() uint32 {
	if d.off+4 > len(d.buf) {
		d.failed = true
		return 0
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v
}

func (d *decoder) edges() []graph.Edge {
	count := d.uint32()
	if d.failed || d.off+8*int(count) > len(d.buf) {
		d.failed = true
		return nil
	}
	edges := make([]graph.Edge, count)
	for i := range edges {
		edges[i] = graph.Edge{Pred: d.uint32(), Other: d.uint32()}
	}
	return edges
}
