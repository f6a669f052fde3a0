// This file implements the operational methods of the Engine, wrapping the
// graph mutations with persistence logic. Every deletion batch is written to
// the journal before being applied to the in-memory state, so a crash never
// loses an applied update.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/sanonone/kompaktdb/pkg/graph"
	"github.com/sanonone/kompaktdb/pkg/maintenance"
	"github.com/sanonone/kompaktdb/pkg/metrics"
)

// PassReport summarizes one applied deletion batch.
type PassReport struct {
	// ID tags the pass in logs.
	ID string

	Triples     int
	Splits      int
	Collapses   int
	PrunedPreds int
	Duration    time.Duration
}

// ApplyDeletions journals and applies a batch of removed triples. The batch
// is durable before the in-memory structures change. A returned error from
// the maintenance pass is fatal for the instance: the in-memory state may be
// partially updated and must be rebuilt from disk.
func (e *Engine) ApplyDeletions(batch []graph.Triple) (PassReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	report := PassReport{ID: uuid.New().String(), Triples: len(batch)}
	if len(batch) == 0 {
		return report, nil
	}

	// 1. Journal
	if err := e.Journal.Append(batch); err != nil {
		return report, fmt.Errorf("persistence error (journal append failed): %w", err)
	}
	if err := e.Journal.Sync(); err != nil {
		return report, fmt.Errorf("CRITICAL: persistence sync failed: %w", err)
	}

	// 2. Memory
	start := time.Now()
	pass := maintenance.NewPass(e.Model, e.source, e.target, e.index)
	if err := pass.DeleteTriples(batch); err != nil {
		return report, err
	}
	e.removeTriples(batch)

	report.Splits = pass.Splits
	report.Collapses = pass.Collapses
	report.PrunedPreds = pass.PrunedPreds
	report.Duration = time.Since(start)

	metrics.TriplesDeleted.Add(float64(len(batch)))
	metrics.ClusterSplits.Add(float64(pass.Splits))
	metrics.ClusterCollapses.Add(float64(pass.Collapses))
	metrics.PrunedPredicates.Add(float64(pass.PrunedPreds))
	metrics.PassDuration.Observe(report.Duration.Seconds())
	e.updateGauges()

	atomic.AddInt64(&e.dirtyCounter, int64(len(batch)))
	slog.Info("deletion pass applied",
		"pass", report.ID,
		"triples", report.Triples,
		"splits", report.Splits,
		"collapses", report.Collapses,
		"pruned_preds", report.PrunedPreds,
		"duration", report.Duration)
	return report, nil
}

// applyDeletionsLocked is the journal-replay path: it applies a batch that
// is already durable, without logging a fresh pass.
func (e *Engine) applyDeletionsLocked(batch []graph.Triple) error {
	pass := maintenance.NewPass(e.Model, e.source, e.target, e.index)
	if err := pass.DeleteTriples(batch); err != nil {
		return err
	}
	e.removeTriples(batch)
	return nil
}

// removeTriples drops the batch from the engine's triple set.
func (e *Engine) removeTriples(batch []graph.Triple) {
	gone := make(map[graph.Triple]struct{}, len(batch))
	for _, t := range batch {
		gone[t] = struct{}{}
	}
	kept := e.triples[:0]
	for _, t := range e.triples {
		if _, ok := gone[t]; !ok {
			kept = append(kept, t)
		}
	}
	e.triples = kept
}

// ApplyAdditions records added triples in the model: new endpoints become
// plain nodes, known endpoints get the new edge appended. The symmetric
// clique refinement for insertions is a separate maintenance algorithm and
// is not performed here; added nodes join the compressed structure at the
// next full bootstrap.
func (e *Engine) ApplyAdditions(batch []graph.Triple) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range batch {
		if err := ingest(e.Model, t); err != nil {
			return fmt.Errorf("apply addition (%d,%d,%d): %w", t.Sub, t.Pred, t.Obj, err)
		}
	}
	e.triples = append(e.triples, batch...)

	atomic.AddInt64(&e.dirtyCounter, int64(len(batch)))
	e.updateGauges()
	return nil
}

// Merge combines the given nodes and/or supernodes into a fresh supernode
// and rewrites the clique collections and index map to track the new
// cluster. The new id must be unused; MintID supplies one.
func (e *Engine) Merge(old []uint32, newID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(old) < 2 {
		return fmt.Errorf("merge into %d: need at least two ids, got %d", newID, len(old))
	}
	first, ok := e.index[old[0]]
	if !ok {
		return fmt.Errorf("%w: %d", maintenance.ErrIndexDesync, old[0])
	}
	if err := e.Model.NewSupernode(old, newID); err != nil {
		return err
	}
	for _, id := range old {
		entry, ok := e.index[id]
		if !ok {
			continue
		}
		e.source[entry[0]].ReplaceMember(id, newID)
		e.target[entry[1]].ReplaceMember(id, newID)
	}
	e.index[newID] = first

	atomic.AddInt64(&e.dirtyCounter, 1)
	e.updateGauges()
	return nil
}

// MintID returns an id above everything currently in use, for a new
// supernode.
func (e *Engine) MintID() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Model.MaxID() + 1
}

// Stats describes the current compression state of the model.
type Stats struct {
	Nodes          int
	Supernodes     int
	Triples        int
	ClusteredNodes int

	// MeanClusterSize and StdDevClusterSize summarize supernode member
	// counts; both are zero when no supernodes exist.
	MeanClusterSize   float64
	StdDevClusterSize float64
}

// Stats returns a snapshot of the model's size and cluster distribution.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Stats{
		Nodes:      e.Model.NodeCount(),
		Supernodes: e.Model.SupernodeCount(),
		Triples:    len(e.triples),
	}
	var sizes []float64
	e.Model.IterateSupernodes(func(rec graph.SupernodeRecord) bool {
		sizes = append(sizes, float64(len(rec.Members)))
		s.ClusteredNodes += len(rec.Members)
		return true
	})
	if len(sizes) > 0 {
		s.MeanClusterSize = stat.Mean(sizes, nil)
		if len(sizes) > 1 {
			s.StdDevClusterSize = stat.StdDev(sizes, nil)
		}
	}
	return s
}
