package engine

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/sanonone/kompaktdb/pkg/graph"
	"github.com/sanonone/kompaktdb/pkg/metrics"
	"github.com/sanonone/kompaktdb/pkg/persistence"
)

// loadModel restores the compressed graph from the snapshot file, or, when
// none exists yet, ingests the base triples as plain nodes. Building the
// initial supernode structure is the bootstrap's job; a fresh ingest starts
// uncompressed.
func (e *Engine) loadModel() error {
	if _, err := os.Stat(e.snapPath); err == nil {
		f, err := os.Open(e.snapPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()
		model, err := persistence.ReadSnapshot(f)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		e.Model = model
		return nil
	}

	e.Model = graph.NewModel()
	for _, t := range e.triples {
		if err := ingest(e.Model, t); err != nil {
			return fmt.Errorf("ingest base triples: %w", err)
		}
	}
	return nil
}

// ingest records one triple's edges, creating endpoint nodes on first sight.
func ingest(m *graph.Model, t graph.Triple) error {
	if !m.Contains(t.Sub) {
		if err := m.NewNode(t, true); err != nil {
			return err
		}
	} else if err := m.AddOutgoing(t); err != nil {
		return err
	}
	if !m.Contains(t.Obj) {
		if err := m.NewNode(t, false); err != nil {
			return err
		}
	} else if err := m.AddIncoming(t); err != nil {
		return err
	}
	return nil
}

// replayJournal re-applies the deletion batches recorded since the snapshot
// the model was loaded from. A journal the pass cannot apply cleanly means
// the on-disk state is inconsistent, which is fatal for Open.
func (e *Engine) replayJournal() error {
	batches := 0
	err := e.Journal.Replay(func(batch []graph.Triple) error {
		batches++
		return e.applyDeletionsLocked(batch)
	})
	if err != nil {
		return err
	}
	if batches > 0 {
		slog.Info("journal replayed", "batches", batches)
	}
	e.updateGauges()
	return nil
}

// SaveSnapshot writes the model to disk and truncates the journal. The
// write goes to a temporary file first so a crash mid-save leaves the
// previous snapshot intact.
func (e *Engine) SaveSnapshot() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveSnapshotLocked()
}

func (e *Engine) saveSnapshotLocked() error {
	tempSnap := e.snapPath + ".tmp"
	f, err := os.Create(tempSnap)
	if err != nil {
		return err
	}

	if err := persistence.WriteSnapshot(f, e.Model); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempSnap, e.snapPath); err != nil {
		return err
	}

	if err := e.Journal.Truncate(); err != nil {
		return err
	}

	atomic.StoreInt64(&e.dirtyCounter, 0)
	e.lastSaveTime = time.Now()
	return nil
}

func (e *Engine) updateGauges() {
	metrics.Nodes.Set(float64(e.Model.NodeCount()))
	metrics.Supernodes.Set(float64(e.Model.SupernodeCount()))
}
