// Package engine provides the high-level, embedded interface for KompaktDB.
//
// It orchestrates the in-memory compressed graph (model, clique collections,
// index map) and the on-disk persistence layer (snapshot + deletion
// journal), giving callers a single instance through which update batches
// are applied and persisted.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	db, err := engine.Open(opts, triples)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/kompaktdb/pkg/clique"
	"github.com/sanonone/kompaktdb/pkg/graph"
	"github.com/sanonone/kompaktdb/pkg/persistence"
)

// Options configures the behavior of the Engine, including persistence paths
// and the automatic snapshot policy.
type Options struct {
	// DataDir is the directory where the snapshot and journal files live.
	// It is created automatically if it does not exist.
	DataDir string

	// SnapshotFilename is the name of the snapshot file (default:
	// "kompaktdb.snap"). The journal is named after it with a .journal
	// extension.
	SnapshotFilename string

	// AutoSaveInterval defines how much time must pass since the last save
	// before a new snapshot is triggered (if AutoSaveThreshold is also met).
	// Set to 0 to disable auto-saving based on time.
	AutoSaveInterval time.Duration

	// AutoSaveThreshold defines how many applied triples must accumulate
	// before a new snapshot is triggered (if AutoSaveInterval is also met).
	// Set to 0 to disable auto-saving based on write count.
	AutoSaveThreshold int64
}

// DefaultOptions returns a standard configuration suitable for most use cases.
//
// Defaults:
//   - DataDir: provided path
//   - SnapshotFilename: "kompaktdb.snap"
//   - AutoSave: every 60s if at least 1000 triples changed
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:           dataDir,
		SnapshotFilename:  "kompaktdb.snap",
		AutoSaveInterval:  60 * time.Second,
		AutoSaveThreshold: 1000,
	}
}

// Engine is the main entry point for KompaktDB. It owns the compressed
// graph and its collaborator structures and serializes every mutation:
// maintenance demands a single writer with no concurrent readers, so all
// operations funnel through one mutex.
//
// Use Open() to initialize an Engine and Close() to shut it down gracefully.
type Engine struct {
	// Model is the in-memory compressed graph. While exported for
	// inspection, mutations must go through Engine methods so cliques,
	// journal and metrics stay in sync.
	Model *graph.Model

	// Journal records the deletion batches applied since the last snapshot
	// and is replayed on top of the snapshot at Open.
	Journal *persistence.Journal

	opts        Options
	snapPath    string
	journalPath string

	mu      sync.Mutex
	source  []clique.Clique
	target  []clique.Clique
	index   clique.IndexMap
	triples []graph.Triple

	// dirtyCounter tracks applied triples since the last save.
	dirtyCounter int64
	lastSaveTime time.Time

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open initializes an Engine over the given base triple set.
//
// It performs the following actions:
// 1. Creates DataDir if missing.
// 2. Loads the snapshot if present, otherwise ingests the triples as plain nodes.
// 3. Builds the clique collections and index map from the triples.
// 4. Replays the deletion journal on top of the loaded state.
// 5. Starts the background auto-save goroutine.
//
// This method blocks until the structures are fully loaded and consistent.
func Open(opts Options, triples []graph.Triple) (*Engine, error) {
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if opts.SnapshotFilename == "" {
		opts.SnapshotFilename = "kompaktdb.snap"
	}

	snapPath := filepath.Join(opts.DataDir, opts.SnapshotFilename)
	journalPath := strings.TrimSuffix(snapPath, filepath.Ext(snapPath)) + ".journal"

	e := &Engine{
		opts:         opts,
		snapPath:     snapPath,
		journalPath:  journalPath,
		triples:      triples,
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}

	// 1. Load snapshot if it exists, otherwise bootstrap from the triples.
	if err := e.loadModel(); err != nil {
		return nil, err
	}

	// 2. Cliques and index map derive from the triple set; folding rewrites
	// clustered members to their supernode ids so the collections track the
	// compressed structure loaded from the snapshot.
	e.source, e.target = clique.Build(triples)
	e.index = clique.BuildIndexMap(e.source, e.target)
	if err := clique.Fold(e.source, e.Model); err != nil {
		return nil, fmt.Errorf("fold source cliques: %w", err)
	}
	if err := clique.Fold(e.target, e.Model); err != nil {
		return nil, fmt.Errorf("fold target cliques: %w", err)
	}
	e.index.Extend(e.Model)

	// 3. Journal: recover the deletions applied after the snapshot was taken.
	journal, err := persistence.OpenJournal(journalPath)
	if err != nil {
		return nil, err
	}
	e.Journal = journal
	if err := e.replayJournal(); err != nil {
		e.Journal.Close()
		return nil, fmt.Errorf("failed to replay journal: %w", err)
	}

	// 4. Background auto-save.
	e.wg.Add(1)
	go e.backgroundTasks()

	return e, nil
}

// Close performs a clean shutdown of the Engine.
//
// It stops the background task and closes the journal. No final snapshot is
// forced: applied deletions are already durable in the journal and are
// replayed on the next Open.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()

		if e.Journal != nil {
			err = e.Journal.Close()
		}
	})
	return err
}

// backgroundTasks runs the periodic auto-save check.
func (e *Engine) backgroundTasks() {
	defer e.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkAutoSave()
		}
	}
}

// checkAutoSave triggers a snapshot when both the write-count and the
// time-based policy agree.
func (e *Engine) checkAutoSave() {
	if e.opts.AutoSaveThreshold <= 0 || e.opts.AutoSaveInterval <= 0 {
		return
	}
	dirty := atomic.LoadInt64(&e.dirtyCounter)
	if dirty >= e.opts.AutoSaveThreshold && time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval {
		if err := e.SaveSnapshot(); err != nil {
			slog.Error("Background snapshot failed", "error", err)
		}
	}
}
