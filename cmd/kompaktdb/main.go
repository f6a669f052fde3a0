package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/sanonone/kompaktdb/pkg/engine"
	"github.com/sanonone/kompaktdb/pkg/parse"
)

func main() {
	configPath := flag.String("config", "", "Path to a yaml config file (flags override it)")
	dataset := flag.String("dataset", "", "Path to the base fact file")
	update := flag.String("update", "", "Path to the update file (+/- prefixed triples)")
	dataDir := flag.String("data-dir", "", "Directory for snapshot and journal (default: data)")
	flag.Parse()

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfig(*configPath)
		if err != nil {
			slog.Error("cannot load config", "error", err)
			os.Exit(1)
		}
	}
	if *dataset != "" {
		cfg.DatasetPath = *dataset
	}
	if *update != "" {
		cfg.UpdatePath = *update
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if cfg.DatasetPath == "" {
		slog.Error("no dataset given: use -dataset or a config file")
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("update run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg Config) error {
	dict := parse.NewDict()

	f, err := os.Open(cfg.DatasetPath)
	if err != nil {
		return err
	}
	triples, err := parse.ParseTriples(f, dict)
	f.Close()
	if err != nil {
		return err
	}
	slog.Info("dataset loaded", "path", cfg.DatasetPath, "triples", len(triples), "terms", dict.Len())

	opts := engine.DefaultOptions(cfg.DataDir)
	opts.SnapshotFilename = cfg.SnapshotFilename
	db, err := engine.Open(opts, triples)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.UpdatePath != "" {
		uf, err := os.Open(cfg.UpdatePath)
		if err != nil {
			return err
		}
		additions, deletions, err := parse.ParseUpdate(uf, dict)
		uf.Close()
		if err != nil {
			return err
		}

		if len(additions) > 0 {
			if err := db.ApplyAdditions(additions); err != nil {
				return err
			}
			slog.Info("additions applied", "triples", len(additions))
		}
		if len(deletions) > 0 {
			report, err := db.ApplyDeletions(deletions)
			if err != nil {
				return err
			}
			slog.Info("deletions applied",
				"pass", report.ID,
				"triples", report.Triples,
				"splits", report.Splits,
				"collapses", report.Collapses)
		}

		if err := db.SaveSnapshot(); err != nil {
			return err
		}
	}

	printStats(db.Stats())
	return nil
}

func printStats(s engine.Stats) {
	fmt.Printf("nodes:            %d\n", s.Nodes)
	fmt.Printf("supernodes:       %d\n", s.Supernodes)
	fmt.Printf("triples:          %d\n", s.Triples)
	fmt.Printf("clustered nodes:  %d\n", s.ClusteredNodes)
	if s.Supernodes > 0 {
		fmt.Printf("mean cluster:     %.2f (stddev %.2f)\n", s.MeanClusterSize, s.StdDevClusterSize)
	}
}
