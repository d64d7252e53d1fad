package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dataprep/internal/dataset"
	"dataprep/internal/export"
	"dataprep/internal/metrics/datadog"
	"dataprep/internal/pipeline"
	"dataprep/internal/quality"
	"dataprep/internal/snapshot"
	"dataprep/internal/step"

	// register all snapshot backends with the snapshot factory.
	// flags specify which to use but we need to build in support for all of them.
	_ "dataprep/internal/snapshot/all"
)

// main is the entry point for the prep binary. It loads a dataset (descriptor
// JSON, delimited file, or the built-in demo table), replays a steps file
// through the pipeline engine, prints the quality report, and writes the
// delimited export.
func main() {
	var (
		datasetPath    string
		csvPath        string
		stepsPath      string
		outPath        string
		sep            string
		sessionName    string
		snapshotKind   string
		snapshotDSN    string
		metricsBackend string
	)

	flag.StringVar(&datasetPath, "dataset", "", "dataset descriptor JSON path (falls back to demo table)")
	flag.StringVar(&csvPath, "csv", "", "delimited text input path (alternative to -dataset)")
	flag.StringVar(&stepsPath, "steps", "", "steps JSON path (array of steps; optional)")
	flag.StringVar(&outPath, "out", "", "export output path (default: stdout)")
	flag.StringVar(&sep, "sep", export.DefaultSeparator, "field separator for input/output delimited text")
	flag.StringVar(&sessionName, "session", "default", "session name for snapshot persistence")
	flag.StringVar(&snapshotKind, "snapshot-kind", "", "snapshot backend (sqlite, postgres, mssql; empty = no persistence)")
	flag.StringVar(&snapshotDSN, "snapshot-dsn", "", "snapshot DSN (overrides env SNAPSHOT_DSN)")
	flag.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend to use (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	ctx := context.Background()

	opts := pipeline.Options{SessionName: sessionName}
	if *verbose {
		opts.Logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	switch metricsBackend {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(ctx, datadog.Options{
			SessionName: sessionName,
			Tags:        extraTags,
			FlushEvery:  60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			if *verbose {
				log.Printf("metrics: backend=%v session=%v tags=%v", metricsBackend, sessionName, extraTags)
			}
			opts.Metrics = b

			// Close() stops the periodic flush loop and then performs a
			// final Flush(). This is the clean shutdown path.
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", metricsBackend)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", metricsBackend)
	}

	if snapshotKind != "" {
		dsn := snapshotDSN
		if dsn == "" {
			dsn = os.Getenv("SNAPSHOT_DSN")
		}
		store, err := snapshot.New(ctx, snapshot.Config{Kind: snapshotKind, DSN: os.ExpandEnv(dsn)})
		if err != nil {
			fatalf("snapshot: %v", err)
		}
		defer store.Close()
		opts.Store = store
	}

	ds := loadInput(datasetPath, csvPath, sep)
	if *verbose {
		log.Printf("dataset: columns=%d rows=%d total_rows=%d fallback=%v",
			len(ds.Table.Columns), ds.Table.RowCount(), ds.TotalRows, ds.Fallback)
	}

	sess := pipeline.NewSession(ctx, ds.Table, opts)

	if stepsPath != "" {
		steps, err := decodeSteps(stepsPath)
		if err != nil {
			fatalf("steps: %v", err)
		}
		for _, stp := range steps {
			if _, err := sess.AddStep(ctx, stp.Kind, stp.Column, stp.Params, stp.Name); err != nil {
				fatalf("steps: %v", err)
			}
		}
	}

	out := sess.Output()
	rep := quality.Analyze(out, sess.ColumnTypes())

	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		fatalf("quality report: %v", err)
	}

	w := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fatalf("open output: %v", err)
		}
		defer f.Close()
		w = f
	}
	if err := export.Write(w, out, sep); err != nil {
		fatalf("export: %v", err)
	}
}

// loadInput resolves the source table: delimited file, descriptor JSON, or
// the demo fallback. A broken delimited file is fatal (the format is explicit
// user input); a broken descriptor falls back to demo per the engine's
// degrade-silently contract.
func loadInput(datasetPath, csvPath, sep string) dataset.Dataset {
	if csvPath != "" {
		raw, err := os.ReadFile(csvPath)
		if err != nil {
			fatalf("read input: %v", err)
		}
		t, err := export.Parse(string(raw), sep)
		if err != nil {
			fatalf("parse input: %v", err)
		}
		return dataset.FromTable(t)
	}
	if datasetPath != "" {
		return dataset.LoadFile(datasetPath)
	}
	return dataset.Demo()
}

func decodeSteps(path string) ([]step.Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var steps []step.Step
	if err := json.NewDecoder(f).Decode(&steps); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return steps, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
