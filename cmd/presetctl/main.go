package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"go.uber.org/zap"

	"github.com/raaihank/frame-sentinel/internal/cache"
	"github.com/raaihank/frame-sentinel/internal/config"
	"github.com/raaihank/frame-sentinel/internal/logger"
	"github.com/raaihank/frame-sentinel/internal/presets"
	"github.com/raaihank/frame-sentinel/internal/store"
)

func main() {
	var (
		configPath    = flag.String("config", "", "Configuration file path")
		inputFile     = flag.String("input", "", "Preset file to import (CSV, Parquet, or JSON)")
		kindName      = flag.String("kind", "keywords", "Preset kind in the input: keywords or rules")
		batchSize     = flag.Int("batch-size", 100, "Presets written per transaction")
		seed          = flag.Bool("seed", false, "Create the schema and insert the built-in presets")
		showStats     = flag.Bool("stats", false, "Show detection counts and exit")
		sessionID     = flag.Int64("session", 0, "Session for -stats and -export (0 means all sessions)")
		exportPath    = flag.String("export", "", "Write detections to this Parquet file")
		exportLimit   = flag.Int("limit", 10000, "Maximum detections to export")
		clearCounters = flag.Bool("clear-counters", false, "Delete the live Redis counters")
		dryRun        = flag.Bool("dry-run", false, "Dry run - don't write to database")
		validateOnly  = flag.Bool("validate-only", false, "Only validate data, don't process")
	)
	flag.Parse()

	if *inputFile == "" && !*seed && !*showStats && *exportPath == "" && !*clearCounters {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -seed\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input keywords.csv -kind keywords\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -input presets.json -kind rules -validate-only\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -stats -session 12\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -export detections.parquet -session 12\n", os.Args[0])
		os.Exit(1)
	}

	kind, ok := presets.ParseKind(*kindName)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown kind %q (must be keywords or rules)\n", *kindName)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Dry runs and validation read the input without a database
	needsDB := *seed || *showStats || *exportPath != "" || (*inputFile != "" && !*dryRun && !*validateOnly)

	var st *store.Store
	if needsDB {
		st, err = store.NewStore(&cfg.Database, log.WithComponent("store").Logger)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer st.Close()
	}

	if *seed {
		if err := st.Migrate(ctx); err != nil {
			log.Fatal("Failed to migrate schema", zap.Error(err))
		}
		if err := st.SeedDefaults(ctx); err != nil {
			log.Fatal("Failed to seed presets", zap.Error(err))
		}
		log.Info("Schema ready and built-in presets seeded")
	}

	if *inputFile != "" {
		var writer presets.Writer
		if st != nil {
			writer = st
		}
		importer := presets.NewImporter(writer, presets.Config{
			BatchSize:    *batchSize,
			DryRun:       *dryRun,
			ValidateOnly: *validateOnly,
		}, log.WithComponent("presets").Logger)

		result, err := importer.Import(ctx, *inputFile, kind)
		if err != nil {
			log.Fatal("Import failed", zap.Error(err))
		}
		printResult(result)
	}

	if *showStats {
		if err := printStats(ctx, st, *sessionID); err != nil {
			log.Fatal("Failed to show stats", zap.Error(err))
		}
	}

	if *exportPath != "" {
		n, err := presets.ExportDetections(ctx, st, *sessionID, *exportPath, *exportLimit, log.WithComponent("presets").Logger)
		if err != nil {
			log.Fatal("Export failed", zap.Error(err))
		}
		fmt.Printf("Exported %d detections to %s\n", n, *exportPath)
	}

	if *clearCounters {
		counter, err := cache.NewCounter(cfg.Redis, log.WithComponent("cache").Logger)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer counter.Close()
		if err := counter.Clear(ctx); err != nil {
			log.Fatal("Failed to clear counters", zap.Error(err))
		}
		log.Info("Live counters cleared")
	}
}

func printResult(r *presets.Result) {
	fmt.Printf("\n=== Import Result ===\n")
	fmt.Printf("Kind:               %s\n", r.Kind)
	fmt.Printf("Format:             %s\n", r.Format)
	fmt.Printf("Records:            %d\n", r.TotalRecords)
	fmt.Printf("Accepted:           %d\n", r.Accepted)
	fmt.Printf("Rejected:           %d\n", r.Rejected)
	fmt.Printf("Presets Written:    %d\n", r.Written)
	fmt.Printf("Duration:           %v\n", r.Duration)
	for _, name := range r.Names {
		fmt.Printf("  - %s\n", name)
	}
	if len(r.UnknownCategories) > 0 {
		fmt.Printf("Unknown Categories: %v\n", r.UnknownCategories)
	}
	for _, e := range r.Errors {
		fmt.Printf("Error:              %s\n", e)
	}
}

func printStats(ctx context.Context, st *store.Store, sessionID int64) error {
	counts, err := st.DetectionStats(ctx, sessionID)
	if err != nil {
		return err
	}

	scope := "all sessions"
	if sessionID != 0 {
		scope = fmt.Sprintf("session %d", sessionID)
	}
	fmt.Printf("\n=== Detections (%s) ===\n", scope)

	categories := make([]string, 0, len(counts))
	var total int64
	for c, n := range counts {
		categories = append(categories, c)
		total += n
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Printf("%-20s%d\n", c+":", counts[c])
	}
	fmt.Printf("%-20s%d\n", "Total:", total)
	return nil
}
