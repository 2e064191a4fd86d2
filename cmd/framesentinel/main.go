package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/frame-sentinel/internal/blur"
	"github.com/raaihank/frame-sentinel/internal/cache"
	"github.com/raaihank/frame-sentinel/internal/config"
	"github.com/raaihank/frame-sentinel/internal/detector"
	"github.com/raaihank/frame-sentinel/internal/events"
	"github.com/raaihank/frame-sentinel/internal/logger"
	"github.com/raaihank/frame-sentinel/internal/pipeline"
	"github.com/raaihank/frame-sentinel/internal/policy"
	"github.com/raaihank/frame-sentinel/internal/privacy"
	"github.com/raaihank/frame-sentinel/internal/server"
	"github.com/raaihank/frame-sentinel/internal/source"
	"github.com/raaihank/frame-sentinel/internal/store"
	"github.com/raaihank/frame-sentinel/internal/stream"
	"github.com/raaihank/frame-sentinel/internal/text"
	"github.com/raaihank/frame-sentinel/internal/websocket"
)

var (
	version = server.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		printConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		maxFrames   = flag.Uint64("max-frames", 0, "Stop after this many frames (0 runs until interrupted)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("Frame-Sentinel %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *printConfig {
		if err := config.Dump(cfg, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print configuration: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *healthCheck {
		performHealthCheck(cfg.Server.Port)
		return
	}

	log, err := logger.New(loggerConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Frame-Sentinel",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("source", cfg.Source.Type),
		zap.Int("port", cfg.Server.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *maxFrames); err != nil {
		log.Error("Frame-Sentinel stopped with error", zap.Error(err))
		log.Sync()
		os.Exit(1)
	}
	log.Info("Shutdown complete")
}

func loggerConfig(cfg *config.Config) logger.Config {
	lc := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		lc.File = &logger.FileConfig{
			Enabled:    true,
			Path:       cfg.Logging.File.Path,
			MaxSize:    cfg.Logging.File.MaxSize,
			MaxAge:     cfg.Logging.File.MaxAge,
			MaxBackups: cfg.Logging.File.MaxBackups,
			Compress:   cfg.Logging.File.Compress,
		}
	}
	return lc
}

// services holds the optional infrastructure; nil fields are disabled
type services struct {
	store   *store.Store
	counter *cache.Counter
	hub     *websocket.Hub
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger, maxFrames uint64) error {
	src, err := source.New(cfg.Source, log.WithComponent("source").Logger)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}
	defer src.Close()

	svc := connectServices(ctx, cfg, log)
	defer svc.close(log)

	snapshots := policy.NewStore(initialSnapshot(ctx, cfg, svc.store, log))

	det := detector.NewFromConfig(cfg.Detector, log.WithComponent("detector").Logger)
	defer det.Close()

	var engine text.OCREngine
	if cfg.OCR.Enabled {
		engine, err = text.NewOCREngine(cfg.OCR, log.WithComponent("ocr").Logger)
		if err != nil {
			if errors.Is(err, text.ErrUnavailable) {
				log.Warn("OCR unavailable, sensitive text will not be detected", zap.Error(err))
			} else {
				log.Error("OCR failed to start, sensitive text will not be detected", zap.Error(err))
			}
			engine = nil
		}
	}
	extractor := text.NewExtractor(engine, cfg.OCR.MinConfidence, log.WithComponent("ocr").Logger)
	defer extractor.Close()

	var ner privacy.EntityRecognizer
	if cfg.NER.Enabled {
		recognizer, err := privacy.NewProseRecognizer()
		if err != nil {
			log.Warn("Entity recognizer unavailable, names and places will not be detected", zap.Error(err))
		} else {
			ner = recognizer
		}
	}
	classifier, err := privacy.New(cfg.Pipeline.SensitivePatterns, ner, log.WithComponent("privacy").Logger)
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}

	var sessionID int64
	if svc.store != nil {
		sessionID = startSession(ctx, svc.store, log)
	}

	dispatcher := events.NewDispatcher(cfg.Pipeline.EventBuffer, log.WithComponent("events").Logger, svc.consumers()...)
	defer dispatcher.Close()

	proc := pipeline.New(det, extractor, classifier,
		blur.NewLibrary(cfg.Blur, log.WithComponent("blur").Logger),
		log.WithComponent("pipeline").WithSession(sessionID).Logger,
		pipeline.WithSink(events.WithSession(dispatcher, sessionID)),
	)

	preview := stream.NewPreview(cfg.Server.PreviewQuality)
	opts := []stream.Option{
		stream.WithPreview(preview),
		stream.WithMaxFrames(maxFrames),
	}
	if svc.hub != nil {
		opts = append(opts, stream.WithBroadcaster(svc.hub))
	}
	if svc.store != nil {
		opts = append(opts, stream.WithSession(sessionID, svc.store))
	}
	runner := stream.NewRunner(src, proc, snapshots, cfg.Source.FPS, log.WithComponent("stream").WithSession(sessionID).Logger, opts...)

	capabilities := stream.Capabilities{
		ObjectDetector: det.HasObjectDetector(),
		OCR:            extractor.Available(),
		NER:            ner != nil,
		Database:       svc.store != nil,
		Redis:          svc.counter != nil,
	}
	log.Info("Pipeline ready",
		zap.Bool("object_detector", capabilities.ObjectDetector),
		zap.Bool("ocr", capabilities.OCR),
		zap.Bool("ner", capabilities.NER),
		zap.Int64("session_id", sessionID),
		zap.Strings("sensitive_patterns", classifier.EnabledRules()),
	)

	watchConfig(snapshots, svc.hub, log)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if svc.hub != nil {
		g.Go(func() error {
			svc.hub.Run(gctx)
			return nil
		})
		status := stream.NewStatusReporter(runner, svc.hub, capabilities, cfg.WebSocket.StatusInterval, log.WithComponent("status").Logger)
		g.Go(func() error { return status.Run(gctx) })
	}

	g.Go(func() error {
		if err := runner.Run(gctx); err != nil {
			return fmt.Errorf("frame loop failed: %w", err)
		}
		// A bounded run ends the process; otherwise the API stays up
		if maxFrames > 0 || !cfg.Server.Enabled {
			cancel()
		}
		return nil
	})

	if cfg.Server.Enabled {
		srv := server.New(cfg, log, snapshots, svc.hub, svc.deps(runner, preview, capabilities))
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				return fmt.Errorf("http server failed: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// connectServices opens the optional infrastructure. Anything unreachable
// is logged and disabled.
func connectServices(ctx context.Context, cfg *config.Config, log *logger.Logger) *services {
	svc := &services{}

	if cfg.Database.Enabled {
		st, err := store.NewStore(&cfg.Database, log.WithComponent("store").Logger)
		if err != nil {
			log.Warn("Database unavailable, persistence disabled", zap.Error(err))
		} else if err := prepareStore(ctx, st); err != nil {
			log.Warn("Database setup failed, persistence disabled", zap.Error(err))
			st.Close()
		} else {
			svc.store = st
		}
	}

	if cfg.Redis.Enabled {
		counter, err := cache.NewCounter(cfg.Redis, log.WithComponent("cache").Logger)
		if err != nil {
			log.Warn("Redis unavailable, live counters disabled", zap.Error(err))
		} else {
			svc.counter = counter
		}
	}

	if cfg.WebSocket.Enabled {
		hubConfig := cfg.WebSocket.Events
		svc.hub = websocket.NewHub(&hubConfig, log.WithComponent("websocket").Logger)
	}
	return svc
}

func prepareStore(ctx context.Context, st *store.Store) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	return st.SeedDefaults(ctx)
}

func (s *services) consumers() []events.Consumer {
	var out []events.Consumer
	if s.store != nil {
		out = append(out, events.ConsumerFunc("postgres", s.store.ConsumeDetection))
	}
	if s.counter != nil {
		out = append(out, events.ConsumerFunc("redis", s.counter.ConsumeDetection))
	}
	if s.hub != nil {
		out = append(out, events.ConsumerFunc("websocket", s.hub.ConsumeDetection))
	}
	return out
}

// deps builds the server collaborators without storing typed nils in
// interface fields
func (s *services) deps(runner *stream.Runner, preview *stream.Preview, capabilities stream.Capabilities) server.Deps {
	deps := server.Deps{
		Runner:       runner,
		Preview:      preview,
		Capabilities: capabilities,
	}
	if s.store != nil {
		deps.Presets = s.store
		deps.Sessions = s.store
	}
	if s.counter != nil {
		deps.Counters = s.counter
	}
	return deps
}

func (s *services) close(log *logger.Logger) {
	if s.counter != nil {
		if err := s.counter.Close(); err != nil {
			log.Warn("Failed to close redis", zap.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn("Failed to close database", zap.Error(err))
		}
	}
}

// initialSnapshot starts from the configured policy and overlays any named
// stored presets
func initialSnapshot(ctx context.Context, cfg *config.Config, st *store.Store, log *logger.Logger) policy.Snapshot {
	snap := cfg.Pipeline.Snapshot()
	if st == nil {
		if cfg.Pipeline.Preset != "" || cfg.Pipeline.KeywordList != "" {
			log.Warn("Stored presets configured but the database is disabled",
				zap.String("preset", cfg.Pipeline.Preset),
				zap.String("keyword_list", cfg.Pipeline.KeywordList))
		}
		return snap
	}

	if name := cfg.Pipeline.Preset; name != "" {
		preset, err := st.BlurRulePreset(ctx, name)
		if err != nil {
			log.Warn("Blur rule preset not applied", zap.String("preset", name), zap.Error(err))
		} else {
			rules, rejected := policy.ParseRules(preset.Rules)
			if len(rejected) > 0 {
				log.Warn("Preset has unknown categories or methods",
					zap.String("preset", name), zap.Strings("rejected", rejected))
			}
			snap.Rules = rules
		}
	}
	if name := cfg.Pipeline.KeywordList; name != "" {
		list, err := st.KeywordList(ctx, name)
		if err != nil {
			log.Warn("Keyword list not applied", zap.String("keyword_list", name), zap.Error(err))
		} else {
			snap.Keywords = policy.NewKeywordSet(list.Keywords)
		}
	}
	return snap
}

func startSession(ctx context.Context, st *store.Store, log *logger.Logger) int64 {
	userID, err := st.EnsureAnonymousUser(ctx)
	if err != nil {
		log.Warn("Failed to resolve user, detections will not be persisted", zap.Error(err))
		return 0
	}
	id, err := st.StartSession(ctx, userID)
	if err != nil {
		log.Warn("Failed to start session, detections will not be persisted", zap.Error(err))
		return 0
	}
	log.Info("Detection session started", zap.Int64("session_id", id))
	return id
}

// watchConfig hot-reloads the pipeline section of the config file
func watchConfig(snapshots *policy.Store, hub *websocket.Hub, log *logger.Logger) {
	err := config.Watch(func(cfg *config.Config) {
		snap := cfg.Pipeline.Snapshot()
		snapshots.Update(snap)
		log.Info("Configuration reloaded",
			zap.Float64("confidence", snap.Confidence),
			zap.Int("keywords", snap.Keywords.Len()))
		if hub != nil {
			hub.BroadcastConfigChanged("file", snap.View())
		}
	}, func(err error) {
		log.Warn("Configuration reload ignored", zap.Error(err))
	})
	if err != nil {
		log.Debug("Configuration hot reload disabled", zap.Error(err))
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(port int) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
