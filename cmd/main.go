package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iocscan/compress"
	"iocscan/config"
	"iocscan/drive"
	"iocscan/fuzzy"
	"iocscan/index"
	"iocscan/logger"
	"iocscan/orchestrator"
	"iocscan/store"
	"iocscan/systeminfo"
	"iocscan/tracing"
	"iocscan/transport"
	"iocscan/version"

	"github.com/joho/godotenv"
)

// metadataMode is the reporting mode metadata reports always travel on.
const metadataMode = "standard"

func main() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	// Initialize configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(cfg.LogLevel)
	logger.Debugf("iocscan %s starting", version.Version)

	if err := tracing.Start(tracing.DefaultFile); err != nil {
		logger.Warnf("Failed to start trace: %v", err)
	} else {
		defer tracing.Stop()
	}

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	defaults, err := cfg.ScanDefaults()
	if err != nil {
		logger.Fatalf("Unknown platform: %v", err)
	}

	ix, err := openIndex(cfg)
	if err != nil {
		logger.Fatalf("Cannot use index: %v", err)
	}

	rulesStore, closeStore, err := buildStore(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize rule store: %v", err)
	}
	defer closeStore()

	client, err := buildClient(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize transport: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warnf("Failed to close transport: %v", err)
		}
	}()

	var hashers []fuzzy.Hasher
	if cfg.FuzzyHash {
		var unknown []string
		hashers, unknown = fuzzy.Resolve(cfg.FuzzyAlgorithms)
		for _, name := range unknown {
			logger.Warnf("Unknown fuzzy hash algorithm %q", name)
		}
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, cfg.TraceFlight, cfg.TraceFlightFile)

	if cfg.CollectMetadata {
		reports := systeminfo.Collect(ctx, systeminfo.Options{Full: cfg.MetadataFull})
		if err := systeminfo.Publish(ctx, client, orchestrator.ReportChannel(metadataMode), reports); err != nil {
			logger.Errorf("Metadata delivery incomplete: %v", err)
		}
	}

	orch := orchestrator.New(
		defaults,
		cfg.Scan,
		drive.NewLocalManager(),
		client,
		orchestrator.DefaultFactories(rulesStore, ix, hashers),
		orchestrator.WithMaxIOPerSecond(cfg.MaxIOPerSecond),
	)

	startTime := time.Now()
	res, err := orch.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Warn("Scan interrupted, index left unchanged.")
		return
	}
	if err != nil {
		logger.Fatalf("Scanning failed: %v", err)
	}
	for _, d := range res.Failed() {
		logger.Warnf("Drive %s (%s) incomplete: %v", d.Device, d.Mountpoint, d.Err)
	}
	logger.WithFields(map[string]interface{}{
		"detections": len(res.Report),
		"drives":     len(res.Drives),
		"delivered":  res.Delivered,
		"elapsed":    time.Since(startTime).Round(time.Millisecond).String(),
	}).Info("Scanning completed.")
}

// openIndex loads the change-detection index. A corrupt snapshot is an
// error; the operator removes it to start over.
func openIndex(cfg *config.Config) (*index.Index, error) {
	codec, err := compress.Get(cfg.IndexCompression)
	if err != nil {
		return nil, err
	}
	ix, err := index.Load(cfg.IndexPath, index.WithCodec(codec))
	if err != nil {
		var fe *index.FormatError
		if errors.As(err, &fe) {
			return nil, fmt.Errorf("%s is not a valid index, remove it to rebuild: %w", cfg.IndexPath, err)
		}
		return nil, err
	}
	return ix, nil
}

func buildStore(cfg *config.Config) (store.Store, func(), error) {
	var st store.Store
	if cfg.RulesURL != "" {
		httpStore, err := store.NewHTTPStore(cfg.RulesURL)
		if err != nil {
			return nil, nil, err
		}
		st = httpStore
	} else {
		st = store.NewDirStore(cfg.RulesDir)
	}
	if cfg.RulesCache == "" {
		return st, func() {}, nil
	}
	cache, err := store.NewBoltCache(cfg.RulesCache, st)
	if err != nil {
		return nil, nil, err
	}
	return cache, func() {
		if err := cache.Close(); err != nil {
			logger.Warnf("Failed to close rule cache: %v", err)
		}
	}, nil
}

func buildClient(cfg *config.Config) (transport.Client, error) {
	var clients transport.Multi
	if cfg.OutputFileName != "" {
		fc, err := transport.NewFileClient(cfg.OutputFileName)
		if err != nil {
			return nil, err
		}
		clients = append(clients, fc)
	}
	if cfg.NATSURL != "" {
		nc, err := transport.NewNATSClient(cfg.NATSURL, cfg.NATSPrefix)
		if err != nil {
			_ = clients.Close()
			return nil, err
		}
		clients = append(clients, nc)
	}
	if cfg.OtelEndpoint != "" {
		oc, err := transport.NewOtelClient(transport.OtelConfig{
			Endpoint:    cfg.OtelEndpoint,
			Headers:     cfg.OtelHeaders,
			Timeout:     cfg.OtelTimeout,
			ServiceName: cfg.OtelServiceName,
		})
		if err != nil {
			_ = clients.Close()
			return nil, err
		}
		clients = append(clients, oc)
	}
	if len(clients) == 0 {
		return nil, errors.New("no report sink configured")
	}
	return clients, nil
}

func handleSignals(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	handleSignalEvent(cancelFunc, traceFlight, traceFlightFile, sigChan)
	// A second signal terminates the process.
	signal.Stop(sigChan)
}

func handleSignalEvent(cancelFunc context.CancelFunc, traceFlight bool, traceFlightFile string, sigChan <-chan os.Signal) {
	<-sigChan
	logger.Info("Interrupt signal received. Shutting down...")

	if traceFlight {
		if err := tracing.WriteFlightRecorder(traceFlightFile); err != nil {
			logger.Warnf("Failed to write flight recorder: %v", err)
		}
		tracing.StopFlightRecorder()
	}

	cancelFunc()
}
