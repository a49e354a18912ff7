package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"iocscan/compress"
	"iocscan/version"
)

type Config struct {
	Platform            string            `json:"platform"`
	Scan                Overrides         `json:"scan"`
	IndexPath           string            `json:"index_path"`
	IndexCompression    string            `json:"index_compression"`
	RulesDir            string            `json:"rules_dir"`
	RulesURL            string            `json:"rules_url"`
	RulesCache          string            `json:"rules_cache"`
	OutputFileName      string            `json:"output_file_name"`
	NATSURL             string            `json:"nats_url"`
	NATSPrefix          string            `json:"nats_prefix"`
	OtelEndpoint        string            `json:"otel_endpoint"`
	OtelHeaders         map[string]string `json:"otel_headers"`
	OtelServiceName     string            `json:"otel_service_name"`
	OtelTimeout         time.Duration     `json:"otel_timeout"`
	MaxIOPerSecond      int               `json:"max_io_per_second"`
	FuzzyHash           bool              `json:"fuzzy_hash"`
	FuzzyAlgorithms     []string          `json:"fuzzy_algorithms"`
	CollectMetadata     bool              `json:"collect_metadata"`
	MetadataFull        bool              `json:"metadata_full"`
	LogLevel            string            `json:"log_level"`
	ConfigFile          string            `json:"config_file"`
	TraceFlight         bool              `json:"trace_flight"`
	TraceFlightFile     string            `json:"trace_flight_file"`
	TraceFlightMaxBytes uint64            `json:"trace_flight_max_bytes"`
	TraceFlightMinAge   time.Duration     `json:"trace_flight_min_age"`
}

// Environment variables consulted for defaults. A .env file is loaded into
// the environment before LoadConfig runs.
const (
	EnvNATSURL      = "IOCSCAN_NATS_URL"
	EnvRulesURL     = "IOCSCAN_RULES_URL"
	EnvOtelEndpoint = "IOCSCAN_OTEL_ENDPOINT"
)

func defaultConfig() *Config {
	now := time.Now().UTC()
	timestamp := now.Format("20060102-150405")
	return &Config{
		Platform:         DetectPlatform(),
		IndexPath:        "iocscan.index",
		IndexCompression: "zstd",
		RulesDir:         "rules",
		RulesURL:         os.Getenv(EnvRulesURL),
		RulesCache:       "",
		OutputFileName:   fmt.Sprintf("iocscan-%s-%d.ndjson", timestamp, now.Unix()),
		NATSURL:          os.Getenv(EnvNATSURL),
		NATSPrefix:       "iocscan",
		OtelEndpoint:     os.Getenv(EnvOtelEndpoint),
		OtelHeaders:      map[string]string{},
		OtelServiceName:  "iocscan",
		OtelTimeout:      5 * time.Second,
		MaxIOPerSecond:   0,
		FuzzyAlgorithms:  []string{},
		LogLevel:         "info",
		TraceFlightFile:  "trace-flight.out",
	}
}

func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	platform := flag.String("platform", cfg.Platform, fmt.Sprintf("Preset to start from: %s (default: %s).", strings.Join(Platforms(), ", "), cfg.Platform))
	scanRoots := flag.String("path", "", "Comma-separated list of directories to scan (default: every mounted drive).")
	extensions := flag.String("extensions", "", "Comma-separated list of file extensions to scan (default: platform preset).")
	excludeFiles := flag.String("exclude-files", "", "Comma-separated list of file names to skip (default: platform preset).")
	excludeDirs := flag.String("exclude-dirs", "", "Comma-separated list of directory prefixes to prune (default: platform preset).")
	maxSize := flag.Int("max-size", 0, "Maximum stream size in MiB to hash or match (default: 256).")
	rulesFile := flag.String("rules", "", "Name of the rule blob to fetch (default: yara_rules).")
	rulesDir := flag.String("rules-dir", cfg.RulesDir, fmt.Sprintf("Directory holding rule blobs under http_blob/ (default: %s).", cfg.RulesDir))
	rulesURL := flag.String("rules-url", cfg.RulesURL, fmt.Sprintf("Base URL of the rule blob server, overrides --rules-dir (default: $%s).", EnvRulesURL))
	rulesCache := flag.String("rules-cache", cfg.RulesCache, "Path of a bbolt file caching fetched rule blobs (default: none).")
	reportingMode := flag.String("reporting-mode", "", "Reporting mode, reports go to channel report_<mode> (default: standard).")
	includeDeleted := flag.Bool("include-deleted", false, "Scan files flagged as deleted (default: false).")
	fastScan := flag.Bool("fast-scan", true, "Stop matching a rule at its first hit (default: true).")
	taskID := flag.String("task-id", "", "Task identifier echoed as extra in reports (default: none).")
	indexPath := flag.String("index", cfg.IndexPath, fmt.Sprintf("Path of the change-detection index (default: %s).", cfg.IndexPath))
	indexCompression := flag.String("index-compression", cfg.IndexCompression, fmt.Sprintf("Index compression: %s (default: %s).", strings.Join(compress.Names(), ", "), cfg.IndexCompression))
	output := flag.String("output", cfg.OutputFileName, "NDJSON report file, - for stdout, empty to disable (default: iocscan-<timestamp>-<unix>.ndjson).")
	natsURL := flag.String("nats-url", cfg.NATSURL, fmt.Sprintf("NATS server URL for report delivery (default: $%s).", EnvNATSURL))
	natsPrefix := flag.String("nats-prefix", cfg.NATSPrefix, fmt.Sprintf("NATS subject prefix (default: %s).", cfg.NATSPrefix))
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, fmt.Sprintf("OTLP/HTTP logs endpoint (default: $%s).", EnvOtelEndpoint))
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: iocscan).")
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	maxIO := flag.Int("max-io-per-second", cfg.MaxIOPerSecond, "Maximum files opened per second, 0 for unlimited (default: 0).")
	fuzzyHash := flag.Bool("fuzzy-hash", cfg.FuzzyHash, fmt.Sprintf("Add fuzzy hashes to detections (default: %t).", cfg.FuzzyHash))
	fuzzyAlgorithms := flag.String("fuzzy-algorithms", "", "Comma-separated list of fuzzy hash algorithms (default: tlsh when fuzzy hashing enabled).")
	collectMetadata := flag.Bool("collect-metadata", cfg.CollectMetadata, fmt.Sprintf("Send platform metadata reports (default: %t).", cfg.CollectMetadata))
	metadataFull := flag.Bool("metadata-full", cfg.MetadataFull, fmt.Sprintf("Include per-process details in metadata (default: %t).", cfg.MetadataFull))
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := flag.String("config", "", "Path to JSON configuration file (default: none).")
	traceFlight := flag.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := flag.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := flag.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := flag.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("iocscan version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "platform":
			cfg.Platform = strings.ToLower(*platform)
		case "path":
			cfg.Scan.ScanRoots = parseCommaSeparated(*scanRoots)
		case "extensions":
			cfg.Scan.ScanExtensions = parseCommaSeparated(*extensions)
		case "exclude-files":
			cfg.Scan.ExcludeFiles = parseCommaSeparated(*excludeFiles)
		case "exclude-dirs":
			cfg.Scan.ExcludeDirs = parseCommaSeparated(*excludeDirs)
		case "max-size":
			cfg.Scan.MaxSize = *maxSize
		case "rules":
			cfg.Scan.RulesFile = *rulesFile
		case "rules-dir":
			cfg.RulesDir = *rulesDir
		case "rules-url":
			cfg.RulesURL = *rulesURL
		case "rules-cache":
			cfg.RulesCache = *rulesCache
		case "reporting-mode":
			cfg.Scan.ReportingMode = strings.ToLower(*reportingMode)
		case "include-deleted":
			cfg.Scan.IncludeDeleted = *includeDeleted
		case "fast-scan":
			cfg.Scan.Thorough = !*fastScan
		case "task-id":
			cfg.Scan.TaskID = *taskID
		case "index":
			cfg.IndexPath = *indexPath
		case "index-compression":
			cfg.IndexCompression = strings.ToLower(*indexCompression)
		case "output":
			cfg.OutputFileName = *output
		case "nats-url":
			cfg.NATSURL = *natsURL
		case "nats-prefix":
			cfg.NATSPrefix = *natsPrefix
		case "otel-endpoint":
			cfg.OtelEndpoint = *otelEndpoint
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = *otelServiceName
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "max-io-per-second":
			cfg.MaxIOPerSecond = *maxIO
		case "fuzzy-hash":
			cfg.FuzzyHash = *fuzzyHash
		case "fuzzy-algorithms":
			cfg.FuzzyAlgorithms = parseCommaSeparated(*fuzzyAlgorithms)
		case "collect-metadata":
			cfg.CollectMetadata = *collectMetadata
		case "metadata-full":
			cfg.MetadataFull = *metadataFull
		case "log-level":
			cfg.LogLevel = *logLevel
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})

	cfg.FuzzyAlgorithms = normalizeAlgorithms(cfg.FuzzyAlgorithms)
	if cfg.FuzzyHash && len(cfg.FuzzyAlgorithms) == 0 {
		cfg.FuzzyAlgorithms = []string{"tlsh"}
	}
	if len(cfg.FuzzyAlgorithms) > 0 {
		cfg.FuzzyHash = true
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ScanDefaults returns the preset selected by Platform.
func (cfg *Config) ScanDefaults() (ScanConfig, error) {
	return Preset(cfg.Platform)
}

func displayHelp() {
	fmt.Println("iocscan - endpoint IOC scanner")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  iocscan [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  iocscan --rules-dir ./rules --rules my_rules")
	fmt.Println("  iocscan --platform unix --path \"/usr,/opt\" --output -")
	fmt.Println("  iocscan --rules-url https://rules.example.org --nats-url nats://127.0.0.1:4222")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	err = json.Unmarshal(data, cfg)
	if err != nil {
		return fmt.Errorf("invalid config file format: %v", err)
	}
	if _, ok := raw["platform"]; ok {
		cfg.Platform = strings.ToLower(strings.TrimSpace(cfg.Platform))
	}
	return nil
}

func (cfg *Config) validate() error {
	if strings.TrimSpace(cfg.IndexCompression) == "" {
		cfg.IndexCompression = "zstd"
	}
	if strings.TrimSpace(cfg.NATSPrefix) == "" {
		cfg.NATSPrefix = "iocscan"
	}

	if _, err := Preset(cfg.Platform); err != nil {
		return err
	}
	if strings.TrimSpace(cfg.IndexPath) == "" {
		return fmt.Errorf("index path must be set")
	}
	if _, err := compress.Get(cfg.IndexCompression); err != nil {
		return fmt.Errorf("invalid index-compression value: %s", cfg.IndexCompression)
	}
	if strings.ContainsAny(cfg.Scan.ReportingMode, " \t.*>") {
		return fmt.Errorf("invalid reporting mode: %s", cfg.Scan.ReportingMode)
	}
	if cfg.Scan.MaxSize < 0 {
		return fmt.Errorf("max-size must be zero or positive")
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max-io-per-second must be zero or positive")
	}
	if cfg.RulesURL != "" {
		if !strings.HasPrefix(cfg.RulesURL, "http://") && !strings.HasPrefix(cfg.RulesURL, "https://") {
			return fmt.Errorf("rules-url must include scheme (http or https)")
		}
	} else if strings.TrimSpace(cfg.RulesDir) == "" {
		return fmt.Errorf("either rules-dir or rules-url must be specified")
	}
	if cfg.OutputFileName == "" && cfg.NATSURL == "" && cfg.OtelEndpoint == "" {
		return fmt.Errorf("at least one of --output, --nats-url, or --otel-endpoint must be set")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || containsString(out, item) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
