package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Mindburn-Labs/geogov/pkg/api"
	"github.com/Mindburn-Labs/geogov/pkg/config"
	"github.com/Mindburn-Labs/geogov/pkg/contracts"
	"github.com/Mindburn-Labs/geogov/pkg/ensemble"
	"github.com/Mindburn-Labs/geogov/pkg/ledger"
	"github.com/Mindburn-Labs/geogov/pkg/merge"
	"github.com/Mindburn-Labs/geogov/pkg/observability"
	"github.com/Mindburn-Labs/geogov/pkg/pipeline"
	"github.com/Mindburn-Labs/geogov/pkg/retrieval"
	"github.com/Mindburn-Labs/geogov/pkg/rules"
	"github.com/Mindburn-Labs/geogov/pkg/signing"
	"github.com/Mindburn-Labs/geogov/pkg/textgen"
)

const version = "0.3.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Exposed for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServerCmd(nil, stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServerCmd(args[2:], stdout, stderr)
	case "analyze":
		return runAnalyzeCmd(args[2:], stdout, stderr)
	case "export":
		return runExportCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "geogov %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServerCmd(args[1:], stdout, stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "geogov %s\n", version)
	fmt.Fprintln(w, "Geo-compliance screening for feature artifacts.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  geogov <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintf(w, "  %-10s %s\n", "server", "Run the screening API server (default)")
	fmt.Fprintf(w, "  %-10s %s\n", "analyze", "Analyze one artifact from a JSON file or stdin")
	fmt.Fprintf(w, "  %-10s %s\n", "export", "Export the signed evidence bundle (--out)")
	fmt.Fprintf(w, "  %-10s %s\n", "verify", "Verify ledger hashes and the Merkle root")
	fmt.Fprintf(w, "  %-10s %s\n", "health", "Check a running server (--addr)")
	fmt.Fprintf(w, "  %-10s %s\n", "version", "Show version information")
	fmt.Fprintf(w, "  %-10s %s\n", "help", "Show this help")
	fmt.Fprintln(w, "")
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// buildGenerator assembles the text generation stack: OpenAI client,
// retry wrapper, then a local or Redis-backed rate limit.
func buildGenerator(cfg config.GeneratorConfig, logger *slog.Logger) textgen.Generator {
	var gen textgen.Generator = textgen.NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	gen = textgen.WithRetries(gen, cfg.MaxRetries, time.Second, logger)

	var limiter textgen.Limiter
	if cfg.RedisAddr != "" {
		limiter = textgen.NewRedisLimiter(cfg.RedisAddr, "", 0, cfg.RateRPS, cfg.RateBurst)
	} else {
		limiter = textgen.NewLocalLimiter(cfg.RateRPS, cfg.RateBurst)
	}
	return textgen.WithLimit(gen, limiter, "openai")
}

// openLedger opens the JSONL ledger and attaches the configured index.
func openLedger(cfg config.LedgerConfig, logger *slog.Logger) (*ledger.Ledger, error) {
	led, err := ledger.Open(cfg.Path, logger)
	if err != nil {
		return nil, err
	}
	switch {
	case cfg.PostgresDSN != "":
		idx, err := ledger.OpenPostgresIndex(cfg.PostgresDSN)
		if err != nil {
			logger.Warn("postgres index unavailable, continuing without", "error", err)
		} else {
			led.WithIndex(idx)
		}
	case cfg.SQLitePath != "":
		idx, err := ledger.OpenSQLiteIndex(cfg.SQLitePath)
		if err != nil {
			logger.Warn("sqlite index unavailable, continuing without", "error", err)
		} else {
			led.WithIndex(idx)
		}
	}
	return led, nil
}

// stack is everything a runnable command needs beyond the raw config.
type stack struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *rules.FileStore
	ledger   *ledger.Ledger
	exporter *ledger.Exporter
	build    api.AnalyzerFactory
	pipeCfg  pipeline.Config
}

func buildStack(cfg config.Config, logWriter io.Writer) (*stack, error) {
	logger := newLogger(cfg.Server.LogLevel, logWriter)

	store := rules.NewFileStore(cfg.Policy.Path, logger)
	ruleList, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	led, err := openLedger(cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	keyProvider, err := signing.NewMemoryKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("init signing key: %w", err)
	}
	keyring := signing.NewKeyring(keyProvider)

	gen := buildGenerator(cfg.Generator, logger)

	var retriever retrieval.Retriever
	if cfg.Analysis.RetrievalEndpoint != "" {
		retriever = retrieval.NewHTTPRetriever(cfg.Analysis.RetrievalEndpoint, logger)
	}

	pipeCfg := pipeline.Config{
		Authority:     merge.Authority(cfg.Analysis.Authority),
		RAGEnabled:    cfg.Analysis.RAGEnabled,
		TopK:          cfg.Analysis.TopK,
		ArbiterTopN:   cfg.Analysis.ArbiterTopN,
		StageTimeout:  cfg.Analysis.StageTimeout,
		PolicyVersion: store.Document().Version,
	}

	build := func(pc pipeline.Config) *pipeline.Analyzer {
		engine, engErr := rules.NewEngine(ruleList, logger)
		if engErr != nil {
			logger.Error("rules engine init failed, running with no rules", "error", engErr)
			engine, _ = rules.NewEngine(nil, logger)
		}
		ens := ensemble.New(gen, logger,
			ensemble.WithStageTimeout(pc.StageTimeout),
			ensemble.WithArbiterTopN(pc.ArbiterTopN))
		return pipeline.New(pc, engine, ens, retriever, led, logger)
	}

	return &stack{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		ledger:   led,
		exporter: ledger.NewExporter(led, keyring),
		build:    build,
		pipeCfg:  pipeCfg,
	}, nil
}

func runServerCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("server", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "Path to the YAML configuration file")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	st, err := buildStack(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.ledger.Close()

	ctx := context.Background()
	telemetry, err := observability.New(ctx, &observability.Config{
		ServiceName:    "geogov",
		ServiceVersion: version,
		Environment:    cfg.Telemetry.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
		Enabled:        cfg.Telemetry.Enabled,
		Insecure:       true,
	})
	if err != nil {
		st.logger.Warn("telemetry init failed, continuing without", "error", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
	}

	server := api.NewServer(st.pipeCfg, st.build, st.store, st.ledger, st.exporter, st.logger).WithTelemetry(telemetry)
	limiter := api.NewGlobalRateLimiter(cfg.Server.RateRPS, cfg.Server.RateBurst)
	validator := api.NewJWTValidator(cfg.Server.JWTSecret)
	if validator == nil {
		st.logger.Warn("JWT_SECRET not set, API authentication disabled")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(limiter, validator),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		st.logger.Info("server listening", "port", cfg.Server.Port,
			"authority", st.pipeCfg.Authority, "policy_version", st.pipeCfg.PolicyVersion)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "Server error: %v\n", err)
		return 1
	case sig := <-sigCh:
		st.logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		fmt.Fprintf(stderr, "Shutdown error: %v\n", err)
		return 1
	}
	return 0
}

func runAnalyzeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("analyze", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "Path to the YAML configuration file")
	inputPath := cmd.String("in", "-", "Artifact JSON file, or '-' for stdin")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	var data []byte
	if *inputPath == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(*inputPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error reading artifact: %v\n", err)
		return 2
	}

	var artifact contracts.FeatureArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		fmt.Fprintf(stderr, "Error parsing artifact: %v\n", err)
		return 2
	}

	st, err := buildStack(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.ledger.Close()

	result, err := st.build(st.pipeCfg).Analyze(context.Background(), artifact)
	if err != nil {
		fmt.Fprintf(stderr, "Analysis failed: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(stdout, string(out))
	return 0
}

func runExportCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("export", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "Path to the YAML configuration file")
	outPath := cmd.String("out", "evidence.zip", "Output path for the bundle")
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	st, err := buildStack(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer st.ledger.Close()

	snapshot, policyHash := st.store.Snapshot()
	bundle, checksum, err := st.exporter.ExportBundle(snapshot, policyHash)
	if err != nil {
		fmt.Fprintf(stderr, "Export failed: %v\n", err)
		return 1
	}
	if err := os.WriteFile(*outPath, bundle, 0o600); err != nil {
		fmt.Fprintf(stderr, "Error writing bundle: %v\n", err)
		return 1
	}

	location := *outPath
	var sink ledger.BundleSink
	switch {
	case cfg.Ledger.S3Bucket != "":
		s3Sink, sinkErr := ledger.NewS3Sink(context.Background(), ledger.S3SinkConfig{
			Bucket:   cfg.Ledger.S3Bucket,
			Region:   cfg.Ledger.S3Region,
			Endpoint: cfg.Ledger.S3Endpoint,
		})
		if sinkErr != nil {
			fmt.Fprintf(stderr, "S3 sink unavailable: %v\n", sinkErr)
		} else {
			sink = s3Sink
		}
	case cfg.Ledger.GCSBucket != "":
		gcsSink, sinkErr := ledger.NewGCSBundleSink(context.Background(), ledger.GCSSinkConfig{
			Bucket: cfg.Ledger.GCSBucket,
			Prefix: cfg.Ledger.GCSPrefix,
		})
		if sinkErr != nil {
			fmt.Fprintf(stderr, "GCS sink unavailable: %v\n", sinkErr)
		} else {
			sink = gcsSink
		}
	}
	if sink != nil {
		if remote, upErr := sink.Store(context.Background(), bundle, checksum); upErr != nil {
			fmt.Fprintf(stderr, "Bundle upload failed: %v\n", upErr)
		} else {
			location = remote
		}
	}

	if *jsonOutput {
		out, _ := json.MarshalIndent(map[string]any{
			"path":          location,
			"checksum":      checksum,
			"receipt_count": st.ledger.Len(),
			"merkle_root":   st.ledger.MerkleRoot(),
		}, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else {
		fmt.Fprintf(stdout, "Evidence bundle written: %s\n", location)
		fmt.Fprintf(stdout, "  Receipts: %d\n", st.ledger.Len())
		fmt.Fprintf(stdout, "  Checksum: %s\n", checksum)
	}
	return 0
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	configPath := cmd.String("config", "", "Path to the YAML configuration file")
	jsonOutput := cmd.Bool("json", false, "Output result as JSON")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	logger := newLogger(cfg.Server.LogLevel, stderr)
	led, err := ledger.Open(cfg.Ledger.Path, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening ledger: %v\n", err)
		return 1
	}
	defer led.Close()

	verifyErr := led.Verify()
	if *jsonOutput {
		result := map[string]any{
			"path":          cfg.Ledger.Path,
			"receipt_count": led.Len(),
			"merkle_root":   led.MerkleRoot(),
			"valid":         verifyErr == nil,
		}
		if verifyErr != nil {
			result["error"] = verifyErr.Error()
		}
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(out))
	} else if verifyErr != nil {
		fmt.Fprintf(stderr, "Verification failed: %v\n", verifyErr)
	} else {
		fmt.Fprintf(stdout, "Ledger verified: %d receipts\n", led.Len())
		fmt.Fprintf(stdout, "  Merkle root: %s\n", led.MerkleRoot())
	}
	if verifyErr != nil {
		return 1
	}
	return 0
}

func runHealthCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("health", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	addr := cmd.String("addr", "http://localhost:8080", "Server base URL")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	resp, err := http.Get(*addr + "/api/health")
	if err != nil {
		fmt.Fprintf(stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	_, _ = io.Copy(stdout, resp.Body)
	fmt.Fprintln(stdout)
	return 0
}
