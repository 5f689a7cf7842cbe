// Package main is the Toi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/toi/internal/cli"
	"github.com/hyperjump/toi/internal/config"
	"github.com/hyperjump/toi/internal/embedding"
	"github.com/hyperjump/toi/internal/models"
	"github.com/hyperjump/toi/internal/pipeline"
	"github.com/hyperjump/toi/internal/server"
	"github.com/hyperjump/toi/internal/storage"
	"github.com/hyperjump/toi/internal/vector"
	"github.com/hyperjump/toi/internal/watcher"
	"github.com/hyperjump/toi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/toi/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "toi server" from the project dir uses the project's
// config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "stats":
		runStats()
	case "clear":
		runClear()
	case "version", "--version", "-v":
		fmt.Printf("toi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Storage.WatchDir != "" {
		p := components.Pipeline
		watchOpts := []watcher.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watcher.WithLogger(logger))
		}
		watchSvc = watcher.New(cfg.Storage.WatchDir, func(path string) {
			resp, err := p.IngestFile(context.Background(), path)
			if err != nil {
				logger.Warn("drop file ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("drop file ingested",
				zap.String("path", path),
				zap.Int("documents", resp.DocumentsIngested),
			)
		}, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(components.Pipeline, components.Storage, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = ingest directly without a running server)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: toi ingest [flags] <questions.json>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *serverURL != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
			os.Exit(1)
		}
		if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
			data = append([]byte(`{"questions":`), append(data, '}')...)
		}
		var resp models.IngestResponse
		if err := postJSON(*serverURL+"/api/v1/ingest", data, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteIngestResult(os.Stdout, &resp, format)
		return
	}

	components := mustInitialize(*configPath)
	defer components.Close()

	resp, err := components.Pipeline.IngestFile(context.Background(), path)
	if err != nil && resp == nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	_ = cli.WriteIngestResult(os.Stdout, resp, format)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = query directly without a running server)`)
	topK := fs.Int("top-k", 0, "number of results (0 = config default)")
	topics := fs.String("topics", "", "comma-separated topic filter")
	types := fs.String("types", "", "comma-separated question type filter")
	minMarks := fs.Int("min-marks", -1, "minimum marks (-1 = no minimum)")
	maxMarks := fs.Int("max-marks", -1, "maximum marks (-1 = no maximum)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: toi query [flags] <query text>")
		os.Exit(1)
	}
	queryStr := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if queryStr == "" {
		fmt.Println("Usage: toi query [flags] <query text>")
		os.Exit(1)
	}

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := models.QueryRequest{Query: queryStr, TopK: *topK}
	filter := &models.MetadataFilter{}
	if *topics != "" {
		filter.Topics = strings.Split(*topics, ",")
	}
	if *types != "" {
		filter.Types = strings.Split(*types, ",")
	}
	if *minMarks >= 0 {
		v := *minMarks
		filter.MinMarks = &v
	}
	if *maxMarks >= 0 {
		v := *maxMarks
		filter.MaxMarks = &v
	}
	if !filter.IsZero() {
		req.Filters = filter
	}

	if *serverURL != "" {
		body, _ := json.Marshal(req)
		var resp models.QueryResponse
		if err := postJSON(*serverURL+"/api/v1/query", body, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteQueryResults(os.Stdout, &resp, format)
		return
	}

	components := mustInitialize(*configPath)
	defer components.Close()

	if err := req.Validate(components.Config.Retrieval.DefaultTopK, components.Config.Retrieval.MaxTopK); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	resp, err := components.Pipeline.Query(context.Background(), req.Query, req.TopK, req.Filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteQueryResults(os.Stdout, resp, format)
}

func runStats() {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = read directly without a running server)`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var stats models.StatsResponse
	if *serverURL != "" {
		if err := getJSON(*serverURL+"/api/v1/stats", &stats); err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		components := mustInitialize(*configPath)
		defer components.Close()
		resp, err := components.Pipeline.Stats(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		stats = *resp
	}
	_ = cli.WriteStats(os.Stdout, &stats, format)
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", `server URL (empty = clear directly without a running server)`)
	yes := fs.Bool("yes", false, "skip confirmation")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fmt.Print("This removes every indexed question and its archive. Continue? [y/N] ")
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	if *serverURL != "" {
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/index", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Clear failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Println("Index cleared.")
		return
	}

	components := mustInitialize(*configPath)
	defer components.Close()
	if err := components.Pipeline.Clear(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Clear failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Index cleared.")
}

func postJSON(url string, body []byte, out interface{}) error {
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Storage  storage.Storage
	Embedder embedding.Embedder
	Index    *vector.Index
	Pipeline *pipeline.Pipeline
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func mustInitialize(configPath string) *Components {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	onnxEmbedder, err := embedding.NewONNXEmbedder(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimension,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
	)
	if err != nil {
		logger.Warn("ONNX embedder unavailable, using mock embedder", zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimension)
	} else {
		embedder = onnxEmbedder
	}

	// A corrupt persisted index is fatal: starting empty would silently drop
	// the corpus.
	index, err := vector.Open(vector.Options{
		Dimension:          cfg.Embedding.Dimension,
		Kind:               cfg.Index.Kind,
		MinTrainingSamples: cfg.Index.MinTrainingSamples,
		NProbe:             cfg.Index.NProbe,
		Dir:                cfg.Storage.IndexDir,
	})
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	logger.Info("vector index opened",
		zap.String("kind", cfg.Index.Kind),
		zap.Int("size", index.Size()),
	)

	p := pipeline.New(embedder, index, store, pipeline.Options{
		ChunkingStrategy: cfg.Retrieval.ChunkingStrategy,
		ModelName:        cfg.Embedding.ModelName,
		DiskPaths:        []string{cfg.Storage.DatabasePath, cfg.Storage.IndexDir},
	}, logger)

	return &Components{
		Config:   cfg,
		Storage:  store,
		Embedder: embedder,
		Index:    index,
		Pipeline: p,
	}, nil
}

func printUsage() {
	fmt.Println(`toi - semantic retrieval for exam questions

Usage:
  toi server [flags]              Start the HTTP server
  toi ingest [flags] <file.json>  Ingest a question file
  toi query [flags] <query>       Query for similar questions
  toi stats [flags]               Show index and archive statistics
  toi clear [flags]               Remove all indexed questions
  toi version                     Show version
  toi help                        Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/toi/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Query Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --top-k int        Number of results (0 = config default)
  --topics string    Comma-separated topic filter (case-insensitive substring match)
  --types string     Comma-separated question type filter (exact match)
  --min-marks int    Minimum marks filter
  --max-marks int    Maximum marks filter
  --output string    Output format: text or json (default: text)

Stats Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --output string    Output format: text or json (default: text)

Clear Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct mode.
  --yes              Skip confirmation

Examples:
  toi server
  toi ingest questions.json
  toi query "entropy of an ideal gas"
  toi query --topics Thermodynamics --min-marks 5 "heat engines"
  toi stats --output json
  toi clear --yes`)
}
