package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/StrathCole/quote-consensus/pkg/config"
	"github.com/StrathCole/quote-consensus/pkg/logging"
	"github.com/StrathCole/quote-consensus/pkg/metrics"
	"github.com/StrathCole/quote-consensus/pkg/server/api"
	"github.com/StrathCole/quote-consensus/pkg/server/engine"
	"github.com/StrathCole/quote-consensus/pkg/server/reliability"
	"github.com/StrathCole/quote-consensus/pkg/server/sources"
	"github.com/StrathCole/quote-consensus/pkg/version"

	// Import sources to register them
	_ "github.com/StrathCole/quote-consensus/pkg/server/sources/equity"
)

const (
	exitOK                 = 0
	exitError              = 1
	exitInsufficientQuorum = 2
)

var (
	configFile = flag.String("config", "config/config.yaml", "Path to configuration file")
	showVer    = flag.Bool("version", false, "Show version and exit")
	symbol     = flag.String("symbol", "", "Query one symbol, print the result as JSON and exit")
	serverMode = flag.Bool("server", false, "Run the HTTP API")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.AgentString())
		os.Exit(exitOK)
	}

	if *symbol == "" && !*serverMode {
		fmt.Fprintln(os.Stderr, "Either -symbol or -server is required")
		flag.Usage()
		os.Exit(exitError)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(exitError)
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(exitError)
	}

	// Initialize logging
	logger, err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, logOutput(cfg.Logging.Output, *serverMode))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(exitError)
	}

	logger.Info("Starting quote-consensus", "version", version.Version, "server", *serverMode)

	if cfg.Metrics.Enabled {
		metrics.Init()
		if *serverMode {
			go func() {
				logger.Info("Starting metrics server", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
				if err := metrics.ServeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path); err != nil {
					logger.Error("Metrics server failed", "error", err)
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, closeStore, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to build engine", "error", err)
		os.Exit(exitError)
	}
	defer closeStore()

	if !*serverMode {
		code := runOnce(ctx, eng, *symbol, os.Stdout, logger)
		closeStore()
		os.Exit(code)
	}

	if err := runServer(ctx, cancel, cfg, eng, logger); err != nil {
		logger.Error("Server failed", "error", err)
		closeStore()
		os.Exit(exitError)
	}
	logger.Info("Shutdown complete")
}

// logOutput keeps stdout free for the JSON result in one-shot mode.
func logOutput(configured string, server bool) string {
	if !server && (configured == "" || configured == "stdout") {
		return "stderr"
	}
	return configured
}

// buildEngine creates the enabled adapters, the reliability store and the engine.
// The returned func releases the store.
func buildEngine(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*engine.Engine, func(), error) {
	var adapters []sources.Adapter
	for _, sourceCfg := range cfg.EnabledSources() {
		logger.Info("Initializing source", "type", sourceCfg.Type, "name", sourceCfg.Name)

		// Copy so the loaded config keeps only what the file said.
		adapterCfg := make(map[string]interface{}, len(sourceCfg.Config)+2)
		for k, v := range sourceCfg.Config {
			adapterCfg[k] = v
		}
		adapterCfg["logger"] = logger
		if _, ok := adapterCfg["max_quote_age"]; !ok {
			adapterCfg["max_quote_age"] = cfg.Engine.MaxQuoteAge.ToDuration()
		}

		adapter, err := sources.Create(strings.ToLower(sourceCfg.Type), sourceCfg.Name, adapterCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("source %s: %w", sourceCfg.Key(), err)
		}
		adapters = append(adapters, adapter)
	}

	schedule, err := cfg.Schedule()
	if err != nil {
		return nil, nil, err
	}
	options := []engine.Option{engine.WithSchedule(schedule)}

	closeStore := func() {}
	switch strings.ToLower(cfg.Reliability.Backend) {
	case config.BackendMemory:
		options = append(options, engine.WithReliabilityStore(reliability.NewMemoryStore()))
	case config.BackendRedis:
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		store, err := reliability.NewRedisStore(pingCtx, reliability.RedisOptions{
			Addr:      cfg.Reliability.Redis.Addr,
			Password:  cfg.Reliability.Redis.Password,
			DB:        cfg.Reliability.Redis.DB,
			KeyPrefix: cfg.Reliability.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using redis reliability store", "addr", cfg.Reliability.Redis.Addr)
		options = append(options, engine.WithReliabilityStore(store))
		closeStore = func() { _ = store.Close() }
	}

	eng, err := engine.New(adapters, cfg.EngineOptions(), logger, options...)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	return eng, closeStore, nil
}

// runOnce prints one result and maps it to an exit code.
func runOnce(ctx context.Context, eng *engine.Engine, sym string, out io.Writer, logger *logging.Logger) int {
	result, err := eng.GetConsensus(ctx, sym)
	if err != nil {
		logger.Error("Consensus request rejected", "symbol", sym, "error", err)
		return exitError
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Error("Failed to encode result", "error", err)
		return exitError
	}

	if result.Err() != nil {
		return exitInsufficientQuorum
	}
	return exitOK
}

func runServer(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, eng *engine.Engine, logger *logging.Logger) error {
	server := api.NewServer(eng, api.Options{
		Addr:         cfg.Server.HTTP.Addr,
		CacheTTL:     cfg.Server.CacheTTL.ToDuration(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout.ToDuration(),
		WriteTimeout: cfg.Server.HTTP.WriteTimeout.ToDuration(),
	}, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		cancel()
		return err
	case <-ctx.Done():
	}
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("Shutting down gracefully...")
	return server.Stop(shutdownCtx)
}
