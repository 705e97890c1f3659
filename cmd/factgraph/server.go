package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundprediction/factgraph"
	"github.com/soundprediction/factgraph/pkg/config"
	"github.com/soundprediction/factgraph/pkg/embedder"
	"github.com/soundprediction/factgraph/pkg/extract"
	"github.com/soundprediction/factgraph/pkg/graph"
	"github.com/soundprediction/factgraph/pkg/logger"
	"github.com/soundprediction/factgraph/pkg/nlp"
	"github.com/soundprediction/factgraph/pkg/server"
	"github.com/soundprediction/factgraph/pkg/vector"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the factgraph HTTP server",
	Long: `Start the factgraph HTTP server to provide REST API access to the fused
knowledge stores.

The server provides endpoints for:
- Assimilating raw content into facts
- Looking up facts with graph-verified semantic narrowing
- Deleting entities and detaching facts
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
	tenantID   string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "debug", "Server mode (debug, release, test)")
	serverCmd.Flags().StringVar(&tenantID, "tenant", "default", "Tenant id scoping the vector index")

	// Graph flags
	serverCmd.Flags().String("graph-driver", "neo4j", "Graph driver (neo4j, memory)")
	serverCmd.Flags().String("graph-uri", "bolt://localhost:7687", "Graph database URI")
	serverCmd.Flags().String("graph-username", "neo4j", "Graph database username")
	serverCmd.Flags().String("graph-password", "", "Graph database password")
	serverCmd.Flags().String("graph-database", "neo4j", "Graph database name")

	// Vector flags
	serverCmd.Flags().String("vector-driver", "badger", "Vector index driver (badger, memory)")
	serverCmd.Flags().String("vector-path", "", "Vector index path (badger only)")

	// NLP flags
	serverCmd.Flags().String("nlp-model", "gpt-4o", "NLP model for fact extraction")
	serverCmd.Flags().String("nlp-api-key", "", "NLP API key")
	serverCmd.Flags().String("nlp-base-url", "", "NLP base URL")

	// Embedding flags
	serverCmd.Flags().String("embedding-model", "text-embedding-3-small", "Embedding model")
	serverCmd.Flags().String("embedding-api-key", "", "Embedding API key")
	serverCmd.Flags().String("embedding-base-url", "", "Embedding base URL")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	overrideConfigWithFlags(cmd, cfg)

	if err := validateServerConfig(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(cfg.Log)

	client, err := initializeClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize factgraph: %w", err)
	}

	srv := server.New(cfg, client)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		if err := client.Close(shutdownCtx); err != nil {
			return fmt.Errorf("client shutdown error: %w", err)
		}

		log.Info("server stopped gracefully")
		return nil
	}
}

func initializeClient(cfg *config.Config, log *slog.Logger) (*factgraph.Client, error) {
	// Graph store
	var store graph.Store
	switch cfg.Graph.Driver {
	case "neo4j":
		s, err := graph.NewNeo4jStore(cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password, cfg.Graph.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to create neo4j store: %w", err)
		}
		store = s
	case "memory":
		store = graph.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unsupported graph driver: %s", cfg.Graph.Driver)
	}

	// Embedder
	embedderClient := embedder.NewOpenAIEmbedder(cfg.Embedding.APIKey, embedder.Config{
		Model:     cfg.Embedding.Model,
		BaseURL:   cfg.Embedding.BaseURL,
		BatchSize: cfg.Embedding.BatchSize,
	})

	// Vector index
	var index vector.Index
	switch cfg.Vector.Driver {
	case "badger":
		idx, err := vector.NewBadgerIndex(cfg.Vector.Path, embedderClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger index: %w", err)
		}
		index = idx
	case "memory":
		index = vector.NewMemoryIndex(embedderClient)
	default:
		return nil, fmt.Errorf("unsupported vector driver: %s", cfg.Vector.Driver)
	}

	// NLP clients
	extractorClient, err := buildNLPClient(cfg, "default", log)
	if err != nil {
		return nil, err
	}
	summaryClient, err := buildNLPClient(cfg, "summary", log)
	if err != nil {
		return nil, err
	}

	clientConfig := factgraph.DefaultConfig(tenantID)
	clientConfig.TopK = cfg.Retrieval.TopK
	clientConfig.MinScore = cfg.Retrieval.MinScore

	return factgraph.NewClient(
		store,
		index,
		extract.NewLLMExtractor(extractorClient, log),
		extract.NewLLMSummarizer(summaryClient, log),
		clientConfig,
		log,
	)
}

// buildNLPClient assembles the layered model client: base OpenAI transport,
// retries, then a circuit breaker when enabled.
func buildNLPClient(cfg *config.Config, name string, log *slog.Logger) (nlp.Client, error) {
	modelCfg, ok := cfg.NLP.Models[name]
	if !ok {
		modelCfg = cfg.NLP.Models["default"]
	}
	if modelCfg.Provider != "openai" && modelCfg.Provider != "" {
		return nil, fmt.Errorf("unsupported NLP provider: %s", modelCfg.Provider)
	}

	temperature := modelCfg.Temperature
	maxTokens := modelCfg.MaxTokens
	base, err := nlp.NewOpenAIClient(modelCfg.APIKey, nlp.Config{
		Model:       modelCfg.Model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
		BaseURL:     modelCfg.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create NLP client %q: %w", name, err)
	}

	var client nlp.Client = nlp.NewRetryClient(base, nlp.DefaultRetryConfig())

	if cfg.CircuitBreaker.Enabled {
		client = nlp.NewCircuitBreakerClient(client, nlp.BreakerConfig{
			MaxRequests:      cfg.CircuitBreaker.MaxRequests,
			Interval:         time.Duration(cfg.CircuitBreaker.Interval) * time.Second,
			Timeout:          time.Duration(cfg.CircuitBreaker.Timeout) * time.Second,
			ReadyToTripRatio: cfg.CircuitBreaker.ReadyToTripRatio,
		}, log, "nlp-"+name)
	}

	return client, nil
}

func overrideConfigWithFlags(cmd *cobra.Command, cfg *config.Config) {
	// Server flags
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	// Graph flags
	if cmd.Flags().Changed("graph-driver") {
		cfg.Graph.Driver, _ = cmd.Flags().GetString("graph-driver")
	}
	if cmd.Flags().Changed("graph-uri") {
		cfg.Graph.URI, _ = cmd.Flags().GetString("graph-uri")
	}
	if cmd.Flags().Changed("graph-username") {
		cfg.Graph.Username, _ = cmd.Flags().GetString("graph-username")
	}
	if cmd.Flags().Changed("graph-password") {
		cfg.Graph.Password, _ = cmd.Flags().GetString("graph-password")
	}
	if cmd.Flags().Changed("graph-database") {
		cfg.Graph.Database, _ = cmd.Flags().GetString("graph-database")
	}

	// Vector flags
	if cmd.Flags().Changed("vector-driver") {
		cfg.Vector.Driver, _ = cmd.Flags().GetString("vector-driver")
	}
	if cmd.Flags().Changed("vector-path") {
		cfg.Vector.Path, _ = cmd.Flags().GetString("vector-path")
	}

	// NLP flags
	if cmd.Flags().Changed("nlp-model") {
		m := cfg.NLP.Models["default"]
		m.Model, _ = cmd.Flags().GetString("nlp-model")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-api-key") {
		m := cfg.NLP.Models["default"]
		m.APIKey, _ = cmd.Flags().GetString("nlp-api-key")
		cfg.NLP.Models["default"] = m
	}
	if cmd.Flags().Changed("nlp-base-url") {
		m := cfg.NLP.Models["default"]
		m.BaseURL, _ = cmd.Flags().GetString("nlp-base-url")
		cfg.NLP.Models["default"] = m
	}

	// Embedding flags
	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}
	if cmd.Flags().Changed("embedding-base-url") {
		cfg.Embedding.BaseURL, _ = cmd.Flags().GetString("embedding-base-url")
	}
}

func validateServerConfig(cfg *config.Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}
	if cfg.Graph.Driver == "neo4j" && cfg.Graph.URI == "" {
		return fmt.Errorf("graph URI is required")
	}
	if cfg.Vector.Driver == "badger" && cfg.Vector.Path == "" {
		return fmt.Errorf("vector path is required for the badger driver")
	}
	return nil
}
