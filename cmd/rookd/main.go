// Command rookd is the main entry point for the Rook memory engine server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rook-mem/rook/internal/config"
	"github.com/rook-mem/rook/internal/engine"
	rookmcp "github.com/rook-mem/rook/internal/mcp"
	"github.com/rook-mem/rook/internal/mcp/tools/memorytool"
	"github.com/rook-mem/rook/internal/observe"
	"github.com/rook-mem/rook/internal/resilience"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	ollamaembed "github.com/rook-mem/rook/pkg/provider/embeddings/ollama"
	openaiembed "github.com/rook-mem/rook/pkg/provider/embeddings/openai"
	"github.com/rook-mem/rook/pkg/provider/llm"
	anyllmprovider "github.com/rook-mem/rook/pkg/provider/llm/anyllm"
	openaillm "github.com/rook-mem/rook/pkg/provider/llm/openai"
	"github.com/rook-mem/rook/pkg/store/postgres"
)

// version is the build-time version string. Overridden via -ldflags
// "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	embeddingDims := flag.Int("embedding-dims", 1536, "embedding vector dimensions for the postgres schema")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rookd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rookd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("rookd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(context.Background(), observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise observability", "err", err)
		return 1
	}
	defer shutdownObserve(context.Background())

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, *embeddingDims)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Engine ─────────────────────────────────────────────────────────────────
	eng, err := engine.New(cfg, providers, logger)
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.StartConsolidation(ctx, memory.Filter{})

	// ── MCP server ─────────────────────────────────────────────────────────────
	toolList := memorytool.NewTools(eng)
	server := rookmcp.NewServer(version, toolList)

	slog.Info("server ready — press Ctrl+C to shut down", "tools", len(toolList))

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := eng.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires every factory Rook ships with into reg.
// embeddingDims sizes the pgvector columns for any postgres-backed store
// created from these factories.
func registerBuiltinProviders(reg *config.Registry, embeddingDims int) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		return openaillm.New(e.APIKey, e.Model, openaiOpts(e)...)
	})
	reg.RegisterLLM("anyllm", func(e config.ProviderEntry) (llm.Provider, error) {
		backend, _ := e.Options["backend"].(string)
		if backend == "" {
			return nil, fmt.Errorf("providers.llm.options.backend is required when providers.llm.name is \"anyllm\"")
		}
		return anyllmprovider.New(backend, e.Model)
	})

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		return openaiembed.New(e.APIKey, e.Model)
	})
	reg.RegisterEmbeddings("ollama", func(e config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := e.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollamaembed.New(baseURL, e.Model)
	})

	reg.RegisterVectorDB("postgres", func(e config.ProviderEntry) (memory.VectorStore, error) {
		return postgres.NewStore(context.Background(), e.DSN, embeddingDims)
	})
	reg.RegisterGraphDB("postgres", func(e config.ProviderEntry) (memory.GraphStore, error) {
		return postgres.NewStore(context.Background(), e.DSN, embeddingDims)
	})
	reg.RegisterFullText("postgres", func(e config.ProviderEntry) (memory.FullTextIndex, error) {
		return postgres.NewStore(context.Background(), e.DSN, embeddingDims)
	})
}

func openaiOpts(e config.ProviderEntry) []openaillm.Option {
	var opts []openaillm.Option
	if e.BaseURL != "" {
		opts = append(opts, openaillm.WithBaseURL(e.BaseURL))
	}
	return opts
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [engine.Providers] struct for the engine to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*engine.Providers, error) {
	ps := &engine.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			slog.Info("provider created", "kind", "llm", "name", name)
			ps.LLM = p
			if len(cfg.Providers.LLMFallbacks) > 0 {
				fallback := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
				for _, fe := range cfg.Providers.LLMFallbacks {
					fp, err := reg.CreateLLM(fe)
					if err != nil {
						return nil, fmt.Errorf("create llm fallback provider %q: %w", fe.Name, err)
					}
					fallback.AddFallback(fe.Name, fp)
					slog.Info("llm fallback registered", "name", fe.Name)
				}
				ps.LLM = fallback
			}
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "embeddings", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if name := cfg.Providers.VectorDB.Name; name != "" {
		p, err := reg.CreateVectorDB(cfg.Providers.VectorDB)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "vector_db", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create vector_db provider %q: %w", name, err)
		} else {
			ps.VectorDB = p
			slog.Info("provider created", "kind", "vector_db", "name", name)
		}
	}

	if name := cfg.Providers.GraphDB.Name; name != "" {
		p, err := reg.CreateGraphDB(cfg.Providers.GraphDB)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "graph_db", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create graph_db provider %q: %w", name, err)
		} else {
			ps.GraphDB = p
			slog.Info("provider created", "kind", "graph_db", "name", name)
		}
	}

	if name := cfg.Providers.Reranker.Name; name != "" {
		p, err := reg.CreateReranker(cfg.Providers.Reranker)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "reranker", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create reranker provider %q: %w", name, err)
		} else {
			ps.Reranker = p
			slog.Info("provider created", "kind", "reranker", "name", name)
		}
	}

	if name := cfg.Providers.FullText.Name; name != "" {
		p, err := reg.CreateFullText(cfg.Providers.FullText)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not registered — skipping", "kind", "full_text", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create full_text provider %q: %w", name, err)
		} else {
			ps.FullText = p
			slog.Info("provider created", "kind", "full_text", "name", name)
		}
	}

	return ps, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
