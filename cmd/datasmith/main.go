package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/datasmith-ai/datasmith/internal/api"
	"github.com/datasmith-ai/datasmith/internal/common"
	"github.com/datasmith-ai/datasmith/internal/config"
	"github.com/datasmith-ai/datasmith/internal/engine"
	"github.com/datasmith-ai/datasmith/internal/enrich"
	"github.com/datasmith-ai/datasmith/internal/gateway"
	"github.com/datasmith-ai/datasmith/internal/profile"
	"github.com/datasmith-ai/datasmith/internal/prompt"
	"github.com/datasmith-ai/datasmith/internal/query"
	"github.com/datasmith-ai/datasmith/internal/session"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("datasmith: .env file not loaded", "error", err)
	} else {
		logger.Info("datasmith: environment loaded from .env")
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("datasmith: invalid configuration", "error", err)
		os.Exit(1)
	}
	addr := flag.String("addr", cfg.ListenAddr, "listen address")
	searchEngine := flag.String("search-engine", cfg.SearchEngine, "web search provider (serpapi, bing, none)")
	flag.Parse()
	cfg.ListenAddr = *addr
	cfg.SearchEngine = *searchEngine

	model := newModel(cfg, logger)
	searcher := newSearcher(cfg, logger)

	composer := prompt.NewComposer(cfg.PromptCharCeiling, cfg.RowSampleSize)
	profiles := profile.NewCache(cfg.ProfileCacheTTL)
	defer profiles.Stop()

	sess := session.New(session.Options{
		Profiles:   profiles,
		Translator: query.NewTranslator(model, composer, 5),
		Executor:   engine.New(cfg.GroupCardinalityCeiling),
		Enricher:   enrich.New(model, searcher, composer, cfg.SearchParallelism, cfg.SearchQueryCap),
		Model:      model,
		Composer:   composer,
		SampleSize: cfg.RowSampleSize,
	})
	server := api.NewServer(sess, cfg)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("datasmith: listening", "addr", cfg.ListenAddr, "model", model.Name())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("datasmith: server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("datasmith: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("datasmith: shutdown failed", "error", err)
	}
}

func newModel(cfg config.Config, logger *slog.Logger) gateway.Model {
	if cfg.OpenAIKey != "" {
		logger.Info("datasmith: OpenAI model selected", "model", cfg.OpenAIModel)
		return gateway.NewOpenAIModel(cfg.OpenAIKey, cfg.OpenAIEndpoint, cfg.OpenAIModel, cfg.CallTimeout)
	}
	logger.Warn("datasmith: OPENAI_API_KEY not set; falling back to local model")
	return gateway.NewLocalModel()
}

func newSearcher(cfg config.Config, logger *slog.Logger) gateway.Searcher {
	switch cfg.SearchEngine {
	case "serpapi":
		if cfg.SerpAPIKey == "" {
			logger.Warn("datasmith: SERP_API_KEY not set; web search disabled")
			return nil
		}
		logger.Info("datasmith: SerpAPI searcher selected")
		return gateway.NewSerpAPISearcher(cfg.SerpAPIKey, "", cfg.CallTimeout)
	case "bing":
		logger.Info("datasmith: Bing searcher selected")
		return gateway.NewBingSearcher("", cfg.CallTimeout)
	default:
		logger.Warn("datasmith: web search disabled", "engine", cfg.SearchEngine)
		return nil
	}
}
