package main

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/groundtruth/internal/chunker"
	"github.com/dgallion1/groundtruth/internal/config"
	"github.com/dgallion1/groundtruth/internal/correction"
	"github.com/dgallion1/groundtruth/internal/extract"
	"github.com/dgallion1/groundtruth/internal/figcache"
	"github.com/dgallion1/groundtruth/internal/figures"
	"github.com/dgallion1/groundtruth/internal/grounding"
	"github.com/dgallion1/groundtruth/internal/llm"
	"github.com/dgallion1/groundtruth/internal/pipeline"
)

// app holds the wired run pipeline and what must be released on exit.
type app struct {
	client *llm.OpenAIClient
	runner *pipeline.Runner
	close  func() error
}

func newApp(cfg config.Config, log *slog.Logger) (*app, error) {
	client := llm.NewOpenAIClient(llm.Config{
		APIKey:            cfg.OpenAIAPIKey,
		BaseURL:           cfg.OpenAIBaseURL,
		Model:             cfg.OpenAIModel,
		VisionModel:       cfg.VisionModel,
		AzureEndpoint:     cfg.AzureOpenAIEndpoint,
		AzureAPIVersion:   cfg.AzureOpenAIAPIVersion,
		RequestsPerMinute: cfg.LLMRequestsPerMinute,
		MaxRetries:        cfg.LLMMaxRetries,
		RetryDelay:        cfg.LLMRetryDelay,
		Timeout:           cfg.LLMTimeout,
	}, log)

	var (
		cache   figcache.Store = figcache.NewMemoryStore()
		closeFn                = func() error { return nil }
	)
	if cfg.FigureCacheDir != "" {
		store, err := figcache.OpenBadger(figcache.BadgerConfig{
			Path:   cfg.FigureCacheDir,
			TTL:    cfg.FigureCacheTTL,
			Logger: log.With("component", "figcache"),
		})
		if err != nil {
			return nil, fmt.Errorf("figure cache: %w", err)
		}
		cache, closeFn = store, store.Close
	}

	describer := figures.NewDescriber(client, figures.DefaultFilter(), cfg.VisionConcurrency, log)
	extractor := extract.New(client, extract.Config{
		Chunk:       chunker.Config{MaxChunkChars: cfg.MaxChunkChars},
		Concurrency: cfg.ChunkConcurrency,
	}, log)
	validator := grounding.NewValidator(client, grounding.Config{
		QuoteSimilarity: cfg.QuoteSimilarityThreshold,
		StatMatch:       cfg.StatMatchThreshold,
	}, log)
	controller := correction.NewController(validator, client, cfg.MaxCorrectionRounds, log)

	return &app{
		client: client,
		runner: pipeline.NewRunner(describer, cache, extractor, controller, log),
		close:  closeFn,
	}, nil
}
