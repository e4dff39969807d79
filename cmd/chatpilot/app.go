package main

import (
	"fmt"
	"os"
	"time"

	"github.com/user/chatpilot/internal/config"
	"github.com/user/chatpilot/internal/delivery"
	"github.com/user/chatpilot/internal/insight"
	"github.com/user/chatpilot/internal/pipeline"
	"github.com/user/chatpilot/internal/state"
	"github.com/user/chatpilot/internal/transport"
	"github.com/user/chatpilot/pkg/llm"
	"github.com/user/chatpilot/pkg/llm/anthropic"
	"github.com/user/chatpilot/pkg/llm/openai"
)

// app is the set of collaborators every command works with.
type app struct {
	cfg     *config.Config
	store   *state.Store
	bridge  *transport.Bridge
	mux     *transport.Mux
	insight *insight.Provider
}

func newApp(cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := state.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	provider, err := newProvider(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	bridge := transport.NewBridge(cfg.WhatsApp.BridgeURL, time.Duration(cfg.WhatsApp.TimeoutSeconds)*time.Second).
		WithRetry(transport.DefaultRetryPolicy())

	return &app{
		cfg:     cfg,
		store:   store,
		bridge:  bridge,
		mux:     transport.NewMux(bridge),
		insight: insight.New(provider, cfg.LLM.Model, cfg.LLM.MaxContextTokens),
	}, nil
}

func newProvider(cfg *config.Config) (llm.Provider, error) {
	lc := &llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	}
	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.New(lc), nil
	case "openai":
		return openai.New(lc), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Delivery = delivery.Options{
		ChunkSize:       cfg.Delivery.ChunkSize,
		InterChunkDelay: time.Duration(cfg.Delivery.InterChunkDelayMS) * time.Millisecond,
		SimulateTyping:  cfg.Delivery.SimulateTyping,
	}
	if cfg.Pipeline.BatchMessageLimit > 0 {
		pc.BatchMessageLimit = cfg.Pipeline.BatchMessageLimit
	}
	if cfg.Pipeline.RealtimeIntervalSeconds > 0 {
		pc.RealtimeInterval = time.Duration(cfg.Pipeline.RealtimeIntervalSeconds) * time.Second
	}
	if cfg.Pipeline.RealtimeChatLimit > 0 {
		pc.RealtimeChatLimit = cfg.Pipeline.RealtimeChatLimit
	}
	if cfg.Pipeline.RealtimeMessageLimit > 0 {
		pc.RealtimeMessageLimit = cfg.Pipeline.RealtimeMessageLimit
	}
	return pc
}

func (a *app) orchestrator(opts ...pipeline.Option) *pipeline.Orchestrator {
	opts = append([]pipeline.Option{pipeline.WithConfig(pipelineConfig(a.cfg))}, opts...)
	return pipeline.New(a.mux, a.insight, a.store, opts...)
}

func (a *app) Close() error {
	return a.store.Close()
}
