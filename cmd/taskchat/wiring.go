package main

import (
	"context"
	"fmt"

	"hound-taskchat/internal/chat"
	"hound-taskchat/internal/config"
	"hound-taskchat/internal/conversation"
	"hound-taskchat/internal/events"
	"hound-taskchat/internal/intent"
	"hound-taskchat/internal/llm"
	"hound-taskchat/internal/store"
	"hound-taskchat/shared/logging"
)

// app holds the long-lived components built from a Config.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	backend   store.Backend
	states    *conversation.Store
	publisher *events.Publisher
	engine    *chat.Engine
}

func newLogger(cfg *config.Config) *logging.Logger {
	if cfg.Debug {
		return logging.NewDebug("taskchat")
	}
	return logging.New("taskchat")
}

// buildApp wires storage, the interpreter and the engine. withEvents
// connects the task event publisher when RABBITMQ_URL is set.
func buildApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, withEvents bool) (*app, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, backend: backend}

	rules := intent.NewRuleExtractor(nil)
	adapter := llm.NewAdapter(llm.Config{
		Pool:      llm.NewKeyPool(cfg.GeminiKeys, cfg.GeminiKeyCooldown, nil),
		Generator: llm.NewGeminiGenerator(),
		Model:     cfg.GeminiModel,
		Rules:     rules,
		Logger:    logger,
		Disabled:  cfg.LLMMock,
	})
	a.states = conversation.NewStore(cfg.ConversationTTL, cfg.ConversationMaxKeys, nil)

	engineCfg := chat.Config{
		Store:           backend,
		Interpreter:     adapter,
		States:          a.states,
		Rules:           rules,
		Logger:          logger,
		DefaultDialect:  cfg.DefaultDialect,
		DefaultLocation: cfg.DefaultLocation,
		Debug:           cfg.Debug,
	}
	if withEvents && cfg.RabbitMQURL != "" {
		pub, err := events.NewPublisher(cfg.RabbitMQURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.publisher = pub
		engineCfg.Events = pub
		logger.Info("Connected to RabbitMQ")
	}
	a.engine = chat.New(engineCfg)
	return a, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		return store.NewMemory(nil), nil
	}
	db, err := store.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	s := store.NewSQL(db, cfg.DatabaseDriver, nil)
	if err := s.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to prepare schema: %w", err)
	}
	return s, nil
}

func (a *app) close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
}
