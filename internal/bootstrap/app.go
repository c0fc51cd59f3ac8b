package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gopherai-docchat/internal/ai"
	appsvc "gopherai-docchat/internal/app"
	"gopherai-docchat/internal/cache"
	"gopherai-docchat/internal/config"
	"gopherai-docchat/internal/pkg/jwtutil"
	rabbitmqClient "gopherai-docchat/internal/platform/rabbitmq"
	redisClient "gopherai-docchat/internal/platform/redis"
	"gopherai-docchat/internal/repository"
)

type App struct {
	Config *config.Config
	Logger *zap.Logger

	Store   appsvc.ConversationStore
	Gateway *ai.Gateway
	Redis   *redis.Client
	MQConn  *amqp.Connection
	Chat    *appsvc.DocumentChatService

	StartedAt time.Time
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	app := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}

	generator, err := newGenerator(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	app.Gateway = ai.NewGateway(generator, cfg.LLM.SystemPrompt)

	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Redis = rdb
		app.Store = cache.NewConversationCache(rdb, cfg.Store.KeyPrefix, cfg.Session.TTL)
	default:
		app.Store = repository.NewConversationRepository()
	}

	var publisher appsvc.TurnPublisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			// turn events are optional; the service runs without them
			logger.Warn("rabbitmq unavailable, turn events disabled", zap.Error(err))
		} else {
			app.MQConn = conn
			publisher = rabbitmqClient.NewTurnPublisher(conn, cfg.RabbitMQ.Queue)
		}
	}

	tokens, err := jwtutil.NewSessionTokens(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("init session tokens failed: %w", err)
	}
	if cfg.Session.Secret == "" {
		logger.Warn("session secret not configured, tokens will not survive a restart")
	}

	app.Chat = appsvc.NewDocumentChatService(app.Store, app.Gateway, tokens, publisher, logger)

	logger.Info("app initialised",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", cfg.LLM.Model),
		zap.String("store", cfg.Store.Backend),
		zap.Bool("turn_events", publisher != nil),
	)
	return app, nil
}

func newGenerator(ctx context.Context, cfg config.LLMConfig) (ai.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		client, err := ai.NewOpenAICompatibleClient(ai.ChatConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("init openai client failed: %w", err)
		}
		return client, nil
	default:
		client, err := ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("init gemini client failed: %w", err)
		}
		return client, nil
	}
}

func (a *App) Close() error {
	var errs []error
	if a.Gateway != nil {
		if err := a.Gateway.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
