package setup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/lonmstalker/advert-market-settlement/internal/config"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/cache"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/kafka"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/metrics"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/migrate"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/notifier"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/postgres/repository"
)

type Dependencies struct {
	Config       *config.SettlementConfig
	DB           *gorm.DB
	Redis        *redis.Client
	Registry     *prometheus.Registry
	Metrics      *metrics.SettlementMetrics
	Publisher    *kafka.KafkaPublisher
	Subscriber   *kafka.KafkaSubscriber
	Notifier     *notifier.TelegramNotifier
	Lock         *cache.RedisLock
	Cache        *cache.RedisBalanceCache
	Repositories *Repositories
}

type Repositories struct {
	TxManager  domain.TxManager
	LedgerRepo domain.LedgerRepository
	DealRepo   domain.DealRepository
	OutboxRepo domain.OutboxRepository
	TonTxRepo  domain.TonTransactionRepository
}

func InitializeDependencies(ctx context.Context, cfg *config.SettlementConfig) (*Dependencies, error) {
	db := postgres.MustInitDB(cfg)
	if err := migrate.RunMigrations(db, cfg.SettlementDB.MigrationsPath); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	lock, err := cache.NewRedisLock(redisClient)
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}

	kafkaCfg := kafka.KafkaConfig{
		Brokers:    cfg.KafkaService.Brokers,
		Username:   cfg.KafkaService.Username,
		Password:   cfg.KafkaService.Password,
		Mechanism:  cfg.KafkaService.Mechanism,
		TLSEnabled: cfg.KafkaService.TLSEnabled,
	}
	publisher, err := kafka.NewKafkaPublisher(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	subscriber, err := kafka.NewKafkaSubscriber(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka subscriber: %w", err)
	}

	var telegram *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		b, err := notifier.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			return nil, fmt.Errorf("telegram bot: %w", err)
		}
		telegram = notifier.NewTelegramNotifier(b)
	} else {
		slog.Warn("telegram bot token is empty, notifications go to kafka")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Dependencies{
		Config:       cfg,
		DB:           db,
		Redis:        redisClient,
		Registry:     registry,
		Metrics:      metrics.NewSettlementMetrics(registry),
		Publisher:    publisher,
		Subscriber:   subscriber,
		Notifier:     telegram,
		Lock:         lock,
		Cache:        cache.NewRedisBalanceCache(redisClient, cfg.Redis.BalanceCacheTTL),
		Repositories: &Repositories{
			TxManager:  postgres.NewTxManager(db),
			LedgerRepo: repository.NewDefaultLedgerRepository(db),
			DealRepo:   repository.NewDefaultDealRepository(db),
			OutboxRepo: repository.NewDefaultOutboxRepository(db),
			TonTxRepo:  repository.NewDefaultTonTransactionRepository(db),
		},
	}, nil
}

// Close releases broker and cache connections, then the database pool.
func (d *Dependencies) Close() {
	if err := d.Subscriber.Close(); err != nil {
		slog.Error("failed to close kafka subscriber", "error", err)
	}
	if err := d.Publisher.Close(); err != nil {
		slog.Error("failed to close kafka publisher", "error", err)
	}
	if err := d.Redis.Close(); err != nil {
		slog.Error("failed to close redis", "error", err)
	}
	if sqlDB, err := d.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
