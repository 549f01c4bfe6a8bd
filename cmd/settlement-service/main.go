package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lonmstalker/advert-market-settlement/internal/app/background"
	"github.com/lonmstalker/advert-market-settlement/internal/app/setup"
	"github.com/lonmstalker/advert-market-settlement/internal/config"
	deliveryhttp "github.com/lonmstalker/advert-market-settlement/internal/delivery/http"
	"github.com/lonmstalker/advert-market-settlement/internal/delivery/http/handlers"
	"github.com/lonmstalker/advert-market-settlement/internal/delivery/kafkaapi"
	"github.com/lonmstalker/advert-market-settlement/internal/infrastructure/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}
	// Reading config
	cfg := config.MustLoad()
	logger.New(cfg.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setup.InitializeDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	defer deps.Close()

	uc, err := setup.InitializeUseCases(deps)
	if err != nil {
		log.Fatalf("failed to init usecases: %v", err)
	}

	// Schedulers and outbox poller
	tasks := background.NewBackgroundTasks(deps.Lock, deps.Metrics,
		background.SettlementJobs(cfg, uc.OutboxPoller, uc.DealUsecase, uc.SweepUsecase)...)
	tasks.StartAll(ctx)

	// Inbound deal triggers
	listener := kafkaapi.NewTriggerListener(deps.Subscriber, kafkaapi.NewDealDispatcher(uc.DealUsecase), kafkaapi.ListenerConfig{
		Topic:           cfg.KafkaService.TriggersTopic,
		GroupID:         cfg.KafkaService.ConsumerGroup,
		Workers:         cfg.KafkaService.ListenerWorkers,
		ConflictRetries: cfg.KafkaService.ConflictRetries,
		RetryBackoff:    cfg.KafkaService.RetryBackoff,
	}, deps.Metrics)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		if err := listener.Run(ctx); err != nil {
			slog.Error("trigger listener stopped", "error", err)
			stop()
		}
	}()

	router := deliveryhttp.NewRouter(handlers.NewLedgerHandler(uc.LedgerUsecase), deps.Registry, map[string]deliveryhttp.Pinger{
		"postgres": func(ctx context.Context) error {
			sqlDB, err := deps.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		},
	})
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("http server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	tasks.Wait()
	<-listenerDone
}
