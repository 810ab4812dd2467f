package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Aidin1998/tickbook/internal/trading/config"
	"github.com/Aidin1998/tickbook/internal/trading/engine"
	"github.com/Aidin1998/tickbook/internal/trading/handlers"
	"github.com/Aidin1998/tickbook/internal/trading/messaging"
	"github.com/Aidin1998/tickbook/internal/trading/model"
	"github.com/Aidin1998/tickbook/internal/trading/orderbook"
	"github.com/Aidin1998/tickbook/internal/trading/repository"
	"github.com/Aidin1998/tickbook/pkg/logger"
	"github.com/Aidin1998/tickbook/pkg/metrics"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	configPath := os.Getenv("TICKBOOK_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	recorder := metrics.NewRecorder(prometheus.DefaultRegisterer)

	store, err := repository.Open(cfg.Snapshot, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open snapshot store", zap.String("driver", cfg.Snapshot.Driver), zap.Error(err))
	}
	if store != nil {
		defer store.Close()
	}

	clock := model.SystemClock{}
	book := orderbook.New(cfg.Market,
		orderbook.WithClock(clock),
		orderbook.WithLogger(zapLogger),
		orderbook.WithObserver(recorder),
		orderbook.WithTradeHistory(cfg.Book.TradeHistory),
	)
	settings := engine.DefaultSettings()
	settings.ExpiryInterval = cfg.Book.ExpiryInterval
	settings.SnapshotInterval = cfg.Snapshot.Interval
	settings.PurgeFilled = cfg.Book.PurgeFilled
	eng := engine.NewEngine(book,
		engine.WithClock(clock),
		engine.WithStore(store),
		engine.WithCheckpointObserver(recorder),
		engine.WithLogger(zapLogger),
		engine.WithSettings(settings),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	restored, err := eng.Restore(ctx)
	if err != nil {
		zapLogger.Fatal("Failed to restore order book", zap.Error(err))
	}
	zapLogger.Info("Order book ready", zap.Stringer("market", cfg.Market), zap.Int("restored", restored))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := eng.Run(ctx); err != nil {
			zapLogger.Error("Engine stopped with error", zap.Error(err))
		}
	}()

	if cfg.Kafka.Enabled {
		consumer := messaging.NewConsumer(messaging.NewKafkaReader(cfg.Kafka), eng, cfg.Market,
			cfg.Kafka.GroupID, recorder, zapLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				zapLogger.Error("Consumer stopped with error", zap.Error(err))
				stop()
			}
		}()
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		router := handlers.NewRouter(handlers.NewBookHandler(eng, zapLogger), prometheus.DefaultGatherer, zapLogger,
			cfg.HTTP.AllowOrigins...)
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			zapLogger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLogger.Error("HTTP server failed", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	zapLogger.Info("Shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		cancel()
	}
	wg.Wait()
	zapLogger.Info("Stopped")
}
