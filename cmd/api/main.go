package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/api"
	"github.com/paygrid-dev/walletcore/internal/config"
	"github.com/paygrid-dev/walletcore/internal/executor"
	"github.com/paygrid-dev/walletcore/internal/ledger"
	"github.com/paygrid-dev/walletcore/internal/notify"
	"github.com/paygrid-dev/walletcore/internal/quote"
	"github.com/paygrid-dev/walletcore/internal/receiver"
	"github.com/paygrid-dev/walletcore/internal/resolver"
	"github.com/paygrid-dev/walletcore/internal/service"
	"github.com/paygrid-dev/walletcore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	var logger *zap.Logger
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	paymentStore, err := store.NewStore(cfg.DBSource)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer paymentStore.Close()

	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL: cfg.LedgerURL,
		Logger:  logger,
	})

	destinationResolver := resolver.New(resolver.Config{
		LocalHost: cfg.LedgerHost,
		LedgerURL: cfg.LedgerURL,
		Logger:    logger,
	})

	quoteEngine := quote.New(quote.Config{
		LocalLedger: cfg.LedgerHost,
		Timeout:     cfg.QuoteTimeout,
		Logger:      logger,
	})

	transferExecutor := executor.New(executor.Config{
		Ledger: ledgerClient,
		Expiry: cfg.TransferExpiry,
		Logger: logger,
	})

	receiverGenerator := receiver.New(receiver.Config{
		Users:      paymentStore,
		Payments:   paymentStore,
		Secret:     cfg.ReceiverSecret,
		AccountURI: destinationResolver.LocalAccountURI,
		Logger:     logger,
	})

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	notifier := notify.NewRedisPublisher(redisClient, logger)

	payments := service.New(service.Config{
		Resolver:  destinationResolver,
		Quotes:    quoteEngine,
		Executor:  transferExecutor,
		Store:     paymentStore,
		Receivers: receiverGenerator,
		Notifier:  notifier,
		Logger:    logger,
	})

	handler := api.NewHandler(payments, logger)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	handler.Register(apiV1)

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("ledger", cfg.LedgerURL))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
