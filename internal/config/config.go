package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource       string
	Port           string
	Env            string
	LedgerHost     string
	LedgerURL      string
	RedisAddr      string
	ReceiverSecret string
	QuoteTimeout   time.Duration
	TransferExpiry time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	ledgerURL := os.Getenv("LEDGER_URL")
	if ledgerURL == "" {
		return nil, fmt.Errorf("LEDGER_URL environment variable is required")
	}

	receiverSecret := os.Getenv("RECEIVER_SECRET")
	if receiverSecret == "" {
		return nil, fmt.Errorf("RECEIVER_SECRET environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	ledgerHost := os.Getenv("LEDGER_HOST")
	if ledgerHost == "" {
		ledgerHost = "wallet.example"
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	quoteTimeout := 5 * time.Second
	if v := os.Getenv("QUOTE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid QUOTE_TIMEOUT: %w", err)
		}
		quoteTimeout = d
	}

	transferExpiry := 10 * time.Minute
	if v := os.Getenv("TRANSFER_EXPIRY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TRANSFER_EXPIRY: %w", err)
		}
		transferExpiry = d
	}

	return &Config{
		DBSource:       dbSource,
		Port:           port,
		Env:            env,
		LedgerHost:     ledgerHost,
		LedgerURL:      ledgerURL,
		RedisAddr:      redisAddr,
		ReceiverSecret: receiverSecret,
		QuoteTimeout:   quoteTimeout,
		TransferExpiry: transferExpiry,
	}, nil
}
