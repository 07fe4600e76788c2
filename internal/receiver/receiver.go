package receiver

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/executor"
	"github.com/paygrid-dev/walletcore/internal/models"
	"github.com/paygrid-dev/walletcore/internal/store"
)

var (
	ErrUnknownReceiver = errors.New("unknown receiver")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// UserLookup resolves local usernames.
type UserLookup interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
}

// PaymentWriter is the record store's single write path.
type PaymentWriter interface {
	UpsertByCondition(ctx context.Context, condition string, fields models.PaymentFields) (models.Payment, error)
}

// Generator sets up receiver-side payment requests: a pending Payment keyed by
// a fresh condition, with no source user bound. The eventual sender's execute
// call merges into the same row through the condition-keyed upsert.
//
// Fulfillments are not stored. They are derived as HMAC(secret, paymentID),
// so the wallet can re-produce the secret for any request it issued without
// keeping per-request state.
type Generator struct {
	users      UserLookup
	payments   PaymentWriter
	secret     []byte
	accountURI func(username string) string
	logger     *zap.Logger
}

type Config struct {
	Users    UserLookup
	Payments PaymentWriter
	Secret   string
	// Maps a local username to its ledger account URI.
	AccountURI func(username string) string
	Logger     *zap.Logger
}

func New(cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		users:      cfg.Users,
		payments:   cfg.Payments,
		secret:     []byte(cfg.Secret),
		accountURI: cfg.AccountURI,
		logger:     logger,
	}
}

// CreateRequest validates the receiver and amount, generates a condition, and
// records the pending row. A failed insert is returned to the caller and
// leaves nothing behind; the caller retries the whole request and gets a
// fresh condition.
func (g *Generator) CreateRequest(ctx context.Context, username, amount, senderIdentifier, memo string) (models.ReceiverRequest, error) {
	parsed, err := decimal.NewFromString(amount)
	if err != nil || !parsed.IsPositive() {
		return models.ReceiverRequest{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	user, err := g.users.GetUser(ctx, username)
	if errors.Is(err, store.ErrUserNotFound) {
		return models.ReceiverRequest{}, fmt.Errorf("%w: %s", ErrUnknownReceiver, username)
	}
	if err != nil {
		return models.ReceiverRequest{}, fmt.Errorf("lookup receiver %s: %w", username, err)
	}

	paymentID := uuid.New()
	fulfillment := g.Fulfillment(paymentID)
	condition := executor.ConditionFor(fulfillment)
	account := g.accountURI(user.Username)

	payment, err := g.payments.UpsertByCondition(ctx, condition, models.PaymentFields{
		ID:                 paymentID,
		DestinationAccount: account,
		DestinationAmount:  parsed.String(),
		Message:            memo,
		State:              models.StatePending,
	})
	if err != nil {
		g.logger.Error("receiver request setup failed",
			zap.String("condition", condition),
			zap.String("receiver", username),
			zap.String("sender", senderIdentifier),
			zap.Error(err))
		return models.ReceiverRequest{}, fmt.Errorf("create receiver request: %w", err)
	}

	return models.ReceiverRequest{
		PaymentID:  payment.ID,
		AccountURI: account,
		Amount:     parsed.String(),
		Condition:  condition,
	}, nil
}

// Fulfillment re-derives the secret for a payment this wallet issued.
func (g *Generator) Fulfillment(paymentID uuid.UUID) string {
	mac := hmac.New(sha256.New, g.secret)
	mac.Write(paymentID[:])
	return hex.EncodeToString(mac.Sum(nil))
}
