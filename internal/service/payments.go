package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/executor"
	"github.com/paygrid-dev/walletcore/internal/models"
	"github.com/paygrid-dev/walletcore/internal/notify"
)

var (
	// ErrUnknownCondition means a sender tried to pay a receiver request this
	// wallet never issued (no row for the supplied condition).
	ErrUnknownCondition = errors.New("no payment request for condition")

	// ErrConditionSpent means the condition's payment request already reached a
	// failed terminal state. Its record can never flip to success, so executing
	// against it would move funds the record cannot acknowledge.
	ErrConditionSpent = errors.New("payment request already failed for condition")
)

// Resolver normalizes destination strings.
type Resolver interface {
	Resolve(ctx context.Context, destination string) (models.ResolvedDestination, error)
	LocalAccountURI(username string) string
}

// QuoteEngine computes counterpart amounts.
type QuoteEngine interface {
	Quote(ctx context.Context, req models.QuoteRequest) (models.Quote, error)
}

// TransferExecutor runs the condition-gated two-phase protocol.
type TransferExecutor interface {
	Execute(ctx context.Context, req executor.Request) (executor.ExecutedTransfer, error)
}

// PaymentStore is the durable record of payment attempts.
type PaymentStore interface {
	UpsertByCondition(ctx context.Context, condition string, fields models.PaymentFields) (models.Payment, error)
	GetByCondition(ctx context.Context, condition string) (*models.Payment, error)
	ListByUser(ctx context.Context, username, accountURI string, page, limit int) (models.PaymentPage, error)
}

// ReceiverGenerator issues receiver-side payment requests and re-derives
// their fulfillment secrets.
type ReceiverGenerator interface {
	CreateRequest(ctx context.Context, username, amount, senderIdentifier, memo string) (models.ReceiverRequest, error)
	Fulfillment(paymentID uuid.UUID) string
}

// PaymentService sequences one payment request: resolve, quote, execute,
// record, announce. Within a request the order is fixed: the transfer must
// finalize before the record upsert, and the upsert before any notification.
// Across requests the store's condition-keyed upsert is the only coordination.
type PaymentService struct {
	resolver  Resolver
	quotes    QuoteEngine
	executor  TransferExecutor
	store     PaymentStore
	receivers ReceiverGenerator
	notifier  notify.Publisher
	logger    *zap.Logger
}

type Config struct {
	Resolver  Resolver
	Quotes    QuoteEngine
	Executor  TransferExecutor
	Store     PaymentStore
	Receivers ReceiverGenerator
	Notifier  notify.Publisher
	Logger    *zap.Logger
}

func New(cfg Config) *PaymentService {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		resolver:  cfg.Resolver,
		quotes:    cfg.Quotes,
		executor:  cfg.Executor,
		store:     cfg.Store,
		receivers: cfg.Receivers,
		notifier:  notifier,
		logger:    logger,
	}
}

type QuoteParams struct {
	Destination       string
	SourceAmount      string
	DestinationAmount string
}

// Quote resolves the destination and computes the counterpart amount.
// Advisory only; nothing is reserved.
func (s *PaymentService) Quote(ctx context.Context, params QuoteParams) (models.Quote, error) {
	dest, err := s.resolver.Resolve(ctx, params.Destination)
	if err != nil {
		return models.Quote{}, err
	}
	return s.quotes.Quote(ctx, models.QuoteRequest{
		Destination:       dest,
		SourceAmount:      params.SourceAmount,
		DestinationAmount: params.DestinationAmount,
	})
}

type ExecuteParams struct {
	PaymentID         uuid.UUID
	SourceUser        string
	Destination       string
	SourceAmount      string
	DestinationAmount string
	SourceMemo        string
	DestinationMemo   string
	Message           string
	// Condition of a pre-issued receiver request, when paying one.
	Condition string
}

// Execute runs the full payment path and returns the recorded payment.
func (s *PaymentService) Execute(ctx context.Context, params ExecuteParams) (models.Payment, error) {
	dest, err := s.resolver.Resolve(ctx, params.Destination)
	if err != nil {
		return models.Payment{}, err
	}

	sourceAmount, destinationAmount := params.SourceAmount, params.DestinationAmount
	if sourceAmount == "" || destinationAmount == "" {
		quote, err := s.quotes.Quote(ctx, models.QuoteRequest{
			Destination:       dest,
			SourceAmount:      sourceAmount,
			DestinationAmount: destinationAmount,
		})
		if err != nil {
			return models.Payment{}, err
		}
		sourceAmount, destinationAmount = quote.SourceAmount, quote.DestinationAmount
	}

	execReq := executor.Request{
		SourceAccount:     s.resolver.LocalAccountURI(params.SourceUser),
		Destination:       dest,
		SourceAmount:      sourceAmount,
		DestinationAmount: destinationAmount,
		SourceMemo:        params.SourceMemo,
		DestinationMemo:   params.DestinationMemo,
		SenderIdentifier:  params.SourceUser,
		Condition:         params.Condition,
	}

	paymentID := params.PaymentID
	if params.Condition != "" {
		existing, err := s.store.GetByCondition(ctx, params.Condition)
		if err != nil {
			return models.Payment{}, err
		}
		if existing != nil && existing.State == models.StateSuccess {
			// Duplicate submit or re-delivered prepare/fulfill pair. The
			// transfer already finalized; hand back the recorded row.
			return *existing, nil
		}
		if existing != nil && existing.State == models.StateFailed {
			return models.Payment{}, fmt.Errorf("%w: %s", ErrConditionSpent, params.Condition)
		}
		if dest.Type == models.DestinationLocal {
			// Local receiver requests were issued by this wallet, so the
			// fulfillment is re-derivable from the pending row's id.
			if existing == nil {
				return models.Payment{}, fmt.Errorf("%w: %s", ErrUnknownCondition, params.Condition)
			}
			execReq.Fulfillment = s.receivers.Fulfillment(existing.ID)
		}
		if existing != nil {
			paymentID = existing.ID
		}
	}

	executed, err := s.executor.Execute(ctx, execReq)
	if err != nil {
		return models.Payment{}, s.executeFailed(ctx, params, err)
	}

	now := time.Now().UTC()
	payment, err := s.store.UpsertByCondition(ctx, executed.ExecutionCondition, models.PaymentFields{
		ID:                 paymentID,
		SourceUser:         params.SourceUser,
		DestinationAccount: dest.AccountURI,
		SourceAmount:       sourceAmount,
		DestinationAmount:  destinationAmount,
		TransferReference:  executed.TransferReference,
		Message:            params.Message,
		State:              models.StateSuccess,
		CompletedAt:        &now,
	})
	if err != nil {
		// Funds moved but the record write failed. Log everything needed to
		// reconcile the row by hand; the caller sees the failure.
		s.logger.Error("payment record write failed after fulfillment",
			zap.String("condition", executed.ExecutionCondition),
			zap.String("transfer", executed.TransferReference),
			zap.String("source_user", params.SourceUser),
			zap.String("destination", dest.AccountURI),
			zap.Error(err))
		return models.Payment{}, err
	}

	s.notifier.Publish(ctx, params.SourceUser, payment)
	if dest.Type == models.DestinationLocal && dest.Username != params.SourceUser {
		s.notifier.Publish(ctx, dest.Username, payment)
	}
	return payment, nil
}

// executeFailed records the outcome of a failed execution. Prepare-time
// failures (insufficient funds, bad account) leave no hold and no new row;
// a pre-issued receiver request stays pending so the sender can retry.
// Failures after the hold was placed mark the request's row failed, since
// its condition is now burned on an expiring hold.
func (s *PaymentService) executeFailed(ctx context.Context, params ExecuteParams, execErr error) error {
	if params.Condition != "" && errors.Is(execErr, executor.ErrRemoteRegistration) {
		// Only an already-recorded request flips to failed; a failure must
		// never manufacture a row of its own.
		existing, err := s.store.GetByCondition(ctx, params.Condition)
		if err == nil && existing != nil {
			if _, err := s.store.UpsertByCondition(ctx, params.Condition, models.PaymentFields{
				State: models.StateFailed,
			}); err != nil {
				s.logger.Error("failed to mark payment failed",
					zap.String("condition", params.Condition), zap.Error(err))
			}
		}
	}

	s.logger.Warn("payment execution failed",
		zap.String("condition", params.Condition),
		zap.String("source_user", params.SourceUser),
		zap.String("destination", params.Destination),
		zap.Error(execErr))
	return execErr
}

// CreateReceiverRequest sets up a quote/condition pair an external sender can
// pay without the receiver pre-creating a full payment.
func (s *PaymentService) CreateReceiverRequest(ctx context.Context, username, amount, senderIdentifier, memo string) (models.ReceiverRequest, error) {
	return s.receivers.CreateRequest(ctx, username, amount, senderIdentifier, memo)
}

// ListPayments pages through payments the user sent or received.
func (s *PaymentService) ListPayments(ctx context.Context, username string, page, limit int) (models.PaymentPage, error) {
	return s.store.ListByUser(ctx, username, s.resolver.LocalAccountURI(username), page, limit)
}
