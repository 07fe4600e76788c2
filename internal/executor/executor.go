package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/paygrid-dev/walletcore/internal/ledger"
	"github.com/paygrid-dev/walletcore/internal/models"
)

// ErrRemoteRegistration means the destination ledger never acknowledged the
// condition, so the local hold was left to expire unfulfilled.
var ErrRemoteRegistration = errors.New("remote leg registration failed")

// Request carries everything needed to move value under a condition.
type Request struct {
	SourceAccount     string
	Destination       models.ResolvedDestination
	SourceAmount      string
	DestinationAmount string
	SourceMemo        string
	DestinationMemo   string
	SenderIdentifier  string
	// Pre-agreed condition from a receiver request; when set, Fulfillment
	// must be derivable by whoever finalizes the transfer.
	Condition   string
	Fulfillment string
}

// ExecutedTransfer is the proof of a finalized transfer.
type ExecutedTransfer struct {
	TransferReference  string
	ExecutionCondition string
	Fulfillment        string
}

// Executor runs the two-phase condition-gated protocol: hold funds on the
// source ledger under a condition, then finalize once the fulfillment is
// presented. It never writes payment records; callers persist the result.
type Executor struct {
	ledger ledger.Ledger
	client *http.Client
	expiry time.Duration
	logger *zap.Logger
}

type Config struct {
	Ledger ledger.Ledger
	Client *http.Client
	// How long a hold may sit unfulfilled before the ledger cancels it.
	Expiry time.Duration
	Logger *zap.Logger
}

func New(cfg Config) *Executor {
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 10 * time.Minute
	}
	return &Executor{ledger: cfg.Ledger, client: client, expiry: expiry, logger: logger}
}

// Execute moves req.SourceAmount from the source account to the destination.
// Local destinations settle in a single atomic ledger call; remote ones
// prepare locally, register the condition with the destination's receiver
// endpoint, and fulfill with the secret the receiver hands back. If the
// remote leg cannot be registered the local hold is never fulfilled and the
// ledger's own expiry cancels it.
func (e *Executor) Execute(ctx context.Context, req Request) (ExecutedTransfer, error) {
	condition := req.Condition
	fulfillment := req.Fulfillment
	if condition == "" {
		var err error
		condition, fulfillment, err = NewConditionPair()
		if err != nil {
			return ExecutedTransfer{}, err
		}
	}

	prepare := ledger.PrepareRequest{
		DebitAccount:  req.SourceAccount,
		CreditAccount: req.Destination.AccountURI,
		Amount:        req.SourceAmount,
		Condition:     condition,
		Memo:          req.SourceMemo,
		ExpiresAt:     time.Now().Add(e.expiry),
	}

	if req.Destination.Type == models.DestinationLocal {
		if fulfillment == "" {
			return ExecutedTransfer{}, fmt.Errorf("no fulfillment available for condition %s", condition)
		}
		transfer, err := e.ledger.ExecuteTransfer(ctx, prepare, fulfillment)
		if err != nil {
			return ExecutedTransfer{}, fmt.Errorf("local transfer: %w", err)
		}
		return ExecutedTransfer{
			TransferReference:  transfer.ID,
			ExecutionCondition: condition,
			Fulfillment:        fulfillment,
		}, nil
	}

	// A pre-agreed condition may already have a hold from a concurrent or
	// earlier attempt; reuse it rather than escrowing the amount twice.
	var transfer ledger.Transfer
	if req.Condition != "" {
		held, err := e.ledger.LookupByCondition(ctx, condition)
		if err != nil {
			e.logger.Warn("hold lookup failed",
				zap.String("condition", condition), zap.Error(err))
		} else if held != nil {
			transfer = *held
		}
	}
	if transfer.ID == "" {
		var err error
		transfer, err = e.ledger.PrepareTransfer(ctx, prepare)
		if err != nil {
			return ExecutedTransfer{}, fmt.Errorf("prepare: %w", err)
		}
	}

	remoteFulfillment, err := e.registerRemote(ctx, req, condition, transfer.ID)
	if err != nil {
		e.logger.Warn("remote registration failed, hold left to expire",
			zap.String("condition", condition),
			zap.String("transfer", transfer.ID),
			zap.String("destination", req.Destination.AccountURI),
			zap.Error(err))
		return ExecutedTransfer{}, err
	}
	if fulfillment == "" {
		fulfillment = remoteFulfillment
	}
	if fulfillment == "" {
		// Registration acked but the receiver never confirmed delivery with a
		// secret, and we do not hold one either. Leave the hold to expire.
		return ExecutedTransfer{}, fmt.Errorf("%w: no fulfillment for condition %s", ErrRemoteRegistration, condition)
	}

	if err := e.ledger.FulfillTransfer(ctx, transfer.ID, fulfillment); err != nil {
		return ExecutedTransfer{}, fmt.Errorf("fulfill: %w", err)
	}

	return ExecutedTransfer{
		TransferReference:  transfer.ID,
		ExecutionCondition: condition,
		Fulfillment:        fulfillment,
	}, nil
}

type remoteRegistration struct {
	Condition         string `json:"condition"`
	Amount            string `json:"amount"`
	TransferReference string `json:"transfer_reference"`
	SenderIdentifier  string `json:"sender_identifier,omitempty"`
	Memo              string `json:"memo,omitempty"`
}

type remoteConfirmation struct {
	Fulfillment string `json:"fulfillment"`
}

// registerRemote announces the prepared condition to the destination's
// receiver endpoint and waits for delivery confirmation, which carries the
// fulfillment that releases the local hold.
func (e *Executor) registerRemote(ctx context.Context, req Request, condition, transferID string) (string, error) {
	if req.Destination.ReceiverURL == "" {
		return "", fmt.Errorf("%w: destination has no receiver endpoint", ErrRemoteRegistration)
	}

	body, err := json.Marshal(remoteRegistration{
		Condition:         condition,
		Amount:            req.DestinationAmount,
		TransferReference: transferID,
		SenderIdentifier:  req.SenderIdentifier,
		Memo:              req.DestinationMemo,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteRegistration, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Destination.ReceiverURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteRegistration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRemoteRegistration, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: receiver endpoint returned status %d", ErrRemoteRegistration, resp.StatusCode)
	}

	// An empty fulfillment is a plain acknowledgement; the sender may already
	// hold the secret. A non-empty one must actually open the condition.
	var confirmation remoteConfirmation
	if err := json.NewDecoder(resp.Body).Decode(&confirmation); err != nil {
		return "", fmt.Errorf("%w: malformed confirmation: %v", ErrRemoteRegistration, err)
	}
	if confirmation.Fulfillment != "" && ConditionFor(confirmation.Fulfillment) != condition {
		return "", fmt.Errorf("%w: fulfillment does not match condition", ErrRemoteRegistration)
	}
	return confirmation.Fulfillment, nil
}
