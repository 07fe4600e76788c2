package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidAccount    = errors.New("invalid ledger account")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Transfer is the ledger's view of a (possibly held) transfer.
type Transfer struct {
	ID                 string    `json:"id"`
	DebitAccount       string    `json:"debit_account"`
	CreditAccount      string    `json:"credit_account"`
	Amount             string    `json:"amount"`
	ExecutionCondition string    `json:"execution_condition"`
	State              string    `json:"state"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// PrepareRequest describes a hold: move Amount from DebitAccount into escrow,
// releasable only by the preimage of Condition, cancelled by the ledger itself
// at ExpiresAt if never fulfilled.
type PrepareRequest struct {
	DebitAccount  string    `json:"debit_account"`
	CreditAccount string    `json:"credit_account"`
	Amount        string    `json:"amount"`
	Condition     string    `json:"execution_condition"`
	Memo          string    `json:"memo,omitempty"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Ledger is the escrow collaborator. PrepareTransfer creates a hold,
// FulfillTransfer finalizes it, ExecuteTransfer does both in one round trip
// for same-ledger payments. The ledger owns hold expiry; callers never cancel.
type Ledger interface {
	PrepareTransfer(ctx context.Context, req PrepareRequest) (Transfer, error)
	FulfillTransfer(ctx context.Context, transferID, fulfillment string) error
	ExecuteTransfer(ctx context.Context, req PrepareRequest, fulfillment string) (Transfer, error)
	LookupByCondition(ctx context.Context, condition string) (*Transfer, error)
}
