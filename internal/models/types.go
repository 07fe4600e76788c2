package models

import (
	"time"

	"github.com/google/uuid"
)

// DestinationType classifies where a payee's account lives.
type DestinationType string

const (
	DestinationLocal  DestinationType = "local"
	DestinationRemote DestinationType = "remote"
)

// ResolvedDestination is the normalized form of a user-supplied destination
// string. Built once per request, never persisted.
type ResolvedDestination struct {
	Type       DestinationType
	Username   string
	LedgerHost string
	AccountURI string
	// Remote-only endpoints discovered via webfinger.
	QuoteURL    string
	ReceiverURL string
}

// QuoteRequest fixes exactly one side of the amount pair.
type QuoteRequest struct {
	Destination       ResolvedDestination
	SourceAmount      string
	DestinationAmount string
}

// Quote is an advisory counterpart-amount computation. It reserves nothing
// and carries no expiry; callers re-quote if significant time has passed.
type Quote struct {
	SourceAmount      string `json:"source_amount"`
	DestinationAmount string `json:"destination_amount"`
	SourceLedger      string `json:"source_ledger"`
	DestinationLedger string `json:"destination_ledger"`
	ConnectorFee      string `json:"connector_fee"`
	Hops              int    `json:"hops"`
}

// Payment states. Success and failed are terminal.
const (
	StatePending = "pending"
	StateSuccess = "success"
	StateFailed  = "failed"
)

// Payment is the durable record of a payment attempt. Rows are keyed by
// ExecutionCondition: both the sender's execute path and the receiver's
// request-setup path write through the same condition-keyed upsert, so one
// underlying transfer can never produce two rows.
type Payment struct {
	ID                 uuid.UUID  `json:"id"`
	SourceUser         string     `json:"source_user,omitempty"`
	DestinationAccount string     `json:"destination_account"`
	SourceAmount       string     `json:"source_amount,omitempty"`
	DestinationAmount  string     `json:"destination_amount,omitempty"`
	TransferReference  string     `json:"transfer_reference,omitempty"`
	ExecutionCondition string     `json:"execution_condition"`
	Message            string     `json:"message,omitempty"`
	State              string     `json:"state"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// PaymentFields is a candidate field set submitted to the record store.
// Empty strings mean "leave the stored value alone"; the store merges rather
// than overwrites.
type PaymentFields struct {
	ID                 uuid.UUID
	SourceUser         string
	DestinationAccount string
	SourceAmount       string
	DestinationAmount  string
	TransferReference  string
	Message            string
	State              string
	CompletedAt        *time.Time
}

// PaymentPage is one page of a user's payment history.
type PaymentPage struct {
	Rows       []Payment `json:"rows"`
	TotalCount int       `json:"total_count"`
	TotalPages int       `json:"total_pages"`
	Page       int       `json:"page"`
}

// User is a local wallet account holder.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ReceiverRequest is what the receiver-side setup hands back to a prospective
// sender: pay AccountURI under Condition and the pending row completes.
type ReceiverRequest struct {
	PaymentID  uuid.UUID `json:"payment_id"`
	AccountURI string    `json:"account_uri"`
	Amount     string    `json:"amount"`
	Condition  string    `json:"condition"`
}
