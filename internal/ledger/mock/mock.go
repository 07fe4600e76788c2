// Package mock provides an in-memory Ledger for tests.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/paygrid-dev/walletcore/internal/ledger"
)

type Ledger struct {
	mu     sync.Mutex
	nextID int

	// Holds are prepared, not yet finalized transfers by id.
	Holds map[string]ledger.Transfer
	// Fulfilled maps finalized transfer ids to the fulfillment presented.
	Fulfilled map[string]string

	PrepareErr error
	ExecuteErr error
	FulfillErr error
}

var _ ledger.Ledger = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{
		Holds:     map[string]ledger.Transfer{},
		Fulfilled: map[string]string{},
	}
}

func (m *Ledger) PrepareTransfer(_ context.Context, req ledger.PrepareRequest) (ledger.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PrepareErr != nil {
		return ledger.Transfer{}, m.PrepareErr
	}
	return m.prepareLocked(req), nil
}

func (m *Ledger) FulfillTransfer(_ context.Context, transferID, fulfillment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FulfillErr != nil {
		return m.FulfillErr
	}
	return m.fulfillLocked(transferID, fulfillment)
}

func (m *Ledger) ExecuteTransfer(_ context.Context, req ledger.PrepareRequest, fulfillment string) (ledger.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExecuteErr != nil {
		return ledger.Transfer{}, m.ExecuteErr
	}
	transfer := m.prepareLocked(req)
	if err := m.fulfillLocked(transfer.ID, fulfillment); err != nil {
		delete(m.Holds, transfer.ID)
		return ledger.Transfer{}, err
	}
	transfer.State = "executed"
	return transfer, nil
}

func (m *Ledger) LookupByCondition(_ context.Context, condition string) (*ledger.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, hold := range m.Holds {
		if hold.ExecutionCondition == condition {
			return &hold, nil
		}
	}
	return nil, nil
}

func (m *Ledger) prepareLocked(req ledger.PrepareRequest) ledger.Transfer {
	m.nextID++
	transfer := ledger.Transfer{
		ID:                 fmt.Sprintf("transfer-%d", m.nextID),
		DebitAccount:       req.DebitAccount,
		CreditAccount:      req.CreditAccount,
		Amount:             req.Amount,
		ExecutionCondition: req.Condition,
		State:              "prepared",
		ExpiresAt:          req.ExpiresAt,
	}
	m.Holds[transfer.ID] = transfer
	return transfer
}

func (m *Ledger) fulfillLocked(transferID, fulfillment string) error {
	hold, ok := m.Holds[transferID]
	if !ok {
		return ledger.ErrInvalidAccount
	}
	if conditionFor(fulfillment) != hold.ExecutionCondition {
		return fmt.Errorf("fulfillment does not open condition %s", hold.ExecutionCondition)
	}
	delete(m.Holds, transferID)
	m.Fulfilled[transferID] = fulfillment
	return nil
}

func conditionFor(fulfillment string) string {
	raw, err := hex.DecodeString(fulfillment)
	if err != nil {
		raw = []byte(fulfillment)
	}
	digest := sha256.Sum256(raw)
	return hex.EncodeToString(digest[:])
}

// HoldCount reports how many transfers are still held.
func (m *Ledger) HoldCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Holds)
}

// FulfillCount reports how many transfers were finalized.
func (m *Ledger) FulfillCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Fulfilled)
}
