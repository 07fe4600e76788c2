package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paygrid-dev/walletcore/internal/ledger"
	"github.com/paygrid-dev/walletcore/internal/ledger/mock"
	"github.com/paygrid-dev/walletcore/internal/models"
)

func TestConditionPair(t *testing.T) {
	condition, fulfillment, err := NewConditionPair()
	require.NoError(t, err)
	assert.Len(t, fulfillment, 64)
	assert.Equal(t, ConditionFor(fulfillment), condition)

	condition2, fulfillment2, err := NewConditionPair()
	require.NoError(t, err)
	assert.NotEqual(t, condition, condition2)
	assert.NotEqual(t, fulfillment, fulfillment2)
}

func TestConditionForKnownVector(t *testing.T) {
	// sha256 of 32 zero bytes
	zeros := "0000000000000000000000000000000000000000000000000000000000000000"
	assert.Equal(t, "66687aadf862bd776c8fc18b8e9f8e20089714856ee233b3902a591d0d5f2925", ConditionFor(zeros))
}

func localRequest() Request {
	return Request{
		SourceAccount: "https://wallet.example/ledger/accounts/alice",
		Destination: models.ResolvedDestination{
			Type:       models.DestinationLocal,
			Username:   "bob",
			AccountURI: "https://wallet.example/ledger/accounts/bob",
		},
		SourceAmount:      "12",
		DestinationAmount: "12",
	}
}

func TestExecuteLocal(t *testing.T) {
	fake := mock.New()
	e := New(Config{Ledger: fake})

	executed, err := e.Execute(context.Background(), localRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, executed.TransferReference)
	assert.Equal(t, ConditionFor(executed.Fulfillment), executed.ExecutionCondition)
	assert.Zero(t, fake.HoldCount(), "no hold may remain after a local execute")
	assert.Equal(t, 1, fake.FulfillCount())
}

func TestExecuteLocalWithSuppliedPair(t *testing.T) {
	fake := mock.New()
	e := New(Config{Ledger: fake})

	condition, fulfillment, err := NewConditionPair()
	require.NoError(t, err)

	req := localRequest()
	req.Condition = condition
	req.Fulfillment = fulfillment

	executed, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, condition, executed.ExecutionCondition)
	assert.Equal(t, fulfillment, executed.Fulfillment)
}

func TestExecuteLocalConditionWithoutFulfillment(t *testing.T) {
	fake := mock.New()
	e := New(Config{Ledger: fake})

	req := localRequest()
	req.Condition, _, _ = NewConditionPair()
	req.Fulfillment = ""

	_, err := e.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, fake.HoldCount())
	assert.Zero(t, fake.FulfillCount())
}

func TestExecuteInsufficientFunds(t *testing.T) {
	fake := mock.New()
	fake.ExecuteErr = fmt.Errorf("%w: balance too low", ledger.ErrInsufficientFunds)
	e := New(Config{Ledger: fake})

	_, err := e.Execute(context.Background(), localRequest())
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Zero(t, fake.HoldCount(), "failed prepare must leave no hold")
	assert.Zero(t, fake.FulfillCount())
}

func remoteRequest(receiverURL string) Request {
	return Request{
		SourceAccount: "https://wallet.example/ledger/accounts/alice",
		Destination: models.ResolvedDestination{
			Type:        models.DestinationRemote,
			Username:    "carla",
			AccountURI:  "https://other.example/ledger/accounts/carla",
			ReceiverURL: receiverURL,
		},
		SourceAmount:      "10",
		DestinationAmount: "9.21",
	}
}

func TestExecuteRemoteSenderHeldSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Acknowledge registration without a fulfillment of its own.
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	fake := mock.New()
	e := New(Config{Ledger: fake})

	executed, err := e.Execute(context.Background(), remoteRequest(server.URL))
	require.NoError(t, err)
	assert.Zero(t, fake.HoldCount())
	assert.Equal(t, executed.Fulfillment, fake.Fulfilled[executed.TransferReference])
}

func TestExecuteRemoteReceiverConfirms(t *testing.T) {
	condition, fulfillment, err := NewConditionPair()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"fulfillment":%q}`, fulfillment)
	}))
	defer server.Close()

	fake := mock.New()
	e := New(Config{Ledger: fake})

	req := remoteRequest(server.URL)
	req.Condition = condition

	executed, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, condition, executed.ExecutionCondition)
	assert.Equal(t, fulfillment, executed.Fulfillment)
	assert.Zero(t, fake.HoldCount())
}

func TestExecuteRemoteReusesExistingHold(t *testing.T) {
	condition, fulfillment, err := NewConditionPair()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"fulfillment":%q}`, fulfillment)
	}))
	defer server.Close()

	fake := mock.New()
	held, err := fake.PrepareTransfer(context.Background(), ledger.PrepareRequest{
		DebitAccount:  "https://wallet.example/ledger/accounts/alice",
		CreditAccount: "https://other.example/ledger/accounts/carla",
		Amount:        "10",
		Condition:     condition,
	})
	require.NoError(t, err)

	e := New(Config{Ledger: fake})
	req := remoteRequest(server.URL)
	req.Condition = condition

	executed, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, held.ID, executed.TransferReference, "the existing hold is finalized, not a new one")
	assert.Zero(t, fake.HoldCount(), "no second hold may escrow the amount twice")
	assert.Equal(t, 1, fake.FulfillCount())
}

func TestExecuteRemoteRegistrationFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fake := mock.New()
	e := New(Config{Ledger: fake})

	_, err := e.Execute(context.Background(), remoteRequest(server.URL))
	assert.ErrorIs(t, err, ErrRemoteRegistration)
	assert.Equal(t, 1, fake.HoldCount(), "hold stays for the ledger to expire")
	assert.Zero(t, fake.FulfillCount(), "a failed registration must never be fulfilled")
}

func TestExecuteRemoteMismatchedFulfillment(t *testing.T) {
	condition, _, err := NewConditionPair()
	require.NoError(t, err)
	_, wrongFulfillment, err := NewConditionPair()
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"fulfillment":%q}`, wrongFulfillment)
	}))
	defer server.Close()

	fake := mock.New()
	e := New(Config{Ledger: fake})

	req := remoteRequest(server.URL)
	req.Condition = condition

	_, err = e.Execute(context.Background(), req)
	assert.ErrorIs(t, err, ErrRemoteRegistration)
	assert.Zero(t, fake.FulfillCount())
}

func TestExecuteRemoteNoReceiverEndpoint(t *testing.T) {
	fake := mock.New()
	e := New(Config{Ledger: fake})

	_, err := e.Execute(context.Background(), remoteRequest(""))
	assert.ErrorIs(t, err, ErrRemoteRegistration)
}

func TestExecuteRemoteRegistrationPayload(t *testing.T) {
	var seen remoteRegistration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	fake := mock.New()
	e := New(Config{Ledger: fake})

	req := remoteRequest(server.URL)
	req.SenderIdentifier = "alice"
	req.DestinationMemo = "for carla"

	executed, err := e.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, executed.ExecutionCondition, seen.Condition)
	assert.Equal(t, "9.21", seen.Amount)
	assert.Equal(t, executed.TransferReference, seen.TransferReference)
	assert.Equal(t, "alice", seen.SenderIdentifier)
	assert.Equal(t, "for carla", seen.Memo)
}
